package security

import (
	"net/url"
	"strings"
)

// RequestDescriptor is the parsed request handed to the pipeline by the
// transport layer. The pipeline never sees raw bytes.
type RequestDescriptor struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	ClientIP    string              `json:"client_ip"`
	UserAgent   string              `json:"user_agent"`
	Headers     map[string]string   `json:"headers,omitempty"`
	QueryParams map[string][]string `json:"query_params,omitempty"`

	// BearerToken is the raw token from the Authorization header, if any.
	BearerToken string `json:"-"`

	// SessionID is an alternative identity handle resolved against the
	// session store when no bearer token is present.
	SessionID string `json:"session_id,omitempty"`

	// DeviceFingerprint is supplied by the client, when available.
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`

	TenantID      string `json:"tenant_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// QueryValues flattens the query parameters for pattern scanning
func (r *RequestDescriptor) QueryValues() []string {
	if len(r.QueryParams) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.QueryParams))
	for key, vals := range r.QueryParams {
		out = append(out, key)
		out = append(out, vals...)
	}
	return out
}

// RateKey identifies the request origin for rate limiting. Falls back
// to the client IP when no authenticated identity is known yet.
func (r *RequestDescriptor) RateKey() string {
	if r.SessionID != "" {
		return "session:" + r.SessionID
	}
	return "ip:" + r.ClientIP
}

// ParseQuery builds QueryParams from a raw query string. Malformed
// input yields whatever url.ParseQuery could salvage.
func (r *RequestDescriptor) ParseQuery(rawQuery string) {
	vals, _ := url.ParseQuery(rawQuery)
	if len(vals) == 0 {
		return
	}
	r.QueryParams = vals
}

// ExtractBearer pulls a bearer token out of an Authorization header value
func ExtractBearer(authorization string) string {
	const prefix = "Bearer "
	if len(authorization) > len(prefix) && strings.EqualFold(authorization[:len(prefix)], prefix) {
		return strings.TrimSpace(authorization[len(prefix):])
	}
	return ""
}
