package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// IsValid checks if the token kind is a known value
func (k Kind) IsValid() bool {
	return k == KindAccess || k == KindRefresh
}

// SessionKind classifies the clinical session the token was issued for
type SessionKind string

const (
	SessionStandard     SessionKind = "standard"
	SessionTelemedicine SessionKind = "telemedicine"
)

// Claims represents the signed claim set carried by a bearer token.
// Immutable once signed; identity is the jti (a random 128-bit UUID),
// unique per issuance.
type Claims struct {
	jwt.RegisteredClaims

	TokenKind       Kind        `json:"token_kind"`
	Role            string      `json:"role,omitempty"`
	Permissions     []string    `json:"permissions,omitempty"`
	ProviderID      string      `json:"provider_id,omitempty"`
	SubjectRecordID string      `json:"subject_record_id,omitempty"`
	ConsentLevel    string      `json:"consent_level,omitempty"`
	SessionKind     SessionKind `json:"session_kind,omitempty"`
	MFAVerified     bool        `json:"mfa_verified,omitempty"`
}

// Warning is a non-fatal verification finding. Policy enforcement on
// warnings is the caller's responsibility, not the token layer's.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TokenID parses the jti claim as a UUID. Returns uuid.Nil when the
// claim is absent or malformed.
func (c *Claims) TokenID() uuid.UUID {
	if c.ID == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// MissingRequired reports which of the required claims (subject,
// issuer, audience, issuedAt, expiresAt, tokenId) are absent. Reported
// as warnings rather than hard failures to tolerate legacy tokens
// still in circulation during migration.
func (c *Claims) MissingRequired() []Warning {
	var warnings []Warning
	missing := func(claim string) {
		warnings = append(warnings, Warning{
			Code:    "MISSING_CLAIMS",
			Message: "required claim absent: " + claim,
		})
	}

	if c.Subject == "" {
		missing("sub")
	}
	if c.Issuer == "" {
		missing("iss")
	}
	if len(c.Audience) == 0 {
		missing("aud")
	}
	if c.IssuedAt == nil {
		missing("iat")
	}
	if c.ExpiresAt == nil {
		missing("exp")
	}
	if c.ID == "" {
		missing("jti")
	}
	return warnings
}

// DomainFindings validates the healthcare domain rules that apply on
// top of structural claim checks: a subject record reference requires
// an attending provider, and a telemedicine session requires MFA.
// Findings are warnings attached to the verification result; the risk
// engine decides what to do with them.
func (c *Claims) DomainFindings() []Warning {
	var warnings []Warning

	if c.SubjectRecordID != "" && c.ProviderID == "" {
		warnings = append(warnings, Warning{
			Code:    "RECORD_WITHOUT_PROVIDER",
			Message: "subject_record_id claim present without provider_id",
		})
	}
	if c.SessionKind == SessionTelemedicine && !c.MFAVerified {
		warnings = append(warnings, Warning{
			Code:    "TELEMEDICINE_WITHOUT_MFA",
			Message: "telemedicine session requires mfa_verified=true",
		})
	}
	return warnings
}

// HasPermission checks the permissions claim for an exact or wildcard match
func (c *Claims) HasPermission(required string) bool {
	for _, p := range c.Permissions {
		if p == required || p == "*" {
			return true
		}
	}
	return false
}
