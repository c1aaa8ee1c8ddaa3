package rest

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/security"
	auditsvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/audit"
	privacysvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/privacy"
	risksvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/risk"
	tokensvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/token"
)

// Handler exposes the pipeline's services over HTTP
type Handler struct {
	logger  *zap.Logger
	tokens  tokensvc.Service
	risk    risksvc.Service
	audit   auditsvc.Service
	privacy privacysvc.Service
}

func NewHandler(logger *zap.Logger, tokens tokensvc.Service, risk risksvc.Service, audit auditsvc.Service, privacy privacysvc.Service) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:  logger,
		tokens:  tokens,
		risk:    risk,
		audit:   audit,
		privacy: privacy,
	}
}

type evaluateRequest struct {
	Method            string            `json:"method"`
	Path              string            `json:"path"`
	ClientIP          string            `json:"client_ip"`
	UserAgent         string            `json:"user_agent,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	QueryParams       string            `json:"query_params,omitempty"`
	BearerToken       string            `json:"bearer_token,omitempty"`
	SessionID         string            `json:"session_id,omitempty"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty"`
	TenantID          string            `json:"tenant_id,omitempty"`
	CorrelationID     string            `json:"correlation_id,omitempty"`
}

// handleEvaluate runs the full security pipeline against a described
// request and returns the decision. Gateways call this to pre-clear
// traffic they proxy.
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	descriptor := security.RequestDescriptor{
		Method:            req.Method,
		Path:              req.Path,
		ClientIP:          req.ClientIP,
		UserAgent:         req.UserAgent,
		Headers:           req.Headers,
		BearerToken:       req.BearerToken,
		SessionID:         req.SessionID,
		DeviceFingerprint: req.DeviceFingerprint,
		TenantID:          req.TenantID,
		CorrelationID:     req.CorrelationID,
	}
	descriptor.ParseQuery(req.QueryParams)

	decision := h.risk.Evaluate(r.Context(), &descriptor)
	for name, value := range decision.Headers {
		w.Header().Set(name, value)
	}
	h.writeJSON(w, http.StatusOK, decision)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
