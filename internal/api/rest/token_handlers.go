package rest

import (
	"net/http"

	"go.uber.org/zap"

	domainaudit "github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	domaintoken "github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
	tokensvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/token"
)

type issueTokenRequest struct {
	Subject         string   `json:"subject"`
	Role            string   `json:"role,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
	ProviderID      string   `json:"provider_id,omitempty"`
	SubjectRecordID string   `json:"subject_record_id,omitempty"`
	ConsentLevel    string   `json:"consent_level,omitempty"`
	SessionKind     string   `json:"session_kind,omitempty"`
	MFAVerified     bool     `json:"mfa_verified,omitempty"`
	TTL             string   `json:"ttl,omitempty"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// logTokenEvent records a token lifecycle or authentication outcome on
// the audit trail. Routine lifecycle events are system-category so
// they do not open investigations; failures carry the security
// category and do. Audit failures never fail the HTTP request.
func (h *Handler) logTokenEvent(r *http.Request, eventType domainaudit.EventType, severity domainaudit.Severity, outcome domainaudit.Outcome, subject string) {
	category := domainaudit.CategorySystem
	if outcome == domainaudit.OutcomeFailure {
		category = domainaudit.CategorySecurity
	}
	event, err := domainaudit.NewEvent(eventType, category, severity, outcome, "default")
	if err != nil {
		return
	}
	event.WithActor(subject, "")
	event.Resource = r.URL.Path
	if _, err := h.audit.LogEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to audit token operation",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func (h *Handler) handleIssueTokens(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	access, err := h.tokens.IssueAccessToken(r.Context(), req.Subject, tokensvc.IssueOptions{
		Role:            req.Role,
		Permissions:     req.Permissions,
		ProviderID:      req.ProviderID,
		SubjectRecordID: req.SubjectRecordID,
		ConsentLevel:    req.ConsentLevel,
		SessionKind:     domaintoken.SessionKind(req.SessionKind),
		MFAVerified:     req.MFAVerified,
		TTL:             req.TTL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	refresh, err := h.tokens.IssueRefreshToken(r.Context(), req.Subject)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logTokenEvent(r, domainaudit.EventTokenIssued, domainaudit.SeverityLow, domainaudit.OutcomeSuccess, req.Subject)
	h.writeJSON(w, http.StatusCreated, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	verified, err := h.tokens.Verify(r.Context(), req.Token)
	if err != nil {
		h.logTokenEvent(r, domainaudit.EventAuthFailure, domainaudit.SeverityMedium, domainaudit.OutcomeFailure, "")
		h.writeError(w, err)
		return
	}
	h.logTokenEvent(r, domainaudit.EventAuthSuccess, domainaudit.SeverityLow, domainaudit.OutcomeSuccess, verified.Claims.Subject)
	h.writeJSON(w, http.StatusOK, verified)
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), req.Token)
	if err != nil {
		h.logTokenEvent(r, domainaudit.EventAuthFailure, domainaudit.SeverityMedium, domainaudit.OutcomeFailure, "")
		h.writeError(w, err)
		return
	}
	h.logTokenEvent(r, domainaudit.EventTokenRefreshed, domainaudit.SeverityLow, domainaudit.OutcomeSuccess, "")
	h.writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	})
}

func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.Token); err != nil {
		h.writeError(w, err)
		return
	}
	h.logTokenEvent(r, domainaudit.EventTokenRevoked, domainaudit.SeverityMedium, domainaudit.OutcomeSuccess, "")
	h.writeJSON(w, http.StatusNoContent, nil)
}
