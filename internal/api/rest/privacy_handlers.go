package rest

import (
	"net/http"

	domainprivacy "github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
	privacysvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/privacy"
)

type anonymizeRequest struct {
	Records          []domainprivacy.Record `json:"records"`
	QuasiIdentifiers []string               `json:"quasi_identifiers"`
	K                int                    `json:"k"`

	// Optional second pass.
	SensitiveAttributes []string `json:"sensitive_attributes,omitempty"`
	L                   int      `json:"l,omitempty"`
}

// handleAnonymize runs k-anonymity and, when sensitive attributes are
// supplied, an l-diversity pass over the result.
func (h *Handler) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req anonymizeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	dataset, err := h.privacy.ApplyKAnonymity(r.Context(), req.Records, req.QuasiIdentifiers, req.K)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if len(req.SensitiveAttributes) > 0 {
		dataset, err = h.privacy.ApplyLDiversity(r.Context(), dataset, req.SensitiveAttributes, req.L, req.K)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, dataset)
}

type generalizeRequest struct {
	Records []domainprivacy.Record      `json:"records"`
	Rules   []privacysvc.GeneralizeRule `json:"rules"`
}

func (h *Handler) handleGeneralize(w http.ResponseWriter, r *http.Request) {
	var req generalizeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	records, err := h.privacy.GeneralizeRecords(r.Context(), req.Records, req.Rules)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

type noiseRequest struct {
	Value       float64 `json:"value"`
	Epsilon     float64 `json:"epsilon"`
	Sensitivity float64 `json:"sensitivity"`
	Mechanism   string  `json:"mechanism"`
}

func (h *Handler) handleAddNoise(w http.ResponseWriter, r *http.Request) {
	var req noiseRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	noisy, err := h.privacy.AddDifferentialPrivacy(req.Value, req.Epsilon, req.Sensitivity, privacysvc.Mechanism(req.Mechanism))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]float64{"value": noisy})
}

type createPseudonymRequest struct {
	Identifier string `json:"identifier"`
	Purpose    string `json:"purpose"`
	Reversible bool   `json:"reversible"`
}

func (h *Handler) handleCreatePseudonym(w http.ResponseWriter, r *http.Request) {
	var req createPseudonymRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	pseudonym, err := h.privacy.CreatePseudonym(r.Context(), req.Identifier, req.Purpose, req.Reversible)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, pseudonym)
}

type reversePseudonymRequest struct {
	Pseudonym string `json:"pseudonym"`
	Purpose   string `json:"purpose"`
	ActorID   string `json:"actor_id"`
	Grant     string `json:"grant"`
}

func (h *Handler) handleReversePseudonym(w http.ResponseWriter, r *http.Request) {
	var req reversePseudonymRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	identifier, err := h.privacy.ReversePseudonym(r.Context(), req.Pseudonym, req.Purpose, privacysvc.Authorization{
		ActorID: req.ActorID,
		Purpose: req.Purpose,
		Grant:   req.Grant,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"identifier": identifier})
}
