package rest

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

func (h *Handler) handleGetAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	page, err := h.audit.GetEvents(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetAuditAnalytics(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	analytics, err := h.audit.GetAnalytics(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, analytics)
}

func parseEventFilter(q url.Values) (audit.EventFilter, error) {
	var filter audit.EventFilter

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.NewValidationError("INVALID_FILTER", "from must be RFC3339")
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.NewValidationError("INVALID_FILTER", "to must be RFC3339")
		}
		filter.To = t
	}

	filter.ActorID = q.Get("actor_id")
	filter.Resource = q.Get("resource")
	filter.SubjectRecordID = q.Get("subject_record_id")
	filter.TenantID = q.Get("tenant_id")
	filter.Framework = q.Get("framework")
	filter.Outcome = audit.Outcome(q.Get("outcome"))
	filter.Sensitivity = audit.Sensitivity(q.Get("sensitivity"))
	filter.Tags = q["tag"]

	for _, v := range q["type"] {
		filter.Types = append(filter.Types, audit.EventType(v))
	}
	for _, v := range q["category"] {
		filter.Categories = append(filter.Categories, audit.Category(v))
	}
	for _, v := range q["severity"] {
		filter.Severities = append(filter.Severities, audit.Severity(v))
	}

	if v := q.Get("min_risk_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, errors.NewValidationError("INVALID_FILTER", "min_risk_score must be an integer")
		}
		filter.MinRiskScore = &n
	}
	if v := q.Get("max_risk_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, errors.NewValidationError("INVALID_FILTER", "max_risk_score must be an integer")
		}
		filter.MaxRiskScore = &n
	}

	filter.SortBy = audit.SortField(q.Get("sort_by"))
	filter.Descending = q.Get("order") == "desc"

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, errors.NewValidationError("INVALID_FILTER", "offset must be an integer")
		}
		filter.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, errors.NewValidationError("INVALID_FILTER", "limit must be an integer")
		}
		filter.Limit = n
	}
	return filter, nil
}

type createInvestigationRequest struct {
	EventID     string `json:"event_id"`
	RequestedBy string `json:"requested_by"`
	Reason      string `json:"reason"`
	Priority    string `json:"priority,omitempty"`
}

func (h *Handler) handleCreateInvestigation(w http.ResponseWriter, r *http.Request) {
	var req createInvestigationRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_EVENT_ID", "event_id must be a UUID"))
		return
	}

	priority := audit.InvestigationPriority(req.Priority)
	if req.Priority == "" {
		priority = audit.PriorityNormal
	}

	inv, err := h.audit.CreateInvestigation(r.Context(), eventID, req.RequestedBy, req.Reason, priority)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleUpdateInvestigation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_ID", "investigation ID must be a UUID"))
		return
	}

	var update audit.InvestigationUpdate
	if !h.decodeBody(w, r, &update) {
		return
	}

	inv, err := h.audit.UpdateInvestigation(r.Context(), id, update)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) handleGetInvestigations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.InvestigationFilter{
		Status:     audit.InvestigationStatus(q.Get("status")),
		Priority:   audit.InvestigationPriority(q.Get("priority")),
		AssignedTo: q.Get("assigned_to"),
	}
	if v := q.Get("event_id"); v != "" {
		eventID, err := uuid.Parse(v)
		if err != nil {
			h.writeError(w, errors.NewValidationError("INVALID_FILTER", "event_id must be a UUID"))
			return
		}
		filter.EventID = &eventID
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, errors.NewValidationError("INVALID_FILTER", "limit must be an integer"))
			return
		}
		filter.Limit = n
	}

	investigations, err := h.audit.GetInvestigations(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"investigations": investigations,
		"count":          len(investigations),
	})
}
