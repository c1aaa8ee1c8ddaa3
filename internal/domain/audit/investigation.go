package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

// InvestigationStatus tracks the investigation lifecycle
type InvestigationStatus string

const (
	InvestigationPending    InvestigationStatus = "pending"
	InvestigationInProgress InvestigationStatus = "in_progress"
	InvestigationResolved   InvestigationStatus = "resolved"
)

func (s InvestigationStatus) IsValid() bool {
	switch s {
	case InvestigationPending, InvestigationInProgress, InvestigationResolved:
		return true
	}
	return false
}

// InvestigationPriority orders the investigation queue
type InvestigationPriority string

const (
	PriorityUrgent InvestigationPriority = "urgent"
	PriorityHigh   InvestigationPriority = "high"
	PriorityNormal InvestigationPriority = "normal"
	PriorityLow    InvestigationPriority = "low"
)

// PriorityForSeverity maps an event severity onto the default
// investigation priority used for auto-created investigations.
func PriorityForSeverity(severity Severity) InvestigationPriority {
	switch severity {
	case SeverityCritical:
		return PriorityUrgent
	case SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Investigation is a compliance investigation opened against one audit
// event. An event may accumulate several investigations over time, each
// with its own identity.
type Investigation struct {
	ID          uuid.UUID             `json:"id"`
	EventID     uuid.UUID             `json:"event_id"`
	RequestedBy string                `json:"requested_by"`
	RequestedAt time.Time             `json:"requested_at"`
	Reason      string                `json:"reason"`
	Priority    InvestigationPriority `json:"priority"`
	Status      InvestigationStatus   `json:"status"`
	AssignedTo  string                `json:"assigned_to,omitempty"`
	Findings    string                `json:"findings,omitempty"`
	Resolution  string                `json:"resolution,omitempty"`
	Actions     []string              `json:"actions,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NewInvestigation creates an investigation referencing an existing event
func NewInvestigation(eventID uuid.UUID, requestedBy, reason string, priority InvestigationPriority) (*Investigation, error) {
	if eventID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_EVENT_ID", "investigation must reference an audit event")
	}
	if requestedBy == "" {
		return nil, errors.NewValidationError("MISSING_REQUESTER", "requested_by is required")
	}
	if reason == "" {
		return nil, errors.NewValidationError("MISSING_REASON", "investigation reason is required")
	}
	if priority == "" {
		priority = PriorityNormal
	}

	now := time.Now().UTC()
	return &Investigation{
		ID:          uuid.New(),
		EventID:     eventID,
		RequestedBy: requestedBy,
		RequestedAt: now,
		Reason:      reason,
		Priority:    priority,
		Status:      InvestigationPending,
		Actions:     []string{},
		UpdatedAt:   now,
	}, nil
}

// InvestigationUpdate carries the mutable fields of an investigation.
// Nil pointers leave the current value untouched.
type InvestigationUpdate struct {
	Status     *InvestigationStatus   `json:"status,omitempty"`
	AssignedTo *string                `json:"assigned_to,omitempty"`
	Findings   *string                `json:"findings,omitempty"`
	Resolution *string                `json:"resolution,omitempty"`
	Priority   *InvestigationPriority `json:"priority,omitempty"`
	AddActions []string               `json:"add_actions,omitempty"`
}

// Apply merges an update into the investigation with validation
func (inv *Investigation) Apply(update InvestigationUpdate) error {
	if update.Status != nil {
		if !update.Status.IsValid() {
			return errors.NewValidationError("INVALID_STATUS", "unknown investigation status: "+string(*update.Status))
		}
		if inv.Status == InvestigationResolved && *update.Status != InvestigationResolved {
			return errors.NewBusinessError("INVESTIGATION_RESOLVED", "resolved investigations cannot be reopened")
		}
		inv.Status = *update.Status
	}
	if update.AssignedTo != nil {
		inv.AssignedTo = *update.AssignedTo
		if inv.Status == InvestigationPending {
			inv.Status = InvestigationInProgress
		}
	}
	if update.Findings != nil {
		inv.Findings = *update.Findings
	}
	if update.Resolution != nil {
		inv.Resolution = *update.Resolution
	}
	if update.Priority != nil {
		inv.Priority = *update.Priority
	}
	if len(update.AddActions) > 0 {
		inv.Actions = append(inv.Actions, update.AddActions...)
	}
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// InvestigationFilter narrows investigation queries
type InvestigationFilter struct {
	EventID    *uuid.UUID            `json:"event_id,omitempty"`
	Status     InvestigationStatus   `json:"status,omitempty"`
	Priority   InvestigationPriority `json:"priority,omitempty"`
	AssignedTo string                `json:"assigned_to,omitempty"`
	Offset     int                   `json:"offset"`
	Limit      int                   `json:"limit"`
}
