package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/values"
)

// Event represents a persistent security/compliance audit record.
// Append-only: events are never mutated after logging except for the
// investigation back-fill, and are deleted only by the retention sweep.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Classification
	Type     EventType `json:"event_type"`
	Category Category  `json:"category"`
	Severity Severity  `json:"severity"`
	Outcome  Outcome   `json:"outcome"`

	// Actor and subject
	ActorID         string `json:"actor_id,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	SubjectRecordID string `json:"subject_record_id,omitempty"`
	Resource        string `json:"resource,omitempty"`
	TenantID        string `json:"tenant_id"`

	// Evaluation context
	RiskScore     values.RiskScore       `json:"risk_score"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`

	// Compliance metadata
	DataSensitivity      Sensitivity `json:"data_sensitivity,omitempty"`
	ComplianceFrameworks []string    `json:"compliance_frameworks,omitempty"`

	// Retention policy, computed at log time
	Retention RetentionPolicy `json:"retention"`

	Tags []string `json:"tags,omitempty"`

	// Investigation workflow
	RequiresInvestigation bool                `json:"requires_investigation"`
	InvestigationStatus   InvestigationStatus `json:"investigation_status,omitempty"`
	InvestigationNotes    string              `json:"investigation_notes,omitempty"`
}

// RetentionPolicy bounds how long the event is kept
type RetentionPolicy struct {
	RetainUntil time.Time `json:"retain_until"`
	AutoDelete  bool      `json:"auto_delete"`
}

// Expired reports whether the event is past its retention deadline
func (p RetentionPolicy) Expired(now time.Time) bool {
	return p.AutoDelete && !p.RetainUntil.After(now)
}

// NewEvent creates an audit event with validation. Timestamp, retention
// and derived flags are assigned by the trail service at log time.
func NewEvent(eventType EventType, category Category, severity Severity, outcome Outcome, tenantID string) (*Event, error) {
	if eventType == "" {
		return nil, errors.NewValidationError("MISSING_EVENT_TYPE", "event type is required")
	}
	if !category.IsValid() {
		return nil, errors.NewValidationError("INVALID_CATEGORY", "unknown audit category: "+string(category))
	}
	if !severity.IsValid() {
		return nil, errors.NewValidationError("INVALID_SEVERITY", "unknown audit severity: "+string(severity))
	}
	if !outcome.IsValid() {
		return nil, errors.NewValidationError("INVALID_OUTCOME", "unknown audit outcome: "+string(outcome))
	}
	if tenantID == "" {
		return nil, errors.NewValidationError("MISSING_TENANT_ID", "tenant ID is required")
	}

	return &Event{
		Type:     eventType,
		Category: category,
		Severity: severity,
		Outcome:  outcome,
		TenantID: tenantID,
		Details:  make(map[string]interface{}),
	}, nil
}

// WithActor attaches actor and session identifiers
func (e *Event) WithActor(actorID, sessionID string) *Event {
	e.ActorID = actorID
	e.SessionID = sessionID
	return e
}

// WithRisk attaches the evaluated risk score
func (e *Event) WithRisk(score values.RiskScore) *Event {
	e.RiskScore = score
	return e
}

// WithSubjectRecord links the event to a clinical record
func (e *Event) WithSubjectRecord(recordID string) *Event {
	e.SubjectRecordID = recordID
	return e
}

// WithDetail adds one key to the free-form details map
func (e *Event) WithDetail(key string, value interface{}) *Event {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HasTag reports whether the event carries the given tag
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SubjectRelated reports whether the event touches a clinical record
func (e *Event) SubjectRelated() bool {
	return e.SubjectRecordID != ""
}
