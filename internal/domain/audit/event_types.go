package audit

// EventType represents the kind of audit event. Every value the
// pipeline can emit is declared here; handlers and services never log
// free-form type strings.
type EventType string

// Security events
const (
	EventRequestEvaluated EventType = "security.request_evaluated"
	EventRequestBlocked   EventType = "security.request_blocked"
	EventAuthSuccess      EventType = "security.auth_success"
	EventAuthFailure      EventType = "security.auth_failure"
)

// Token lifecycle events
const (
	EventTokenIssued    EventType = "token.issued"
	EventTokenRefreshed EventType = "token.refreshed"
	EventTokenRevoked   EventType = "token.revoked"
)

// Privacy and system events
const (
	EventDatasetAnonymized  EventType = "privacy.dataset_anonymized"
	EventPseudonymCreated   EventType = "privacy.pseudonym_created"
	EventPseudonymReversed  EventType = "privacy.pseudonym_reversed"
	EventRetentionSweep     EventType = "system.retention_sweep"
	EventInvestigationAdded EventType = "system.investigation_created"
)

// Category groups events for filtering and tagging
type Category string

const (
	CategorySecurity   Category = "security"
	CategoryCompliance Category = "compliance"
	CategoryDataAccess Category = "data_access"
	CategoryPrivacy    Category = "privacy"
	CategorySystem     Category = "system"
)

func (c Category) IsValid() bool {
	switch c {
	case CategorySecurity, CategoryCompliance, CategoryDataAccess, CategoryPrivacy, CategorySystem:
		return true
	}
	return false
}

// Severity classifies event impact; the order critical > high > medium > low
// drives both sorting and retention defaults.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank returns an ordering value for severity (critical highest)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Outcome records how the audited action concluded
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBlocked Outcome = "blocked"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeBlocked:
		return true
	}
	return false
}

// Sensitivity classifies the data the event touches
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)
