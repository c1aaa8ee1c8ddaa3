package audit

import (
	"sort"
	"time"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

// SortField selects the ordering of an event query
type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByRisk      SortField = "risk"
	SortBySeverity  SortField = "severity"
)

// EventFilter narrows event queries. Zero values mean "no constraint".
type EventFilter struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	ActorID         string      `json:"actor_id,omitempty"`
	Types           []EventType `json:"types,omitempty"`
	Categories      []Category  `json:"categories,omitempty"`
	Severities      []Severity  `json:"severities,omitempty"`
	Outcome         Outcome     `json:"outcome,omitempty"`
	Resource        string      `json:"resource,omitempty"`
	SubjectRecordID string      `json:"subject_record_id,omitempty"`
	TenantID        string      `json:"tenant_id,omitempty"`
	Framework       string      `json:"framework,omitempty"`
	Sensitivity     Sensitivity `json:"sensitivity,omitempty"`

	MinRiskScore *int `json:"min_risk_score,omitempty"`
	MaxRiskScore *int `json:"max_risk_score,omitempty"`

	Tags []string `json:"tags,omitempty"`

	SortBy     SortField `json:"sort_by,omitempty"`
	Descending bool      `json:"descending,omitempty"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Validate normalizes pagination and rejects inconsistent bounds
func (f *EventFilter) Validate() error {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		return errors.NewValidationError("LIMIT_TOO_LARGE", "page limit cannot exceed 1000")
	}
	if f.Offset < 0 {
		return errors.NewValidationError("INVALID_OFFSET", "offset cannot be negative")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return errors.NewValidationError("INVALID_TIME_RANGE", "filter end precedes start")
	}
	if f.MinRiskScore != nil && f.MaxRiskScore != nil && *f.MaxRiskScore < *f.MinRiskScore {
		return errors.NewValidationError("INVALID_RISK_RANGE", "max risk score precedes min")
	}
	if f.SortBy == "" {
		f.SortBy = SortByTimestamp
	}
	return nil
}

// Matches reports whether an event satisfies every set constraint
func (f *EventFilter) Matches(e *Event) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.SubjectRecordID != "" && e.SubjectRecordID != f.SubjectRecordID {
		return false
	}
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.Framework != "" && !containsString(e.ComplianceFrameworks, f.Framework) {
		return false
	}
	if f.Sensitivity != "" && e.DataSensitivity != f.Sensitivity {
		return false
	}
	if f.MinRiskScore != nil && e.RiskScore.Int() < *f.MinRiskScore {
		return false
	}
	if f.MaxRiskScore != nil && e.RiskScore.Int() > *f.MaxRiskScore {
		return false
	}
	for _, tag := range f.Tags {
		if !e.HasTag(tag) {
			return false
		}
	}
	return true
}

// Sort orders events in place by the filter's sort field
func (f *EventFilter) Sort(events []*Event) {
	less := func(a, b *Event) bool {
		switch f.SortBy {
		case SortByRisk:
			if a.RiskScore.Int() != b.RiskScore.Int() {
				return a.RiskScore.Int() < b.RiskScore.Int()
			}
		case SortBySeverity:
			if a.Severity.Rank() != b.Severity.Rank() {
				return a.Severity.Rank() < b.Severity.Rank()
			}
		}
		return a.Timestamp.Before(b.Timestamp)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if f.Descending {
			return less(events[j], events[i])
		}
		return less(events[i], events[j])
	})
}

// Page applies offset/limit to a sorted result set
func (f *EventFilter) Page(events []*Event) []*Event {
	if f.Offset >= len(events) {
		return []*Event{}
	}
	end := f.Offset + f.Limit
	if end > len(events) {
		end = len(events)
	}
	return events[f.Offset:end]
}

// EventPage is one page of a query result
type EventPage struct {
	Events []*Event `json:"events"`
	Total  int      `json:"total"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
}

func containsType(haystack []EventType, needle EventType) bool {
	for _, t := range haystack {
		if t == needle {
			return true
		}
	}
	return false
}

func containsCategory(haystack []Category, needle Category) bool {
	for _, c := range haystack {
		if c == needle {
			return true
		}
	}
	return false
}

func containsSeverity(haystack []Severity, needle Severity) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
