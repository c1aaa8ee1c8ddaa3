package security

import (
	"time"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/values"
)

// ThreatLevel is the discretized risk band driving the allow/block decision
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Rank returns an ordering value for threat levels (critical highest)
func (t ThreatLevel) Rank() int {
	switch t {
	case ThreatCritical:
		return 4
	case ThreatHigh:
		return 3
	case ThreatMedium:
		return 2
	case ThreatLow:
		return 1
	default:
		return 0
	}
}

// ThreatLevelFor maps a risk score onto its threat band
func ThreatLevelFor(score values.RiskScore) ThreatLevel {
	switch {
	case score.Int() >= values.ThresholdCritical:
		return ThreatCritical
	case score.Int() >= values.ThresholdHigh:
		return ThreatHigh
	case score.Int() >= values.ThresholdMedium:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// ComplianceStatus summarizes the compliance checks for one request
type ComplianceStatus string

const (
	ComplianceCompliant ComplianceStatus = "compliant"
	ComplianceWarning   ComplianceStatus = "warning"
	ComplianceViolation ComplianceStatus = "violation"
)

func (s ComplianceStatus) rank() int {
	switch s {
	case ComplianceViolation:
		return 3
	case ComplianceWarning:
		return 2
	case ComplianceCompliant:
		return 1
	default:
		return 0
	}
}

// Worse reports whether s is a more severe status than other
func (s ComplianceStatus) Worse(other ComplianceStatus) bool {
	return s.rank() > other.rank()
}

// CheckRecord captures one validation check's outcome for forensic replay
type CheckRecord struct {
	Name      string        `json:"name"`
	Passed    bool          `json:"passed"`
	RiskDelta int           `json:"risk_delta"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Context is the ephemeral per-request security evaluation result.
// Created at request start, discarded at request end; only its audit
// projection is ever persisted.
type Context struct {
	Authenticated    bool                   `json:"authenticated"`
	Identity         *token.Claims          `json:"-"`
	RiskScore        values.RiskScore       `json:"risk_score"`
	ThreatLevel      ThreatLevel            `json:"threat_level"`
	ComplianceStatus ComplianceStatus       `json:"compliance_status"`
	ChecksPerformed  []CheckRecord          `json:"checks_performed"`
	Recommendations  []string               `json:"recommendations,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
}

// Blocked reports whether the evaluated request must be rejected:
// critical threat always blocks, high blocks only past a score of 80.
func (c *Context) Blocked() bool {
	if c.ThreatLevel == ThreatCritical {
		return true
	}
	return c.ThreatLevel == ThreatHigh && c.RiskScore.Int() > values.ThresholdCritical
}

// Subject returns the authenticated subject, or empty when anonymous
func (c *Context) Subject() string {
	if c.Identity == nil {
		return ""
	}
	return c.Identity.Subject
}

// FailClosed builds the most-restrictive fallback context used when an
// evaluation cannot complete normally. The failure reason is preserved
// in Details for the audit projection.
func FailClosed(reason string) *Context {
	score := values.ClampRiskScore(90)
	return &Context{
		Authenticated:    false,
		RiskScore:        score,
		ThreatLevel:      ThreatCritical,
		ComplianceStatus: ComplianceWarning,
		Recommendations:  []string{"security evaluation failed; request denied by default"},
		Details: map[string]interface{}{
			"fail_closed": true,
			"reason":      reason,
		},
	}
}
