package risk

import (
	"context"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/security"
	domaintoken "github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
)

// Service produces one SecurityContext per request and decides
// allow/block. Evaluate never returns an error: any failure inside the
// engine converts into the fail-closed context.
type Service interface {
	Evaluate(ctx context.Context, req *security.RequestDescriptor) *Decision
}

// Check is one independent validation unit. Checks run concurrently
// under an enforced timeout; an error or timeout contributes a fixed
// risk penalty instead of aborting the evaluation.
type Check interface {
	Name() string
	Run(ctx context.Context, req *security.RequestDescriptor) (CheckResult, error)
}

// CheckResult is one check's contribution to the composite score
type CheckResult struct {
	RiskDelta       int
	Passed          bool
	Identity        *domaintoken.Claims
	Authenticated   bool
	Compliance      security.ComplianceStatus
	Recommendations []string
	Details         map[string]interface{}
}

// Decision is the allow/block outcome handed back to the transport
type Decision struct {
	Allowed    bool              `json:"allowed"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Context    *security.Context `json:"context"`
}

// SessionResolver looks up session claims as an alternative to bearer
// tokens, e.g. against a shared session store.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (*domaintoken.Claims, error)
}

// RateLimiter answers whether a request origin is within its window
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// CompliancePredicate is one collaborator-supplied compliance rule
type CompliancePredicate interface {
	Name() string
	// Evaluate returns the finding for this request; identity may be
	// nil for anonymous requests.
	Evaluate(ctx context.Context, req *security.RequestDescriptor, identity *domaintoken.Claims) ComplianceFinding
}

// ComplianceFinding is a single rule's verdict
type ComplianceFinding struct {
	Status         security.ComplianceStatus
	Recommendation string
}
