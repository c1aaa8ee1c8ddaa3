package risk

import (
	"context"
	"net"
	"regexp"
	"strings"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/security"
	domaintoken "github.com/davidleathers/healthcare-security-pipeline/internal/domain/token"
	tokensvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/token"
)

// authCheck resolves identity via the token manager, falling back to
// the session store when no bearer token is present.
type authCheck struct {
	tokens   tokensvc.Service
	sessions SessionResolver
}

func (c *authCheck) Name() string { return CheckAuthentication }

func (c *authCheck) Run(ctx context.Context, req *security.RequestDescriptor) (CheckResult, error) {
	result := CheckResult{Passed: true, Details: map[string]interface{}{}}

	switch {
	case req.BearerToken != "":
		verified, err := c.tokens.Verify(ctx, req.BearerToken)
		if err != nil {
			// A token was presented but does not verify: riskier than
			// an anonymous request.
			result.Passed = false
			result.RiskDelta = DeltaUnverifiedToken
			result.Details["auth_failure"] = err.Error()
			result.Recommendations = append(result.Recommendations,
				"present a valid, unexpired bearer token")
			return result, nil
		}
		result.Authenticated = true
		result.Identity = verified.Claims
		if len(verified.Warnings) > 0 {
			result.RiskDelta = DeltaClaimWarnings
			result.Details["claim_warnings"] = verified.Warnings
		}
	case req.SessionID != "" && c.sessions != nil:
		claims, err := c.sessions.Resolve(ctx, req.SessionID)
		if err != nil || claims == nil {
			result.Passed = false
			result.RiskDelta = DeltaUnauthenticated
			result.Recommendations = append(result.Recommendations,
				"session could not be resolved; re-authenticate")
			return result, nil
		}
		result.Authenticated = true
		result.Identity = claims
	default:
		result.Passed = false
		result.RiskDelta = DeltaUnauthenticated
		result.Recommendations = append(result.Recommendations,
			"authenticate with a bearer token or session")
	}
	return result, nil
}

// HeuristicConfig toggles the individual request-validation heuristics
type HeuristicConfig struct {
	RateCheckEnabled        bool
	IPReputationEnabled     bool
	FingerprintCheckEnabled bool

	// DeniedNetworks are CIDR blocks with bad reputation
	DeniedNetworks []string
}

// heuristicCheck bundles the togglable request-validation heuristics.
// Its contributions are capped as a group.
type heuristicCheck struct {
	config  HeuristicConfig
	limiter RateLimiter
	denied  []*net.IPNet
}

func newHeuristicCheck(config HeuristicConfig, limiter RateLimiter) *heuristicCheck {
	check := &heuristicCheck{config: config, limiter: limiter}
	for _, cidr := range config.DeniedNetworks {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			check.denied = append(check.denied, network)
		}
	}
	return check
}

func (c *heuristicCheck) Name() string { return CheckHeuristics }

func (c *heuristicCheck) Run(ctx context.Context, req *security.RequestDescriptor) (CheckResult, error) {
	result := CheckResult{Passed: true, Details: map[string]interface{}{}}
	delta := 0

	if c.config.RateCheckEnabled && c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, req.RateKey())
		if err != nil {
			return result, err
		}
		if !allowed {
			delta += DeltaRateExceeded
			result.Details["rate_exceeded"] = true
			result.Recommendations = append(result.Recommendations,
				"request rate exceeds the allowed window; back off")
		}
	}

	if c.config.IPReputationEnabled {
		if ip := net.ParseIP(req.ClientIP); ip != nil {
			for _, network := range c.denied {
				if network.Contains(ip) {
					delta += DeltaBadIPReputation
					result.Details["ip_reputation"] = "denied network"
					result.Recommendations = append(result.Recommendations,
						"client address belongs to a denied network")
					break
				}
			}
		}
	}

	if c.config.FingerprintCheckEnabled && req.DeviceFingerprint == "" {
		delta += DeltaMissingFingerprint
		result.Details["device_fingerprint"] = "absent"
		result.Recommendations = append(result.Recommendations,
			"supply a device fingerprint header")
	}

	if delta > HeuristicGroupCap {
		delta = HeuristicGroupCap
	}
	result.RiskDelta = delta
	result.Passed = delta == 0
	return result, nil
}

// Threat patterns are compiled once. Each match contributes its own
// delta; matches accumulate without an individual cap.
var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(\bunion\b.*\bselect\b|\bselect\b.*\bfrom\b|\bdrop\s+table\b|\binsert\s+into\b|--|;\s*--|\bor\b\s+\d+\s*=\s*\d+|'\s*or\s*'1'\s*=\s*'1)`)
	xssPattern          = regexp.MustCompile(`(?i)(<script\b|javascript:|\bonerror\s*=|\bonload\s*=|<iframe\b)`)
	traversalPattern    = regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/)`)
)

var suspiciousAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "dirbuster", "gobuster",
	"curl/", "python-requests",
}

type threatCheck struct{}

func (c *threatCheck) Name() string { return CheckThreats }

func (c *threatCheck) Run(ctx context.Context, req *security.RequestDescriptor) (CheckResult, error) {
	result := CheckResult{Passed: true, Details: map[string]interface{}{}}
	delta := 0

	values := append(req.QueryValues(), req.Path)
	for _, v := range values {
		if sqlInjectionPattern.MatchString(v) {
			delta += DeltaSQLInjection
			result.Details["sql_injection"] = v
			result.Recommendations = append(result.Recommendations,
				"query parameters match SQL injection patterns")
			break
		}
	}
	for _, v := range values {
		if xssPattern.MatchString(v) {
			delta += DeltaXSS
			result.Details["xss"] = v
			result.Recommendations = append(result.Recommendations,
				"query parameters match cross-site scripting patterns")
			break
		}
	}
	for _, v := range values {
		if traversalPattern.MatchString(v) {
			delta += DeltaPathTraversal
			result.Details["path_traversal"] = v
			result.Recommendations = append(result.Recommendations,
				"request path matches traversal patterns")
			break
		}
	}

	agent := strings.ToLower(req.UserAgent)
	for _, marker := range suspiciousAgents {
		if strings.Contains(agent, marker) {
			delta += DeltaSuspiciousUA
			result.Details["suspicious_user_agent"] = req.UserAgent
			result.Recommendations = append(result.Recommendations,
				"user agent matches known scanning tools")
			break
		}
	}

	result.RiskDelta = delta
	result.Passed = delta == 0
	return result, nil
}

// complianceCheck evaluates the collaborator-supplied predicate set.
// It resolves its own view of the caller's identity so the checks stay
// independent of each other.
type complianceCheck struct {
	tokens     tokensvc.Service
	predicates []CompliancePredicate
}

func (c *complianceCheck) Name() string { return CheckCompliance }

func (c *complianceCheck) Run(ctx context.Context, req *security.RequestDescriptor) (CheckResult, error) {
	result := CheckResult{Passed: true, Compliance: security.ComplianceCompliant, Details: map[string]interface{}{}}

	var identity *domaintoken.Claims
	if req.BearerToken != "" {
		if verified, err := c.tokens.Verify(ctx, req.BearerToken); err == nil {
			identity = verified.Claims
		}
	}

	delta := 0
	status := security.ComplianceCompliant
	for _, predicate := range c.predicates {
		finding := predicate.Evaluate(ctx, req, identity)
		switch finding.Status {
		case security.ComplianceViolation:
			delta += DeltaComplianceViolation
			status = security.ComplianceViolation
			result.Details[predicate.Name()] = "violation"
		case security.ComplianceWarning:
			delta += DeltaComplianceWarning
			if status != security.ComplianceViolation {
				status = security.ComplianceWarning
			}
			result.Details[predicate.Name()] = "warning"
		}
		if finding.Recommendation != "" {
			result.Recommendations = append(result.Recommendations, finding.Recommendation)
		}
	}

	result.RiskDelta = delta
	result.Compliance = status
	result.Passed = status == security.ComplianceCompliant
	return result, nil
}
