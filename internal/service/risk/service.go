package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domainaudit "github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/security"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/values"
	"github.com/davidleathers/healthcare-security-pipeline/internal/metrics"
	auditsvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/audit"
	tokensvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/token"
)

// Config configures the risk aggregation engine
type Config struct {
	CheckTimeout  time.Duration
	Heuristics    HeuristicConfig
	DefaultTenant string
}

// DefaultConfig enables every heuristic with the standard timeout
func DefaultConfig() Config {
	return Config{
		CheckTimeout: DefaultCheckTimeout,
		Heuristics: HeuristicConfig{
			RateCheckEnabled:        true,
			IPReputationEnabled:     true,
			FingerprintCheckEnabled: true,
		},
		DefaultTenant: "default",
	}
}

// engine implements the Service interface
type engine struct {
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	checks []Check
	trail  auditsvc.Service
}

// NewEngine creates a risk aggregation engine wired to its
// collaborators. The predicate set extends the built-in clinical rules.
func NewEngine(
	config Config,
	logger *zap.Logger,
	tokens tokensvc.Service,
	sessions SessionResolver,
	limiter RateLimiter,
	predicates []CompliancePredicate,
	trail auditsvc.Service,
) (Service, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if trail == nil {
		return nil, fmt.Errorf("audit trail is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = DefaultCheckTimeout
	}
	if config.DefaultTenant == "" {
		config.DefaultTenant = "default"
	}

	allPredicates := []CompliancePredicate{
		&ConsentForRecordAccess{},
		&TelemedicineMFA{},
		&ProviderForRecord{},
	}
	allPredicates = append(allPredicates, predicates...)

	checks := []Check{
		&authCheck{tokens: tokens, sessions: sessions},
		newHeuristicCheck(config.Heuristics, limiter),
		&threatCheck{},
		&complianceCheck{tokens: tokens, predicates: allPredicates},
	}

	return &engine{
		config: config,
		logger: logger,
		tracer: otel.Tracer("service.risk"),
		checks: checks,
		trail:  trail,
	}, nil
}

func (e *engine) Evaluate(ctx context.Context, req *security.RequestDescriptor) (decision *Decision) {
	start := time.Now()

	// The engine never lets an internal failure escape to the caller:
	// the most restrictive context is the answer instead.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("risk evaluation panicked; failing closed",
				zap.Any("panic", r))
			secCtx := security.FailClosed(fmt.Sprintf("panic: %v", r))
			decision = e.decide(secCtx)
			e.emitAudit(context.Background(), req, secCtx, decision)
		}
		metrics.RecordEvaluation(string(decision.Context.ThreatLevel), !decision.Allowed, time.Since(start))
	}()

	ctx, span := e.tracer.Start(ctx, "risk.evaluate")
	defer span.End()

	if req == nil {
		secCtx := security.FailClosed("nil request descriptor")
		decision = e.decide(secCtx)
		e.emitAudit(ctx, req, secCtx, decision)
		return decision
	}

	secCtx := e.runChecks(ctx, req)
	decision = e.decide(secCtx)
	e.emitAudit(ctx, req, secCtx, decision)

	if !decision.Allowed {
		e.logger.Warn("request blocked",
			zap.String("path", req.Path),
			zap.String("client_ip", req.ClientIP),
			zap.Int("risk_score", secCtx.RiskScore.Int()),
			zap.String("threat_level", string(secCtx.ThreatLevel)))
	}
	return decision
}

type checkOutcome struct {
	name     string
	result   CheckResult
	err      error
	duration time.Duration
}

// runChecks fans the independent checks out, joins their results and
// folds them into one SecurityContext. A failed or timed-out check
// contributes a fixed penalty; it never aborts the evaluation. The
// join itself is deadline-bounded: a check that ignores its context
// and never returns is abandoned at the deadline, not waited on.
func (e *engine) runChecks(ctx context.Context, req *security.RequestDescriptor) *security.Context {
	started := time.Now()
	outcomes := make(chan checkOutcome, len(e.checks))
	pending := make(map[string]bool, len(e.checks))

	for _, check := range e.checks {
		pending[check.Name()] = true
		go func(check Check) {
			checkStart := time.Now()

			checkCtx, cancel := context.WithTimeout(ctx, e.config.CheckTimeout)
			defer cancel()

			outcome := checkOutcome{name: check.Name()}
			func() {
				defer func() {
					if r := recover(); r != nil {
						outcome.err = fmt.Errorf("check panicked: %v", r)
					}
				}()
				outcome.result, outcome.err = check.Run(checkCtx, req)
			}()
			if outcome.err == nil && checkCtx.Err() != nil {
				outcome.err = checkCtx.Err()
			}
			outcome.duration = time.Since(checkStart)
			outcomes <- outcome
		}(check)
	}

	deadline := time.NewTimer(e.config.CheckTimeout + checkCollectGrace)
	defer deadline.Stop()

	collected := make([]checkOutcome, 0, len(e.checks))
collect:
	for len(collected) < len(e.checks) {
		select {
		case outcome := <-outcomes:
			delete(pending, outcome.name)
			collected = append(collected, outcome)
		case <-deadline.C:
			for name := range pending {
				collected = append(collected, checkOutcome{
					name:     name,
					err:      fmt.Errorf("check did not return within %s", e.config.CheckTimeout+checkCollectGrace),
					duration: time.Since(started),
				})
			}
			break collect
		}
	}

	secCtx := &security.Context{
		ComplianceStatus: security.ComplianceCompliant,
		Details:          make(map[string]interface{}),
	}

	total := 0
	for _, outcome := range collected {
		record := security.CheckRecord{
			Name:     outcome.name,
			Duration: outcome.duration,
		}

		if outcome.err != nil {
			record.Passed = false
			record.RiskDelta = DeltaCheckFailure
			record.Error = outcome.err.Error()
			total += DeltaCheckFailure
			secCtx.Details[outcome.name+"_error"] = outcome.err.Error()
			secCtx.Recommendations = append(secCtx.Recommendations,
				fmt.Sprintf("%s check could not complete; risk assumed", outcome.name))
			e.logger.Warn("risk check failed",
				zap.String("check", outcome.name),
				zap.Error(outcome.err))
		} else {
			record.Passed = outcome.result.Passed
			record.RiskDelta = outcome.result.RiskDelta
			total += outcome.result.RiskDelta

			if outcome.result.Authenticated {
				secCtx.Authenticated = true
				secCtx.Identity = outcome.result.Identity
			}
			if outcome.result.Compliance != "" && outcome.result.Compliance.Worse(secCtx.ComplianceStatus) {
				secCtx.ComplianceStatus = outcome.result.Compliance
			}
			secCtx.Recommendations = append(secCtx.Recommendations, outcome.result.Recommendations...)
			if len(outcome.result.Details) > 0 {
				secCtx.Details[outcome.name] = outcome.result.Details
			}
		}
		secCtx.ChecksPerformed = append(secCtx.ChecksPerformed, record)
	}

	secCtx.RiskScore = values.ClampRiskScore(total)
	secCtx.ThreatLevel = security.ThreatLevelFor(secCtx.RiskScore)
	return secCtx
}

func (e *engine) decide(secCtx *security.Context) *Decision {
	blocked := secCtx.Blocked()

	summary, _ := json.Marshal(map[string]interface{}{
		"risk_score":        secCtx.RiskScore.Int(),
		"threat_level":      secCtx.ThreatLevel,
		"compliance_status": secCtx.ComplianceStatus,
	})

	headers := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
		"X-Security-Evaluation":     string(summary),
	}

	status := http.StatusOK
	if blocked {
		status = http.StatusForbidden
	}
	return &Decision{
		Allowed:    !blocked,
		StatusCode: status,
		Headers:    headers,
		Context:    secCtx,
	}
}

// emitAudit records exactly one event per evaluation, blocked or not
func (e *engine) emitAudit(ctx context.Context, req *security.RequestDescriptor, secCtx *security.Context, decision *Decision) {
	eventType := domainaudit.EventRequestEvaluated
	outcome := domainaudit.OutcomeSuccess
	category := domainaudit.CategoryDataAccess

	failClosed, _ := secCtx.Details["fail_closed"].(bool)
	switch {
	case failClosed:
		eventType = domainaudit.EventRequestBlocked
		outcome = domainaudit.OutcomeFailure
		category = domainaudit.CategorySecurity
	case !decision.Allowed:
		eventType = domainaudit.EventRequestBlocked
		outcome = domainaudit.OutcomeBlocked
		category = domainaudit.CategorySecurity
	}

	tenant := e.config.DefaultTenant
	var actorID, sessionID, subjectRecordID, correlationID, resource string
	if req != nil {
		if req.TenantID != "" {
			tenant = req.TenantID
		}
		sessionID = req.SessionID
		correlationID = req.CorrelationID
		resource = req.Path
	}
	if secCtx.Identity != nil {
		actorID = secCtx.Identity.Subject
		subjectRecordID = secCtx.Identity.SubjectRecordID
	}

	event, err := domainaudit.NewEvent(eventType, category, e.severityFor(secCtx.ThreatLevel), outcome, tenant)
	if err != nil {
		e.logger.Error("failed to build audit event", zap.Error(err))
		return
	}
	event.WithActor(actorID, sessionID).
		WithRisk(secCtx.RiskScore).
		WithSubjectRecord(subjectRecordID).
		WithDetail("checks_performed", secCtx.ChecksPerformed).
		WithDetail("compliance_status", secCtx.ComplianceStatus)
	event.Resource = resource
	event.CorrelationID = correlationID
	for k, v := range secCtx.Details {
		event.Details[k] = v
	}

	if _, err := e.trail.LogEvent(ctx, event); err != nil {
		e.logger.Error("failed to log evaluation audit event", zap.Error(err))
	}
}

func (e *engine) severityFor(level security.ThreatLevel) domainaudit.Severity {
	switch level {
	case security.ThreatCritical:
		return domainaudit.SeverityCritical
	case security.ThreatHigh:
		return domainaudit.SeverityHigh
	case security.ThreatMedium:
		return domainaudit.SeverityMedium
	default:
		return domainaudit.SeverityLow
	}
}
