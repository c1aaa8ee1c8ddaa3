package risk

import "time"

// Risk deltas contributed by the evaluation checks. Additive; the
// composite score is clamped into [0, 100].
const (
	// Authentication
	DeltaUnauthenticated = 20
	DeltaUnverifiedToken = 30
	DeltaClaimWarnings   = 10

	// Compliance
	DeltaComplianceViolation = 40
	DeltaComplianceWarning   = 10

	// Heuristic request validation, capped as a group
	DeltaRateExceeded       = 25
	DeltaBadIPReputation    = 15
	DeltaMissingFingerprint = 10
	HeuristicGroupCap       = 50

	// Threat patterns, accumulating without an individual cap
	DeltaSQLInjection  = 40
	DeltaXSS           = 35
	DeltaPathTraversal = 30
	DeltaSuspiciousUA  = 25

	// A check that errors or times out contributes a fixed penalty.
	DeltaCheckFailure = 30
)

const (
	DefaultCheckTimeout = 2 * time.Second

	// checkCollectGrace extends the result-collection deadline past
	// the per-check timeout so checks that honored their context can
	// still deliver. A check silent past it is abandoned and scored
	// as a failure.
	checkCollectGrace = 250 * time.Millisecond
)

// Check names recorded in SecurityContext.ChecksPerformed
const (
	CheckAuthentication = "authentication"
	CheckCompliance     = "compliance"
	CheckHeuristics     = "request_heuristics"
	CheckThreats        = "threat_detection"
)
