package privacy

import (
	"context"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
)

// Service applies statistical anonymization to record batches and
// manages pseudonyms. Stateless per call except for the pseudonym
// mapping side-store; safe to run across batches in parallel.
type Service interface {
	// ApplyKAnonymity groups records by the quasi-identifier tuple,
	// generalizes groups of size >= k and suppresses smaller groups
	// whole. A partial group is never emitted.
	ApplyKAnonymity(ctx context.Context, records []privacy.Record, quasiIdentifiers []string, k int) (*privacy.AnonymizedDataset, error)

	// ApplyLDiversity re-groups a k-anonymous dataset and enforces at
	// least l distinct values per sensitive attribute in every emitted
	// group. Failing groups are further generalized and re-checked
	// against the original k; still-failing groups are suppressed.
	ApplyLDiversity(ctx context.Context, dataset *privacy.AnonymizedDataset, sensitiveAttributes []string, l, k int) (*privacy.AnonymizedDataset, error)

	// AddDifferentialPrivacy perturbs a scalar query result with
	// calibrated Laplace or Gaussian noise.
	AddDifferentialPrivacy(value, epsilon, sensitivity float64, mechanism Mechanism) (float64, error)

	// CreatePseudonym derives a pseudonym for the identifier. A
	// reversible pseudonym persists a mapping for authorized reversal;
	// an irreversible one uses a slow KDF and stores nothing.
	CreatePseudonym(ctx context.Context, identifier, purpose string, reversible bool) (*privacy.Pseudonym, error)

	// ReversePseudonym resolves a reversible pseudonym back to its
	// identifier. Fails closed without positive authorization, and
	// every successful reversal is audit-logged.
	ReversePseudonym(ctx context.Context, pseudonym, purpose string, auth Authorization) (string, error)

	// GeneralizeRecords applies field-level generalization rules
	// (coordinate rounding, date truncation, age bucketing) to a
	// batch. Input records are never mutated.
	GeneralizeRecords(ctx context.Context, records []privacy.Record, rules []GeneralizeRule) ([]privacy.Record, error)
}

// GeneralizeRule coarsens a single field. Exactly one of Precision,
// Granularity or BucketWidth applies, selected by Kind.
type GeneralizeRule struct {
	Field string             `json:"field"`
	Kind  GeneralizationKind `json:"kind"`

	Precision   privacy.GeoPrecision    `json:"precision,omitempty"`
	Granularity privacy.DateGranularity `json:"granularity,omitempty"`
	BucketWidth int                     `json:"bucket_width,omitempty"`
}

// GeneralizationKind selects the generalization applied by a rule
type GeneralizationKind string

const (
	GeneralizeCoordinate GeneralizationKind = "coordinate"
	GeneralizeDate       GeneralizationKind = "date"
	GeneralizeAge        GeneralizationKind = "age"
)

// Mechanism selects the differential-privacy noise distribution
type Mechanism string

const (
	MechanismLaplace  Mechanism = "laplace"
	MechanismGaussian Mechanism = "gaussian"
)

// Authorization identifies who is asking for a pseudonym reversal
type Authorization struct {
	ActorID string
	Purpose string
	Grant   string
}

// Authorizer validates reversal requests. Implementations must default
// to deny.
type Authorizer interface {
	AuthorizeReversal(ctx context.Context, auth Authorization) bool
}

// PseudonymRepository is the secure side-store for reversible mappings
type PseudonymRepository interface {
	Insert(ctx context.Context, mapping *privacy.PseudonymMapping) error
	GetByPseudonym(ctx context.Context, pseudonym, purpose string) (*privacy.PseudonymMapping, error)
}
