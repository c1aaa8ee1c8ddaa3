package privacy

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	auditsvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/audit"
)

const (
	DefaultPBKDF2Iterations = 310000

	// sensitiveTruncateLen is how many leading characters survive the
	// l-diversity fallback generalization of string sensitive values.
	sensitiveTruncateLen = 3
)

// Config configures the anonymization engine
type Config struct {
	// PseudonymSecret keys the purpose-bound HMAC for reversible
	// pseudonyms. At least 32 bytes.
	PseudonymSecret []byte

	// PBKDF2Iterations tunes the irreversible KDF. Never below 100k.
	PBKDF2Iterations int

	// DefaultK and DefaultL substitute for an unspecified k or l.
	// When zero, callers must always pass explicit parameters.
	DefaultK int
	DefaultL int
}

// engine implements the Service interface
type engine struct {
	config     Config
	logger     *zap.Logger
	mappings   PseudonymRepository
	authorizer Authorizer
	trail      auditsvc.Service
}

// NewEngine creates an anonymization engine. The mapping repository,
// authorizer and audit trail are only required for reversible
// pseudonym support; pass nil to run the statistical algorithms alone.
func NewEngine(config Config, logger *zap.Logger, mappings PseudonymRepository, authorizer Authorizer, trail auditsvc.Service) (Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PBKDF2Iterations == 0 {
		config.PBKDF2Iterations = DefaultPBKDF2Iterations
	}
	if config.PBKDF2Iterations < 100000 {
		return nil, errors.NewValidationError("WEAK_KDF",
			"PBKDF2 iteration count must be at least 100000")
	}
	if len(config.PseudonymSecret) > 0 && len(config.PseudonymSecret) < 32 {
		return nil, errors.NewValidationError("WEAK_PSEUDONYM_SECRET",
			"pseudonym secret must be at least 32 bytes")
	}
	return &engine{
		config:     config,
		logger:     logger,
		mappings:   mappings,
		authorizer: authorizer,
		trail:      trail,
	}, nil
}

// groupKey builds a deterministic key from the given attribute values
func groupKey(record map[string]interface{}, attributes []string) string {
	parts := make([]string, len(attributes))
	for i, attr := range attributes {
		parts[i] = fmt.Sprintf("%v", record[attr])
	}
	return strings.Join(parts, "\x1f")
}

// asFloat extracts a numeric value from the decoded-JSON shapes
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sortedKeys returns map keys in a stable order
func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
