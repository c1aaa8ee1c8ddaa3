package privacy

import (
	"time"

	"github.com/google/uuid"
)

// Record is one row of a dataset under anonymization. Values are the
// decoded JSON shapes: string, float64, bool, nil.
type Record map[string]interface{}

// Clone returns a shallow copy safe to generalize in place
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DatasetMetadata reports what the anonymization did to the batch
type DatasetMetadata struct {
	OriginalCount     int      `json:"original_count"`
	AnonymizedCount   int      `json:"anonymized_count"`
	SuppressedCount   int      `json:"suppressed_count"`
	GeneralizedFields []string `json:"generalized_fields,omitempty"`

	// KAnonymity is the smallest emitted group size; always >= the
	// configured k, because smaller groups are suppressed whole.
	KAnonymity int `json:"k_anonymity"`
	// LDiversity is the smallest distinct sensitive-value count across
	// emitted groups; zero when l-diversity was not applied.
	LDiversity int `json:"l_diversity"`

	// InformationLoss is 1 - anonymizedCount/originalCount.
	InformationLoss float64 `json:"information_loss"`
	// DataUtility is the retained fraction, 1 - InformationLoss.
	DataUtility float64 `json:"data_utility"`
}

// AnonymizedDataset is the transient output of an anonymization pass.
// The engine never persists it; the caller decides.
type AnonymizedDataset struct {
	Records  []Record        `json:"records"`
	Metadata DatasetMetadata `json:"metadata"`
}

// PseudonymAlgorithm names the derivation used for a pseudonym
type PseudonymAlgorithm string

const (
	AlgorithmHMACSHA256   PseudonymAlgorithm = "hmac-sha256"
	AlgorithmPBKDF2SHA256 PseudonymAlgorithm = "pbkdf2-sha256"
)

// Pseudonym is the caller-visible result of pseudonymization
type Pseudonym struct {
	Pseudonym  string             `json:"pseudonym"`
	Salt       string             `json:"salt"`
	Algorithm  PseudonymAlgorithm `json:"algorithm"`
	Reversible bool               `json:"reversible"`
}

// PseudonymMapping is the stored record allowing authorized reversal of
// a reversible pseudonym. Irreversible pseudonyms never get a mapping.
type PseudonymMapping struct {
	ID         uuid.UUID          `json:"id"`
	Pseudonym  string             `json:"pseudonym"`
	Identifier string             `json:"identifier"`
	Salt       string             `json:"salt"`
	Purpose    string             `json:"purpose"`
	Algorithm  PseudonymAlgorithm `json:"algorithm"`
	Reversible bool               `json:"reversible"`
	CreatedAt  time.Time          `json:"created_at"`
}
