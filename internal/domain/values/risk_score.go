package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

// RiskScore represents a bounded 0-100 composite risk score.
// The zero value is a valid score of zero risk.
type RiskScore struct {
	value int
}

const (
	MinRiskScore = 0
	MaxRiskScore = 100

	// Threat-level thresholds on the 0-100 scale.
	ThresholdMedium   = 30
	ThresholdHigh     = 60
	ThresholdCritical = 80
)

// NewRiskScore creates a RiskScore value object with validation
func NewRiskScore(value int) (RiskScore, error) {
	if value < MinRiskScore || value > MaxRiskScore {
		return RiskScore{}, errors.NewValidationError("INVALID_RISK_SCORE",
			fmt.Sprintf("risk score must be between %d and %d, got %d", MinRiskScore, MaxRiskScore, value))
	}
	return RiskScore{value: value}, nil
}

// ClampRiskScore builds a RiskScore from an unbounded sum of risk
// deltas, clamping into [0, 100]. Used when accumulating additive
// signals where overflow past 100 is expected.
func ClampRiskScore(value int) RiskScore {
	if value < MinRiskScore {
		value = MinRiskScore
	}
	if value > MaxRiskScore {
		value = MaxRiskScore
	}
	return RiskScore{value: value}
}

// MustNewRiskScore creates a RiskScore, panicking on invalid input.
// For use in tests and static initialization only.
func MustNewRiskScore(value int) RiskScore {
	score, err := NewRiskScore(value)
	if err != nil {
		panic(err)
	}
	return score
}

// Int returns the raw 0-100 value
func (r RiskScore) Int() int {
	return r.value
}

// Normalized returns the score on a 0.0-1.0 scale
func (r RiskScore) Normalized() float64 {
	return float64(r.value) / float64(MaxRiskScore)
}

// Band returns the discretized threat band name for the score
func (r RiskScore) Band() string {
	switch {
	case r.value >= ThresholdCritical:
		return "critical"
	case r.value >= ThresholdHigh:
		return "high"
	case r.value >= ThresholdMedium:
		return "medium"
	default:
		return "low"
	}
}

// Add returns a new score with delta applied, clamped to the valid range
func (r RiskScore) Add(delta int) RiskScore {
	return ClampRiskScore(r.value + delta)
}

func (r RiskScore) String() string {
	return fmt.Sprintf("%d", r.value)
}

// Equal compares two risk scores
func (r RiskScore) Equal(other RiskScore) bool {
	return r.value == other.value
}

// MarshalJSON implements json.Marshaler
func (r RiskScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (r *RiskScore) UnmarshalJSON(data []byte) error {
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	score, err := NewRiskScore(value)
	if err != nil {
		return err
	}
	*r = score
	return nil
}

// Value implements driver.Valuer for database storage
func (r RiskScore) Value() (driver.Value, error) {
	return int64(r.value), nil
}

// Scan implements sql.Scanner for database retrieval
func (r *RiskScore) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		score, err := NewRiskScore(int(v))
		if err != nil {
			return err
		}
		*r = score
		return nil
	case nil:
		*r = RiskScore{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into RiskScore", src)
	}
}
