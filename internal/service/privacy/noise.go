package privacy

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

// Sensitivity presets for common query shapes.
const (
	// SensitivityCount is the L1 sensitivity of a counting query.
	SensitivityCount = 1.0
)

// SensitivitySum returns the sensitivity of a bounded-sum query over
// values clamped to [low, high].
func SensitivitySum(low, high float64) float64 {
	return math.Abs(high - low)
}

func (e *engine) AddDifferentialPrivacy(value, epsilon, sensitivity float64, mechanism Mechanism) (float64, error) {
	if epsilon <= 0 {
		return 0, errors.NewValidationError("INVALID_EPSILON",
			"privacy budget epsilon must be positive")
	}
	if sensitivity <= 0 {
		return 0, errors.NewValidationError("INVALID_SENSITIVITY",
			"query sensitivity must be positive")
	}

	switch mechanism {
	case MechanismLaplace:
		dist := distuv.Laplace{
			Mu:    0,
			Scale: sensitivity / epsilon,
		}
		return value + dist.Rand(), nil

	case MechanismGaussian:
		// sigma = sqrt(2 ln 1.25) * sensitivity / epsilon
		sigma := math.Sqrt(2*math.Log(1.25)) * sensitivity / epsilon
		dist := distuv.Normal{
			Mu:    0,
			Sigma: sigma,
		}
		return value + dist.Rand(), nil

	default:
		return 0, errors.NewValidationError("INVALID_MECHANISM",
			"mechanism must be laplace or gaussian")
	}
}
