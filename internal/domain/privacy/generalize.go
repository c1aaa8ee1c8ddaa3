package privacy

import (
	"fmt"
	"math"
	"time"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

// GeoPrecision selects how coarsely coordinates are rounded
type GeoPrecision string

const (
	GeoRegion       GeoPrecision = "region"       // ~1 degree
	GeoCity         GeoPrecision = "city"         // ~0.1 degree
	GeoNeighborhood GeoPrecision = "neighborhood" // ~0.01 degree
)

// GeneralizeCoordinate rounds a latitude/longitude value to the
// configured precision tier so a point can no longer identify an
// address.
func GeneralizeCoordinate(value float64, precision GeoPrecision) (float64, error) {
	var unit float64
	switch precision {
	case GeoRegion:
		unit = 1
	case GeoCity:
		unit = 0.1
	case GeoNeighborhood:
		unit = 0.01
	default:
		return 0, errors.NewValidationError("INVALID_GEO_PRECISION",
			"unknown geographic precision: "+string(precision))
	}
	return math.Round(value/unit) * unit, nil
}

// DateGranularity selects how much of a date survives truncation
type DateGranularity string

const (
	DateYear  DateGranularity = "year"
	DateMonth DateGranularity = "month"
	DateWeek  DateGranularity = "week"
	DateDay   DateGranularity = "day"
)

// TruncateDate drops date components finer than the granularity.
// Week truncation snaps to the preceding Monday.
func TruncateDate(t time.Time, granularity DateGranularity) (time.Time, error) {
	t = t.UTC()
	switch granularity {
	case DateYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC), nil
	case DateMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case DateWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset), nil
	case DateDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, errors.NewValidationError("INVALID_DATE_GRANULARITY",
			"unknown date granularity: "+string(granularity))
	}
}

// BucketAge maps an exact age into a fixed-width range label such as
// "30-39". Width must be positive.
func BucketAge(age, width int) (string, error) {
	if age < 0 {
		return "", errors.NewValidationError("INVALID_AGE", "age cannot be negative")
	}
	if width <= 0 {
		return "", errors.NewValidationError("INVALID_BUCKET_WIDTH", "age bucket width must be positive")
	}
	low := (age / width) * width
	return fmt.Sprintf("%d-%d", low, low+width-1), nil
}
