package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

// RetentionPeriod represents a time-based retention period for audit
// compliance. Periods are expressed in whole years; the per-severity
// defaults live in configuration, not here.
type RetentionPeriod struct {
	duration time.Duration
	years    int
}

const (
	MinRetentionYears = 1
	MaxRetentionYears = 100

	RetentionYear = 365 * 24 * time.Hour
)

// NewRetentionPeriodFromYears creates a RetentionPeriod from a number of years
func NewRetentionPeriodFromYears(years int) (RetentionPeriod, error) {
	if years < MinRetentionYears {
		return RetentionPeriod{}, errors.NewValidationError("RETENTION_TOO_SHORT",
			fmt.Sprintf("retention period must be at least %d year", MinRetentionYears))
	}
	if years > MaxRetentionYears {
		return RetentionPeriod{}, errors.NewValidationError("RETENTION_TOO_LONG",
			fmt.Sprintf("retention period cannot exceed %d years", MaxRetentionYears))
	}
	return RetentionPeriod{
		duration: time.Duration(years) * RetentionYear,
		years:    years,
	}, nil
}

// MustNewRetentionPeriodFromYears creates a RetentionPeriod, panicking
// on invalid input. For configuration defaults and tests.
func MustNewRetentionPeriodFromYears(years int) RetentionPeriod {
	period, err := NewRetentionPeriodFromYears(years)
	if err != nil {
		panic(err)
	}
	return period
}

// Duration returns the retention period as a time.Duration
func (p RetentionPeriod) Duration() time.Duration {
	return p.duration
}

// Years returns the retention period in whole years
func (p RetentionPeriod) Years() int {
	return p.years
}

// RetainUntil computes the retention deadline from a base timestamp.
// Deadlines land on the calendar anniversary, not a fixed duration.
func (p RetentionPeriod) RetainUntil(from time.Time) time.Time {
	return from.AddDate(p.years, 0, 0)
}

// Longer reports whether this period outlasts the other
func (p RetentionPeriod) Longer(other RetentionPeriod) bool {
	return p.years > other.years
}

// IsZero reports whether the period is unset
func (p RetentionPeriod) IsZero() bool {
	return p.duration == 0
}

func (p RetentionPeriod) String() string {
	return fmt.Sprintf("%dy", p.years)
}

// MarshalJSON implements json.Marshaler
func (p RetentionPeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.years)
}

// UnmarshalJSON implements json.Unmarshaler
func (p *RetentionPeriod) UnmarshalJSON(data []byte) error {
	var years int
	if err := json.Unmarshal(data, &years); err != nil {
		return err
	}
	period, err := NewRetentionPeriodFromYears(years)
	if err != nil {
		return err
	}
	*p = period
	return nil
}

// Value implements driver.Valuer for database storage
func (p RetentionPeriod) Value() (driver.Value, error) {
	return int64(p.years), nil
}

// Scan implements sql.Scanner for database retrieval
func (p *RetentionPeriod) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		period, err := NewRetentionPeriodFromYears(int(v))
		if err != nil {
			return err
		}
		*p = period
		return nil
	case nil:
		*p = RetentionPeriod{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into RetentionPeriod", src)
	}
}
