package values

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

func TestNewRetentionPeriodFromYears(t *testing.T) {
	tests := []struct {
		name     string
		years    int
		wantErr  bool
		wantCode string
	}{
		{name: "one year minimum", years: 1},
		{name: "statutory decade", years: 10},
		{name: "upper bound", years: 100},
		{name: "zero years", years: 0, wantErr: true, wantCode: "RETENTION_TOO_SHORT"},
		{name: "negative years", years: -3, wantErr: true, wantCode: "RETENTION_TOO_SHORT"},
		{name: "past the century cap", years: 101, wantErr: true, wantCode: "RETENTION_TOO_LONG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			period, err := NewRetentionPeriodFromYears(tt.years)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.years, period.Years())
			assert.False(t, period.IsZero())
		})
	}
}

func TestRetentionPeriodRetainUntil(t *testing.T) {
	period := MustNewRetentionPeriodFromYears(7)
	from := time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)

	// Calendar anniversaries, not 365-day blocks.
	assert.Equal(t, from.AddDate(7, 0, 0), period.RetainUntil(from))
}

func TestRetentionPeriodLonger(t *testing.T) {
	short := MustNewRetentionPeriodFromYears(1)
	long := MustNewRetentionPeriodFromYears(10)

	assert.True(t, long.Longer(short))
	assert.False(t, short.Longer(long))
	assert.False(t, long.Longer(long))
}

func TestRetentionPeriodJSON(t *testing.T) {
	period := MustNewRetentionPeriodFromYears(3)

	data, err := json.Marshal(period)
	require.NoError(t, err)
	assert.Equal(t, "3", string(data))

	var decoded RetentionPeriod
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.Years())

	assert.Error(t, json.Unmarshal([]byte("0"), &decoded))
}

func TestRetentionPeriodScan(t *testing.T) {
	var period RetentionPeriod
	require.NoError(t, period.Scan(int64(10)))
	assert.Equal(t, 10, period.Years())

	value, err := period.Value()
	require.NoError(t, err)
	assert.EqualValues(t, 10, value)

	require.NoError(t, period.Scan(nil))
	assert.True(t, period.IsZero())

	assert.Error(t, period.Scan("10"))
}
