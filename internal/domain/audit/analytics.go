package audit

import "time"

// Analytics aggregates an event population for reporting.
// Risk histogram buckets sit at the normalized 0.3/0.6/0.8 boundaries,
// matching the threat-level thresholds.
type Analytics struct {
	TotalEvents int64 `json:"total_events"`

	ByType     map[EventType]int64 `json:"by_type"`
	ByCategory map[Category]int64  `json:"by_category"`
	BySeverity map[Severity]int64  `json:"by_severity"`
	ByActor    map[string]int64    `json:"by_actor"`
	ByDay      map[string]int64    `json:"by_day"` // key: YYYY-MM-DD

	RiskHistogram RiskHistogram `json:"risk_histogram"`

	// ComplianceScore is successful-and-compliance-tagged over total,
	// in [0,1]. 1.0 when there are no events.
	ComplianceScore float64 `json:"compliance_score"`

	Trends Trends `json:"trends"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RiskHistogram buckets events by normalized risk score
type RiskHistogram struct {
	Low      int64 `json:"low"`      // [0, 0.3)
	Medium   int64 `json:"medium"`   // [0.3, 0.6)
	High     int64 `json:"high"`     // [0.6, 0.8)
	Critical int64 `json:"critical"` // [0.8, 1.0]
}

// Observe places one normalized score into its bucket
func (h *RiskHistogram) Observe(normalized float64) {
	switch {
	case normalized >= 0.8:
		h.Critical++
	case normalized >= 0.6:
		h.High++
	case normalized >= 0.3:
		h.Medium++
	default:
		h.Low++
	}
}

// Trends carries period-over-period event-count deltas
type Trends struct {
	DayOverDay     PeriodDelta `json:"day_over_day"`
	WeekOverWeek   PeriodDelta `json:"week_over_week"`
	MonthOverMonth PeriodDelta `json:"month_over_month"`
}

// PeriodDelta compares the current period's event count with the prior one
type PeriodDelta struct {
	Current  int64   `json:"current"`
	Previous int64   `json:"previous"`
	Delta    int64   `json:"delta"`
	Percent  float64 `json:"percent"` // 0 when the previous period is empty
}

// NewPeriodDelta computes the delta between two period counts
func NewPeriodDelta(current, previous int64) PeriodDelta {
	d := PeriodDelta{
		Current:  current,
		Previous: previous,
		Delta:    current - previous,
	}
	if previous > 0 {
		d.Percent = float64(current-previous) / float64(previous) * 100
	}
	return d
}
