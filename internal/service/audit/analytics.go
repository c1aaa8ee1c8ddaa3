package audit

import (
	"context"
	"time"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
)

func (t *Trail) GetAnalytics(ctx context.Context, filter audit.EventFilter) (*audit.Analytics, error) {
	ctx, span := t.tracer.Start(ctx, "audit.get_analytics")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	events, err := t.collect(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := t.nowFunc().UTC()
	analytics := &audit.Analytics{
		TotalEvents: int64(len(events)),
		ByType:      make(map[audit.EventType]int64),
		ByCategory:  make(map[audit.Category]int64),
		BySeverity:  make(map[audit.Severity]int64),
		ByActor:     make(map[string]int64),
		ByDay:       make(map[string]int64),
		GeneratedAt: now,
	}

	var compliant int64
	for _, e := range events {
		analytics.ByType[e.Type]++
		analytics.ByCategory[e.Category]++
		analytics.BySeverity[e.Severity]++
		if e.ActorID != "" {
			analytics.ByActor[e.ActorID]++
		}
		analytics.ByDay[e.Timestamp.UTC().Format("2006-01-02")]++
		analytics.RiskHistogram.Observe(e.RiskScore.Normalized())

		if e.Outcome == audit.OutcomeSuccess && e.HasTag(string(audit.CategoryCompliance)) {
			compliant++
		}
	}

	if len(events) > 0 {
		analytics.ComplianceScore = float64(compliant) / float64(len(events))
	} else {
		analytics.ComplianceScore = 1.0
	}

	analytics.Trends = audit.Trends{
		DayOverDay:     t.periodDelta(events, now, 24*time.Hour),
		WeekOverWeek:   t.periodDelta(events, now, 7*24*time.Hour),
		MonthOverMonth: t.periodDelta(events, now, 30*24*time.Hour),
	}

	return analytics, nil
}

// periodDelta counts events in [now-period, now) against the preceding
// period of the same length.
func (t *Trail) periodDelta(events []*audit.Event, now time.Time, period time.Duration) audit.PeriodDelta {
	currentStart := now.Add(-period)
	previousStart := now.Add(-2 * period)

	var current, previous int64
	for _, e := range events {
		ts := e.Timestamp
		switch {
		case !ts.Before(currentStart) && ts.Before(now):
			current++
		case !ts.Before(previousStart) && ts.Before(currentStart):
			previous++
		}
	}
	return audit.NewPeriodDelta(current, previous)
}
