package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
)

func (t *Trail) GetEvents(ctx context.Context, filter audit.EventFilter) (*audit.EventPage, error) {
	ctx, span := t.tracer.Start(ctx, "audit.get_events")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	matched, err := t.collect(ctx, filter)
	if err != nil {
		return nil, err
	}

	filter.Sort(matched)
	page := filter.Page(matched)

	return &audit.EventPage{
		Events: page,
		Total:  len(matched),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}, nil
}

// collect gathers the filtered events, serving from the ring when it
// covers the requested range. Otherwise durable storage answers, with
// resident events still in flight to the writer merged on top so a
// queued write is never invisible.
func (t *Trail) collect(ctx context.Context, filter audit.EventFilter) ([]*audit.Event, error) {
	snapshot := t.ring.Snapshot()

	matched := make([]*audit.Event, 0)
	for _, e := range snapshot {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	if t.ringCovers(snapshot, filter) {
		return matched, nil
	}

	events, _, err := t.events.Query(ctx, filter)
	if err != nil {
		return nil, errors.NewStorageReadError("audit event query failed").WithCause(err)
	}

	seen := make(map[uuid.UUID]struct{}, len(events))
	for _, e := range events {
		seen[e.ID] = struct{}{}
	}
	for _, e := range matched {
		if _, ok := seen[e.ID]; !ok {
			events = append(events, e)
		}
	}
	return events, nil
}

// ringCovers reports whether the resident window fully contains the
// filter's time range. The ring only stands alone when it provably
// holds everything: nothing predated it at startup, nothing has been
// evicted, or the filter starts after the oldest resident event.
func (t *Trail) ringCovers(snapshot []*audit.Event, filter audit.EventFilter) bool {
	if len(snapshot) == 0 {
		return false
	}
	if !t.durableHistory && t.ring.Len() < t.config.RingSize {
		return true
	}
	oldest := snapshot[0].Timestamp
	return !filter.From.IsZero() && !filter.From.Before(oldest)
}
