package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
)

// Service is the durable, queryable audit trail plus the investigation
// workflow and retention sweep.
type Service interface {
	// LogEvent assigns identity, timestamp, retention and derived
	// flags, appends to the in-memory ring, and writes through to
	// durable storage. A durable-write failure never fails the call.
	LogEvent(ctx context.Context, event *audit.Event) (uuid.UUID, error)

	// GetEvents returns one filtered, sorted, paginated page
	GetEvents(ctx context.Context, filter audit.EventFilter) (*audit.EventPage, error)

	// GetAnalytics aggregates the filtered event population
	GetAnalytics(ctx context.Context, filter audit.EventFilter) (*audit.Analytics, error)

	// CreateInvestigation opens a manual investigation against an event
	CreateInvestigation(ctx context.Context, eventID uuid.UUID, requestedBy, reason string, priority audit.InvestigationPriority) (*audit.Investigation, error)

	// UpdateInvestigation applies an update; resolving back-fills the
	// originating event's investigation status and notes
	UpdateInvestigation(ctx context.Context, id uuid.UUID, update audit.InvestigationUpdate) (*audit.Investigation, error)

	// GetInvestigations lists investigations matching the filter
	GetInvestigations(ctx context.Context, filter audit.InvestigationFilter) ([]*audit.Investigation, error)

	// CleanupExpiredEvents removes every event past its retention
	// deadline with auto-delete set. Idempotent; safe alongside LogEvent.
	CleanupExpiredEvents(ctx context.Context) (int64, error)

	// Subscribe registers a real-time event handler. Handlers run
	// synchronously at log time; a panicking handler is isolated.
	Subscribe(name string, handler SubscriberFunc)

	// Flush retries failed durable writes; scheduled periodically
	Flush(ctx context.Context) int

	// Stop drains the writer and stops background work
	Stop()
}

// SubscriberFunc receives each logged event synchronously
type SubscriberFunc func(event *audit.Event)

// EventRepository is the durable store for audit events
type EventRepository interface {
	Insert(ctx context.Context, event *audit.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*audit.Event, error)
	Query(ctx context.Context, filter audit.EventFilter) ([]*audit.Event, int, error)
	UpdateInvestigationStatus(ctx context.Context, eventID uuid.UUID, status audit.InvestigationStatus, notes string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// InvestigationRepository is the durable store for investigations
type InvestigationRepository interface {
	Insert(ctx context.Context, inv *audit.Investigation) error
	Update(ctx context.Context, inv *audit.Investigation) error
	GetByID(ctx context.Context, id uuid.UUID) (*audit.Investigation, error)
	Query(ctx context.Context, filter audit.InvestigationFilter) ([]*audit.Investigation, error)
}
