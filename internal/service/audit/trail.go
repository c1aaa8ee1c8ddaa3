package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/audit"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/values"
	"github.com/davidleathers/healthcare-security-pipeline/internal/metrics"
)

const (
	defaultRingSize        = 50000
	defaultWriterQueueSize = 4096
	defaultWriteTimeout    = 5 * time.Second
)

// Config configures the audit trail service. The retention years per
// severity and sensitivity are policy constants surfaced as config.
type Config struct {
	RingSize        int
	WriterQueueSize int
	WriteTimeout    time.Duration

	// RetentionYears maps event severity to retention years.
	RetentionYears map[audit.Severity]int
	// SensitivityYears maps data sensitivity to a retention floor that
	// can extend the severity-based period, never shorten it.
	SensitivityYears map[audit.Sensitivity]int

	// InvestigationRiskThreshold is the normalized risk score at or
	// above which an event is flagged for investigation.
	InvestigationRiskThreshold float64
}

// DefaultConfig returns the default retention and buffering policy
func DefaultConfig() Config {
	return Config{
		RingSize:        defaultRingSize,
		WriterQueueSize: defaultWriterQueueSize,
		WriteTimeout:    defaultWriteTimeout,
		RetentionYears: map[audit.Severity]int{
			audit.SeverityCritical: 10,
			audit.SeverityHigh:     7,
			audit.SeverityMedium:   3,
			audit.SeverityLow:      1,
		},
		SensitivityYears: map[audit.Sensitivity]int{
			audit.SensitivityRestricted:   10,
			audit.SensitivityConfidential: 7,
		},
		InvestigationRiskThreshold: 0.8,
	}
}

type subscriber struct {
	name    string
	handler SubscriberFunc
}

// Trail implements the Service interface
type Trail struct {
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	events         EventRepository
	investigations InvestigationRepository

	retention        map[audit.Severity]values.RetentionPeriod
	sensitivityFloor map[audit.Sensitivity]values.RetentionPeriod

	ring    *eventRing
	writeCh chan *audit.Event

	// durableHistory is set when the store already held events at
	// startup. The ring then never represents the full history, no
	// matter how empty it is.
	durableHistory bool

	retryMu sync.Mutex
	retry   []*audit.Event

	subMu       sync.RWMutex
	subscribers []subscriber

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running int32

	nowFunc func() time.Time
}

// NewTrail creates and starts the audit trail service
func NewTrail(ctx context.Context, config Config, logger *zap.Logger, events EventRepository, investigations InvestigationRepository) (*Trail, error) {
	if events == nil {
		return nil, errors.NewValidationError("MISSING_REPOSITORY", "event repository is required")
	}
	if investigations == nil {
		return nil, errors.NewValidationError("MISSING_REPOSITORY", "investigation repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RingSize <= 0 {
		config.RingSize = defaultRingSize
	}
	if config.WriterQueueSize <= 0 {
		config.WriterQueueSize = defaultWriterQueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if len(config.RetentionYears) == 0 {
		config.RetentionYears = DefaultConfig().RetentionYears
	}
	if config.InvestigationRiskThreshold <= 0 {
		config.InvestigationRiskThreshold = 0.8
	}

	retention, err := resolveRetention(config.RetentionYears)
	if err != nil {
		return nil, err
	}
	floors, err := resolveRetention(config.SensitivityYears)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &Trail{
		config:           config,
		logger:           logger,
		tracer:           otel.Tracer("service.audit"),
		events:           events,
		investigations:   investigations,
		retention:        retention,
		sensitivityFloor: floors,
		ring:             newEventRing(config.RingSize),
		writeCh:          make(chan *audit.Event, config.WriterQueueSize),
		ctx:              ctx,
		cancel:           cancel,
		nowFunc:          time.Now,
	}

	// A restarted trail starts with an empty ring over a populated
	// store; queries must know the ring is not the whole history.
	if _, total, err := events.Query(ctx, audit.EventFilter{Limit: 1}); err != nil || total > 0 {
		t.durableHistory = true
	}

	atomic.StoreInt32(&t.running, 1)

	t.wg.Add(1)
	go t.writer()

	return t, nil
}

func (t *Trail) LogEvent(ctx context.Context, event *audit.Event) (uuid.UUID, error) {
	ctx, span := t.tracer.Start(ctx, "audit.log_event")
	defer span.End()

	if event == nil {
		return uuid.Nil, errors.NewValidationError("MISSING_EVENT", "event is required")
	}

	now := t.nowFunc().UTC()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	// RequiresInvestigation must be derived before retention: events
	// under investigation are exempt from auto-delete.
	event.RequiresInvestigation = t.requiresInvestigation(event)
	event.Retention = t.retentionFor(event)
	event.Tags = t.tagsFor(event)

	if event.RequiresInvestigation {
		t.autoCreateInvestigation(ctx, event)
	}

	// The in-memory copy is authoritative until the durable write
	// lands; the ring append happens before the write is even queued.
	t.ring.Append(event)
	t.enqueueWrite(event)
	t.notifySubscribers(event)

	metrics.RecordAuditEvent(string(event.Category), string(event.Severity), string(event.Outcome))
	return event.ID, nil
}

func (t *Trail) Subscribe(name string, handler SubscriberFunc) {
	if handler == nil {
		return
	}
	t.subMu.Lock()
	t.subscribers = append(t.subscribers, subscriber{name: name, handler: handler})
	t.subMu.Unlock()
}

// Flush retries failed durable writes and returns how many landed
func (t *Trail) Flush(ctx context.Context) int {
	t.retryMu.Lock()
	pending := t.retry
	t.retry = nil
	t.retryMu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	flushed := 0
	var failed []*audit.Event
	for _, event := range pending {
		if err := t.storeWrite(ctx, event); err != nil {
			failed = append(failed, event)
			continue
		}
		flushed++
	}

	if len(failed) > 0 {
		t.retryMu.Lock()
		t.retry = append(t.retry, failed...)
		t.retryMu.Unlock()
		t.logger.Warn("audit flush left events pending",
			zap.Int("flushed", flushed),
			zap.Int("pending", len(failed)))
	}
	return flushed
}

// Stop drains the writer queue and stops background work
func (t *Trail) Stop() {
	if !atomic.CompareAndSwapInt32(&t.running, 1, 0) {
		return
	}
	t.cancel()
	t.wg.Wait()
}

// PendingWrites reports queued plus retryable events, for metrics
func (t *Trail) PendingWrites() int {
	t.retryMu.Lock()
	retries := len(t.retry)
	t.retryMu.Unlock()
	return len(t.writeCh) + retries
}

// writer consumes queued events and writes them through to storage.
// Failures are parked on the retry queue; the caller was never blocked.
func (t *Trail) writer() {
	defer t.wg.Done()
	for {
		select {
		case event := <-t.writeCh:
			if err := t.storeWrite(context.Background(), event); err != nil {
				t.parkForRetry(event, err)
			}
		case <-t.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case event := <-t.writeCh:
					if err := t.storeWrite(context.Background(), event); err != nil {
						t.parkForRetry(event, err)
					}
				default:
					return
				}
			}
		}
	}
}

func (t *Trail) storeWrite(ctx context.Context, event *audit.Event) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.WriteTimeout)
	defer cancel()
	return t.events.Insert(ctx, event)
}

func (t *Trail) parkForRetry(event *audit.Event, err error) {
	t.retryMu.Lock()
	t.retry = append(t.retry, event)
	pending := len(t.retry)
	t.retryMu.Unlock()

	t.logger.Error("audit durable write failed; event parked for retry",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.Int("pending", pending),
		zap.Error(err))
}

func (t *Trail) enqueueWrite(event *audit.Event) {
	if atomic.LoadInt32(&t.running) == 0 {
		t.parkForRetry(event, errors.NewStorageWriteError("audit writer stopped"))
		return
	}
	select {
	case t.writeCh <- event:
	default:
		// Queue full. The caller must not block, so the event goes
		// straight to the retry queue for the next flush.
		t.parkForRetry(event, errors.NewStorageWriteError("audit writer queue full"))
	}
}

func (t *Trail) notifySubscribers(event *audit.Event) {
	t.subMu.RLock()
	subs := t.subscribers
	t.subMu.RUnlock()

	for _, sub := range subs {
		t.invokeSubscriber(sub, event)
	}
}

// invokeSubscriber isolates one handler; a panic is logged and cannot
// affect other subscribers or the logging caller.
func (t *Trail) invokeSubscriber(sub subscriber, event *audit.Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("audit subscriber panicked",
				zap.String("subscriber", sub.name),
				zap.String("event_id", event.ID.String()),
				zap.Any("panic", r))
		}
	}()
	sub.handler(event)
}

// minimumRetention applies when a severity has no configured period.
var minimumRetention = values.MustNewRetentionPeriodFromYears(values.MinRetentionYears)

// resolveRetention validates a year map into retention periods.
// Non-positive entries are treated as unset.
func resolveRetention[K comparable](years map[K]int) (map[K]values.RetentionPeriod, error) {
	out := make(map[K]values.RetentionPeriod, len(years))
	for key, y := range years {
		if y <= 0 {
			continue
		}
		period, err := values.NewRetentionPeriodFromYears(y)
		if err != nil {
			return nil, err
		}
		out[key] = period
	}
	return out, nil
}

func (t *Trail) retentionFor(event *audit.Event) audit.RetentionPolicy {
	period, ok := t.retention[event.Severity]
	if !ok {
		period = minimumRetention
	}
	if floor, ok := t.sensitivityFloor[event.DataSensitivity]; ok && floor.Longer(period) {
		period = floor
	}
	return audit.RetentionPolicy{
		RetainUntil: period.RetainUntil(event.Timestamp),
		AutoDelete:  !event.RequiresInvestigation,
	}
}

func (t *Trail) requiresInvestigation(event *audit.Event) bool {
	if event.Severity == audit.SeverityCritical {
		return true
	}
	if event.RiskScore.Normalized() >= t.config.InvestigationRiskThreshold {
		return true
	}
	if event.Outcome == audit.OutcomeFailure {
		return true
	}
	return event.Category == audit.CategorySecurity
}

func (t *Trail) tagsFor(event *audit.Event) []string {
	tags := []string{
		string(event.Category),
		string(event.Severity),
	}
	if event.DataSensitivity != "" {
		tags = append(tags, string(event.DataSensitivity))
	}
	tags = append(tags, event.ComplianceFrameworks...)
	if event.SubjectRelated() {
		tags = append(tags, "subject-related")
	}
	return tags
}

func (t *Trail) autoCreateInvestigation(ctx context.Context, event *audit.Event) {
	inv, err := audit.NewInvestigation(event.ID, "system",
		"auto-created: "+string(event.Type), audit.PriorityForSeverity(event.Severity))
	if err != nil {
		t.logger.Error("failed to build auto investigation",
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return
	}
	if err := t.investigations.Insert(ctx, inv); err != nil {
		t.logger.Error("failed to persist auto investigation",
			zap.String("event_id", event.ID.String()),
			zap.String("investigation_id", inv.ID.String()),
			zap.Error(err))
		return
	}
	event.InvestigationStatus = audit.InvestigationPending
}
