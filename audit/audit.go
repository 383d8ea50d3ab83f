// Package audit provides buffered security-event logging for the access
// control pipeline and the OAuth flow engine. Events are appended
// concurrently, flushed in batches, and flushed synchronously for critical
// severities. Delivery is best-effort: events still buffered when the
// process is killed are lost, and that is an accepted failure mode.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies how security-relevant an event is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Layer identifies which defense layer produced an event.
type Layer int

const (
	LayerAuthentication Layer = 1
	LayerAuthorization  Layer = 2
	LayerOwnership      Layer = 3
	LayerRowSecurity    Layer = 4
)

// Event type constants. Kept as constants so call sites cannot drift.
const (
	EventAuthRequired        = "auth_required"
	EventPermissionDenied    = "permission_denied"
	EventRoleInsufficient    = "role_insufficient"
	EventOwnershipDenied     = "ownership_denied"
	EventAccessGranted       = "access_granted"
	EventPrivilegeEscalation = "privilege_escalation_attempt"
	EventRowSecurityDenied   = "row_security_denied"

	EventFlowStarted         = "authorization_flow_started"
	EventInvalidState        = "invalid_state"
	EventInvalidNonce        = "invalid_nonce"
	EventProviderMismatch    = "provider_mismatch"
	EventInvalidSession      = "invalid_session"
	EventTokenExchangeFailed = "token_exchange_failed"

	EventRateLimitExceeded = "rate_limit_exceeded"
)

// Event is one security audit record. Append-only; archival is external.
type Event struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Severity     Severity       `json:"severity"`
	Layer        Layer          `json:"layer,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Permission   string         `json:"permission,omitempty"`
	Route        string         `json:"route,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Details      map[string]any `json:"details,omitempty"`
}

// Sink receives flushed event batches.
type Sink interface {
	// Flush delivers a batch, blocking until delivered or failed.
	Flush(ctx context.Context, events []Event) error

	// FlushAsync delivers a batch without blocking and without reporting
	// the outcome. Used on shutdown paths where waiting is not an option.
	FlushAsync(events []Event)
}

const (
	// DefaultBufferCapacity triggers a flush when reached.
	DefaultBufferCapacity = 50

	// DefaultFlushInterval is the periodic flush cadence.
	DefaultFlushInterval = 5 * time.Second

	// maxRequeued bounds how many events a failed flush may put back.
	maxRequeued = 500
)

// Logger buffers events and flushes them to a Sink. Safe for concurrent
// use; the flush atomically swaps the buffer out before the (possibly
// slow) sink write, so events recorded during a flush land in a fresh
// buffer rather than being lost or duplicated.
type Logger struct {
	mu  sync.Mutex
	buf []Event

	sink     Sink
	logger   *slog.Logger
	capacity int
	interval time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Logger.
type Option func(*Logger)

// WithCapacity overrides the buffer capacity that triggers a flush.
func WithCapacity(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithFlushInterval overrides the periodic flush cadence.
func WithFlushInterval(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the slog logger used for flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLogger creates a Logger and starts its background flush goroutine.
// Call Close to stop it and drain the buffer.
func NewLogger(sink Sink, opts ...Option) *Logger {
	l := &Logger{
		sink:     sink,
		logger:   slog.Default(),
		capacity: DefaultBufferCapacity,
		interval: DefaultFlushInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.flushLoop()
	return l
}

// Record buffers an event. Critical-severity events flush the whole buffer
// synchronously; a full buffer flushes in the background.
func (l *Logger) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.buf = append(l.buf, event)
	full := len(l.buf) >= l.capacity
	l.mu.Unlock()

	if event.Severity == SeverityCritical {
		l.flush(ctx)
		return
	}
	if full {
		go l.flush(context.Background())
	}
}

// swap takes the current buffer contents, leaving a fresh buffer behind.
func (l *Logger) swap() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.buf
	l.buf = nil
	return batch
}

// flush delivers the swapped batch. On failure the batch is re-queued (up
// to maxRequeued events) for the next attempt; beyond that, events are
// dropped and counted in the error log.
func (l *Logger) flush(ctx context.Context) {
	batch := l.swap()
	if len(batch) == 0 {
		return
	}
	if err := l.sink.Flush(ctx, batch); err != nil {
		l.logger.Error("audit flush failed", "events", len(batch), "error", err)
		l.mu.Lock()
		if len(l.buf)+len(batch) <= maxRequeued {
			l.buf = append(batch, l.buf...)
		}
		l.mu.Unlock()
	}
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.flush(context.Background())
		case <-l.stop:
			return
		}
	}
}

// Close stops the flush goroutine and drains remaining events. It honors
// the context deadline; if the final synchronous flush fails or the
// deadline is exhausted, remaining events go out through the sink's
// non-blocking path as a last resort.
func (l *Logger) Close(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })

	select {
	case <-l.done:
	case <-ctx.Done():
	}

	batch := l.swap()
	if len(batch) == 0 {
		return nil
	}
	if err := l.sink.Flush(ctx, batch); err != nil {
		l.sink.FlushAsync(batch)
		return err
	}
	return nil
}
