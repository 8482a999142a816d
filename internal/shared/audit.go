package shared

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent represents a record destined for audit_logs.
type AuditEvent struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditSink accepts structured audit events. Implementations must never
// block or return errors into the caller's critical path.
type AuditSink interface {
	Record(event AuditEvent)
}

// AuditLogger buffers events and writes them to audit_logs from a
// background goroutine. When the buffer is full new events are dropped and
// counted; the request path is never stalled by the audit trail.
type AuditLogger struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	events  chan AuditEvent
	dropped atomic.Int64
}

// NewAuditLogger returns an AuditLogger with the given buffer size.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger, buffer int) *AuditLogger {
	if buffer <= 0 {
		buffer = 256
	}
	return &AuditLogger{
		pool:   pool,
		logger: logger,
		events: make(chan AuditEvent, buffer),
	}
}

// Record enqueues the event without blocking.
func (l *AuditLogger) Record(event AuditEvent) {
	if l == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case l.events <- event:
	default:
		l.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (l *AuditLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Run drains the buffer until the context is cancelled. Write failures are
// logged and the event discarded; the audit trail is best effort by
// contract.
func (l *AuditLogger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-l.events:
			l.write(ctx, event)
		}
	}
}

func (l *AuditLogger) write(ctx context.Context, event AuditEvent) {
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		metaJSON = []byte("{}")
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ActorID, event.Action, event.Entity, event.EntityID, metaJSON, event.At)
	if err != nil && l.logger != nil {
		l.logger.Warn("audit write failed", slog.Any("error", err), slog.String("action", event.Action))
	}
}
