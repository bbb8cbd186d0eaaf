package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	relayPublishTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trip_outbox_publish_total",
		Help: "Trip events relayed from the outbox to the event channel.",
	})
	relayFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trip_outbox_fail_total",
		Help: "Relay failures after exhausting publish retries.",
	})
	relayLagSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trip_outbox_lag_seconds",
		Help: "Age of the oldest event relayed in the last batch.",
	})
)

// RelayConfig defines tunables for the relay loop.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	RetryMax     int
}

type natsPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Relay drains unpublished trip events from the trip_outbox table and
// publishes them to NATS. Rows are claimed with FOR UPDATE SKIP LOCKED so
// several relay instances can run against the same database; publishing is
// at-least-once because a crash between publish and mark re-delivers.
type Relay struct {
	db        *sql.DB
	publisher natsPublisher
	logger    *zap.Logger
	cfg       RelayConfig
	tracer    trace.Tracer
}

// NewRelay constructs the relay.
func NewRelay(db *sql.DB, conn *nats.Conn, logger *zap.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		db:     db,
		logger: logger,
		cfg:    cfg,
		tracer: otel.Tracer("ridematch.outbox"),
	}
	if conn != nil {
		r.publisher = conn
	}
	return r
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.db == nil || r.publisher == nil {
		return errors.New("outbox relay requires database and NATS connection")
	}
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := r.relayBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox batch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type outboxRow struct {
	ID        int64
	Subject   string
	Payload   []byte
	CreatedAt time.Time
}

func (r *Relay) relayBatch(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "outbox.batch")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	rows, err := r.loadPending(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(rows) == 0 {
		return tx.Commit()
	}

	ids := make([]int64, 0, len(rows))
	oldest := rows[0].CreatedAt
	for _, row := range rows {
		if err := r.publishWithRetry(ctx, row); err != nil {
			_ = tx.Rollback()
			return err
		}
		ids = append(ids, row.ID)
		relayPublishTotal.Inc()
		if row.CreatedAt.Before(oldest) {
			oldest = row.CreatedAt
		}
	}
	relayLagSeconds.Set(time.Since(oldest).Seconds())

	if err := r.markPublished(ctx, tx, ids); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Relay) loadPending(ctx context.Context, tx *sql.Tx) ([]outboxRow, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, subject, payload, created_at FROM trip_outbox
		 WHERE NOT published ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`, r.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	var pending []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.ID, &row.Subject, &row.Payload, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return pending, nil
}

func (r *Relay) markPublished(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := markPublishedQuery(ids)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func markPublishedQuery(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return fmt.Sprintf("UPDATE trip_outbox SET published = true WHERE id IN (%s)", strings.Join(placeholders, ",")), args
}

func (r *Relay) publishWithRetry(ctx context.Context, row outboxRow) error {
	ctx, span := r.tracer.Start(ctx, "outbox.publish")
	defer span.End()

	if row.Subject == "" {
		return fmt.Errorf("outbox row %d missing subject", row.ID)
	}
	msg := nats.NewMsg(row.Subject)
	msg.Data = row.Payload
	if sc := span.SpanContext(); sc.IsValid() {
		msg.Header.Set("traceparent", fmt.Sprintf("00-%s-%s-01", sc.TraceID(), sc.SpanID()))
	}

	for attempt := 1; ; attempt++ {
		err := r.publisher.PublishMsg(msg)
		if err == nil {
			return nil
		}
		r.logger.Warn("publish failed", zap.Error(err), zap.Int("attempt", attempt), zap.Int64("outbox_id", row.ID))
		if attempt >= r.cfg.RetryMax {
			relayFailTotal.Inc()
			return fmt.Errorf("publish outbox %d: %w", row.ID, err)
		}
		backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
