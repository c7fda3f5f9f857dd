package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"auctionhouse/internal/logging"
	"auctionhouse/internal/metrics"
)

// Postgres is a Queue backed by a `jobs` table, claimed with
// `FOR UPDATE SKIP LOCKED` so multiple workers can poll the same table
// without claiming the same job twice (spec.md §4.3, multi-worker
// scaling). The poll cadence is driven by robfig/cron's "@every"
// descriptor, the same scheduling primitive the pack's Telegram-bot
// example uses for its periodic jobs.
type Postgres struct {
	pool        *pgxpool.Pool
	pollEvery   time.Duration
	baseBackoff time.Duration
}

// NewPostgres creates a table-backed Queue over pool.
func NewPostgres(pool *pgxpool.Pool, pollEvery, baseBackoff time.Duration) *Postgres {
	return &Postgres{pool: pool, pollEvery: pollEvery, baseBackoff: baseBackoff}
}

// Schema is the table this backend requires; applied by `auctionctl migrate`.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}',
	run_at      TIMESTAMPTZ NOT NULL,
	attempts    INT NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'scheduled',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobs_due_idx ON jobs (status, run_at);
`

func (p *Postgres) Schedule(ctx context.Context, id string, kind Kind, payload map[string]string, runAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal payload for %s: %w", id, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, payload, run_at, status)
		VALUES ($1, $2, $3, $4, 'scheduled')
		ON CONFLICT (id) DO NOTHING
	`, id, string(kind), body, runAt)
	if err != nil {
		return fmt.Errorf("queue: schedule %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) Reschedule(ctx context.Context, id string, newRunAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE jobs SET run_at = $2, status = 'scheduled', updated_at = now()
		WHERE id = $1
	`, id, newRunAt)
	if err != nil {
		return fmt.Errorf("queue: reschedule %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) Cancel(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE jobs SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return fmt.Errorf("queue: cancel %s: %w", id, err)
	}
	return nil
}

// Run starts a robfig/cron scheduler that polls for due jobs every
// pollEvery and hands each claimed job to handler.
func (p *Postgres) Run(ctx context.Context, handler Handler) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", p.pollEvery), func() {
		p.claimAndRun(ctx, handler)
	})
	if err != nil {
		logging.Error("queue: failed to schedule poller", map[string]any{"error": err.Error()})
		return
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

func (p *Postgres) claimAndRun(ctx context.Context, handler Handler) {
	for {
		claimed, ok := p.claimOne(ctx)
		if !ok {
			return
		}
		err := handler(ctx, claimed)
		p.settle(ctx, claimed, err)
	}
}

func (p *Postgres) claimOne(ctx context.Context) (Job, bool) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		logging.Error("queue: begin claim tx failed", map[string]any{"error": err.Error()})
		return Job{}, false
	}
	defer tx.Rollback(ctx)

	var (
		id       string
		kind     string
		payload  []byte
		attempts int
	)
	err = tx.QueryRow(ctx, `
		SELECT id, kind, payload, attempts FROM jobs
		WHERE status = 'scheduled' AND run_at <= now()
		ORDER BY run_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&id, &kind, &payload, &attempts)
	if err != nil {
		if err != pgx.ErrNoRows {
			logging.Error("queue: claim query failed", map[string]any{"error": err.Error()})
		}
		return Job{}, false
	}

	attempts++
	if _, err := tx.Exec(ctx, `UPDATE jobs SET status = 'running', attempts = $2, updated_at = now() WHERE id = $1`, id, attempts); err != nil {
		logging.Error("queue: claim update failed", map[string]any{"error": err.Error()})
		return Job{}, false
	}
	if err := tx.Commit(ctx); err != nil {
		logging.Error("queue: claim commit failed", map[string]any{"error": err.Error()})
		return Job{}, false
	}

	var pl map[string]string
	_ = json.Unmarshal(payload, &pl)
	return Job{ID: id, Kind: Kind(kind), Payload: pl, Attempts: attempts, Status: JobRunning}, true
}

func (p *Postgres) settle(ctx context.Context, job Job, err error) {
	if err == nil {
		if _, execErr := p.pool.Exec(ctx, `UPDATE jobs SET status = 'done', updated_at = now() WHERE id = $1`, job.ID); execErr != nil {
			logging.Error("queue: mark done failed", map[string]any{"job_id": job.ID, "error": execErr.Error()})
		}
		return
	}
	if job.Attempts >= maxAttemptsFor(job.Kind) {
		if _, execErr := p.pool.Exec(ctx, `UPDATE jobs SET status = 'failed', updated_at = now() WHERE id = $1`, job.ID); execErr != nil {
			logging.Error("queue: mark failed failed", map[string]any{"job_id": job.ID, "error": execErr.Error()})
		}
		return
	}
	delay := p.baseBackoff * (1 << uint(job.Attempts-1))
	if _, execErr := p.pool.Exec(ctx, `UPDATE jobs SET status = 'scheduled', run_at = $2, updated_at = now() WHERE id = $1`, job.ID, time.Now().Add(delay)); execErr != nil {
		logging.Error("queue: reschedule after failure failed", map[string]any{"job_id": job.ID, "error": execErr.Error()})
	}
	metrics.JobRetries.WithLabelValues(string(job.Kind)).Inc()
}
