package eventbus

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"auctionhouse/internal/logging"
)

const notifyChannel = "auctionhouse_events"

// wireEvent is the JSON payload sent over LISTEN/NOTIFY.
type wireEvent struct {
	AuctionID string          `json:"auctionId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

// Postgres wraps a Memory bus and relays every Publish to the other
// workers in the cluster via `NOTIFY`, and relays their notifications
// back into the local Memory bus via a long-lived `LISTEN` connection —
// giving cross-worker realtime fan-out (spec.md §4.4) from the same
// driver already used for persistence and locking, with no second
// broker.
type Postgres struct {
	*Memory
	pool *pgxpool.Pool
}

// NewPostgres creates a cluster-aware Bus over pool. Call Listen once at
// boot to start relaying remote notifications into the local bus.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Memory: NewMemory(), pool: pool}
}

// Publish fans the event out locally and notifies the rest of the
// cluster.
func (p *Postgres) Publish(event Event) {
	p.Memory.Publish(event)

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		logging.Error("eventbus: failed to marshal event payload", map[string]any{"error": err.Error()})
		return
	}
	body, err := json.Marshal(wireEvent{AuctionID: event.AuctionID, Kind: event.Kind, Payload: payload})
	if err != nil {
		logging.Error("eventbus: failed to marshal wire event", map[string]any{"error": err.Error()})
		return
	}
	if _, err := p.pool.Exec(context.Background(), "SELECT pg_notify($1, $2)", notifyChannel, string(body)); err != nil {
		logging.Error("eventbus: notify failed", map[string]any{"error": err.Error()})
	}
}

// Listen pins one pool connection and relays incoming notifications into
// the local Memory bus until ctx is cancelled. Run once per worker.
func (p *Postgres) Listen(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Error("eventbus: wait for notification failed", map[string]any{"error": err.Error()})
			continue
		}
		var we wireEvent
		if err := json.Unmarshal([]byte(n.Payload), &we); err != nil {
			logging.Error("eventbus: failed to unmarshal notification", map[string]any{"error": err.Error()})
			continue
		}
		var payload any
		_ = json.Unmarshal(we.Payload, &payload)
		p.Memory.Publish(Event{AuctionID: we.AuctionID, Kind: we.Kind, Payload: payload})
	}
}
