// Package scheduler wires the job queue's generic Run loop to the
// auction and round services, and reconciles outstanding work on
// worker startup (spec.md §4.8).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"auctionhouse/internal/auctionservice"
	"auctionhouse/internal/logging"
	"auctionhouse/internal/models"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository"
	"auctionhouse/internal/roundservice"
)

// Scheduler bootstraps the job queue and dispatches due jobs to the
// auction/round services.
type Scheduler struct {
	store     repository.Store
	queue     queue.Queue
	auctions  *auctionservice.Service
	rounds    *roundservice.Service
	pollEvery time.Duration
}

// New creates a Scheduler. pollEvery is the fallback poller's period
// (spec.md §4.8); it never drives round closure, only overdue auctions
// that escaped the queue.
func New(store repository.Store, q queue.Queue, auctions *auctionservice.Service, rounds *roundservice.Service, pollEvery time.Duration) *Scheduler {
	return &Scheduler{store: store, queue: q, auctions: auctions, rounds: rounds, pollEvery: pollEvery}
}

// Bootstrap reconciles pending auctions and active rounds against the
// job queue, then starts any overdue auction immediately.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	pending, err := s.store.Auctions().ListByStatus(ctx, models.AuctionPending)
	if err != nil {
		return fmt.Errorf("scheduler: bootstrap: list pending auctions: %w", err)
	}
	now := time.Now().UTC()
	for _, a := range pending {
		if a.StartAt.After(now) {
			if err := s.queue.Schedule(ctx, queue.StartAuctionJobID(a.AuctionID), queue.KindStartAuction, map[string]string{"auctionId": a.AuctionID}, a.StartAt); err != nil {
				logging.Error("scheduler: bootstrap: failed to schedule start", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
			}
			continue
		}
		logging.Info("scheduler: bootstrap: starting overdue auction", map[string]any{"auction_id": a.AuctionID})
		if err := s.auctions.StartAuction(ctx, a.AuctionID); err != nil {
			logging.Error("scheduler: bootstrap: failed to start overdue auction", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
		}
	}

	active, err := s.store.Rounds().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: bootstrap: list active rounds: %w", err)
	}
	for _, r := range active {
		if err := s.queue.Schedule(ctx, queue.CloseRoundJobID(r.RoundID), queue.KindCloseRound, map[string]string{"roundId": r.RoundID}, r.EndAt); err != nil {
			logging.Error("scheduler: bootstrap: failed to schedule close", map[string]any{"round_id": r.RoundID, "error": err.Error()})
		}
	}
	return nil
}

// Run starts the queue's processing loop, dispatching each due job to
// the appropriate service, and the fallback poller, until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.runFallbackPoller(ctx)
	s.queue.Run(ctx, s.handle)
}

func (s *Scheduler) handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindStartAuction:
		return s.auctions.StartAuction(ctx, job.Payload["auctionId"])
	case queue.KindCloseRound:
		return s.rounds.ProcessRound(ctx, job.Payload["roundId"])
	default:
		logging.Warn("scheduler: unknown job kind", map[string]any{"job_id": job.ID, "kind": string(job.Kind)})
		return nil
	}
}

// runFallbackPoller is the safety net of §4.8: it never polls for round
// closure, only for pending auctions whose start-auction job may have
// been lost (e.g. a queue backend restart without durable storage).
func (s *Scheduler) runFallbackPoller(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOverdueAuctions(ctx)
		}
	}
}

func (s *Scheduler) pollOverdueAuctions(ctx context.Context) {
	pending, err := s.store.Auctions().ListByStatus(ctx, models.AuctionPending)
	if err != nil {
		logging.Error("scheduler: fallback poll: list pending auctions failed", map[string]any{"error": err.Error()})
		return
	}
	now := time.Now().UTC()
	for _, a := range pending {
		if a.StartAt.After(now) {
			continue
		}
		logging.Warn("scheduler: fallback poll: starting auction that escaped the queue", map[string]any{"auction_id": a.AuctionID})
		if err := s.auctions.StartAuction(ctx, a.AuctionID); err != nil {
			logging.Error("scheduler: fallback poll: start failed", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
		}
	}
}
