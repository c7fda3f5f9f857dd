// Package roundservice implements round settlement (spec.md §4.6): the
// atomic transition of a round from active to completed — winner and
// loser resolution, auction statistics, and next-round creation —
// serialized per round by the distributed lock and gated by a
// compare-and-set so a repeated invocation is a no-op.
package roundservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/idgen"
	"auctionhouse/internal/lock"
	"auctionhouse/internal/logging"
	"auctionhouse/internal/metrics"
	"auctionhouse/internal/models"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository"
	"auctionhouse/internal/wallet"
)

// LockAcquireTimeout bounds how long ProcessRound waits for the
// per-round lock.
const LockAcquireTimeout = 30 * time.Second

// Service is the settlement engine.
type Service struct {
	store  repository.Store
	wallet *wallet.Ledger
	locker lock.Locker
	queue  queue.Queue
	bus    eventbus.Bus
}

// New creates a round settlement service.
func New(store repository.Store, w *wallet.Ledger, locker lock.Locker, q queue.Queue, bus eventbus.Bus) *Service {
	return &Service{store: store, wallet: w, locker: locker, queue: q, bus: bus}
}

// outcome carries what happened during settlement, for event publishing
// after the lock releases.
type outcome struct {
	skipped      bool
	round        *models.Round
	winnersCount int
	nextRound    *models.Round
	auctionDone  bool
	auctionID    string
}

// ProcessRound settles roundID: ranks active bids, resolves winners and
// losers, updates auction statistics, and transitions the round and
// auction state (spec.md §4.6). It is idempotent: a second invocation
// on an already-settled round is a no-op, gated by the CAS in step 1.
func (s *Service) ProcessRound(ctx context.Context, roundID string) error {
	start := time.Now()
	var oc outcome
	err := s.locker.WithLock(ctx, lock.RoundKey(roundID), LockAcquireTimeout, func(ctx context.Context) error {
		o, err := s.settle(ctx, roundID)
		if err != nil {
			return err
		}
		oc = o
		return nil
	})
	if err != nil {
		return err
	}
	if oc.skipped {
		return nil
	}
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	metrics.RoundsSettled.Inc()
	s.publish(oc)
	return nil
}

func (s *Service) settle(ctx context.Context, roundID string) (outcome, error) {
	round, err := s.store.Rounds().GetByID(ctx, roundID)
	if err != nil {
		return outcome{}, fmt.Errorf("roundservice: settle %s: %w", roundID, err)
	}

	// Step 1: CAS active -> processing. A CAS failure means another
	// worker is settling or already did; this invocation is a no-op.
	if err := s.store.Rounds().CompareAndSetStatus(ctx, roundID, models.RoundActive, models.RoundProcessing); err != nil {
		if errors.Is(err, apierrors.ErrConflict) {
			return outcome{skipped: true}, nil
		}
		return outcome{}, fmt.Errorf("roundservice: settle %s: cas to processing: %w", roundID, err)
	}
	round.Status = models.RoundProcessing

	auction, err := s.store.Auctions().GetByID(ctx, round.AuctionID)
	if err != nil {
		// Step 2: data-integrity failure. Revert so the round remains
		// retryable rather than stuck in processing forever.
		if revertErr := s.store.Rounds().CompareAndSetStatus(ctx, roundID, models.RoundProcessing, models.RoundActive); revertErr != nil {
			logging.Error("roundservice: failed to revert round after missing auction", map[string]any{
				"round_id": roundID, "error": revertErr.Error(),
			})
		}
		return outcome{}, fmt.Errorf("roundservice: settle %s: load auction: %w", roundID, err)
	}

	ranked, err := s.store.Bids().ListActiveByRoundRanked(ctx, roundID)
	if err != nil {
		return outcome{}, fmt.Errorf("roundservice: settle %s: rank bids: %w", roundID, err)
	}

	w := round.WinnersCount
	if w > len(ranked) {
		w = len(ranked)
	}

	var (
		nextRound   *models.Round
		auctionDone bool
	)

	// Steps 4-8 commit as a single unit (spec.md §4.6): winner/loser
	// resolution, auction stats, round completion, and next-round
	// creation either all land or none do. settleWinner/settleLoser and
	// the wallet calls they make all run against tx, not s.store.
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		txWallet := s.wallet.WithStore(tx)
		var totalSpent int64
		for i, b := range ranked {
			if i < w {
				if err := s.settleWinner(ctx, tx, txWallet, b, auction, round.RoundNumber, i); err != nil {
					return fmt.Errorf("winner %s: %w", b.BidID, err)
				}
				totalSpent += b.Amount
			} else {
				if err := s.settleLoser(ctx, tx, txWallet, b); err != nil {
					return fmt.Errorf("loser %s: %w", b.BidID, err)
				}
			}
		}

		newDistributed := auction.DistributedItems + w
		auction.AvgPrice = cumulativeAvgPrice(auction.AvgPrice, auction.DistributedItems, totalSpent, newDistributed)
		auction.DistributedItems = newDistributed

		round.Status = models.RoundCompleted
		if err := tx.Rounds().Update(ctx, round); err != nil {
			return fmt.Errorf("complete round: %w", err)
		}

		remaining := auction.TotalItems - newDistributed
		if remaining > 0 && round.RoundNumber < auction.TotalRounds {
			winnersCount := auction.ItemsPerRound
			if winnersCount > remaining {
				winnersCount = remaining
			}
			nextRound = &models.Round{
				RoundID:       idgen.New(),
				AuctionID:     auction.AuctionID,
				RoundNumber:   round.RoundNumber + 1,
				StartAt:       time.Now().UTC(),
				EndAt:         time.Now().UTC().Add(auction.OtherRoundDuration),
				OriginalEndAt: time.Now().UTC().Add(auction.OtherRoundDuration),
				Status:        models.RoundActive,
				WinnersCount:  winnersCount,
			}
			if err := tx.Rounds().Create(ctx, nextRound); err != nil {
				return fmt.Errorf("create next round: %w", err)
			}
			auction.CurrentRound = nextRound.RoundNumber
			if err := tx.Auctions().Update(ctx, auction); err != nil {
				return fmt.Errorf("update auction stats: %w", err)
			}
			if err := s.queue.Schedule(ctx, queue.CloseRoundJobID(nextRound.RoundID), queue.KindCloseRound, map[string]string{"roundId": nextRound.RoundID}, nextRound.EndAt); err != nil {
				return fmt.Errorf("schedule next close: %w", err)
			}
		} else {
			auction.Status = models.AuctionCompleted
			if err := tx.Auctions().Update(ctx, auction); err != nil {
				return fmt.Errorf("complete auction: %w", err)
			}
			auctionDone = true
		}
		return nil
	})
	if err != nil {
		return outcome{}, fmt.Errorf("roundservice: settle %s: %w", roundID, err)
	}

	return outcome{
		round:        round,
		winnersCount: w,
		nextRound:    nextRound,
		auctionDone:  auctionDone,
		auctionID:    auction.AuctionID,
	}, nil
}

func (s *Service) settleWinner(ctx context.Context, tx repository.Store, txWallet *wallet.Ledger, b *models.Bid, auction *models.Auction, roundNumber, rankIndex int) error {
	itemNumber := auction.DistributedItems + 1 + rankIndex
	b.Status = models.BidWon
	b.WonInRound = &roundNumber
	b.ItemNumber = &itemNumber
	if err := txWallet.ConsumeWin(ctx, b.UserID, b.Amount, auction.AuctionID, b.BidID); err != nil {
		return err
	}
	return tx.Bids().Update(ctx, b)
}

func (s *Service) settleLoser(ctx context.Context, tx repository.Store, txWallet *wallet.Ledger, b *models.Bid) error {
	b.Status = models.BidRefunded
	if err := txWallet.Refund(ctx, b.UserID, b.Amount, b.AuctionID, b.BidID); err != nil {
		return err
	}
	return tx.Bids().Update(ctx, b)
}

// cumulativeAvgPrice computes the running mean price across all items
// ever awarded (spec.md §4.6 step 6), returning 0 when nothing has been
// distributed yet.
func cumulativeAvgPrice(prevAvg float64, prevDistributed int, totalSpent int64, newDistributed int) float64 {
	if newDistributed == 0 {
		return 0
	}
	return (prevAvg*float64(prevDistributed) + float64(totalSpent)) / float64(newDistributed)
}

// MinBidForWin implements the derived read of §4.5.2.
func MinBidForWin(ranked []*models.Bid, winnersCount int) int64 {
	if len(ranked) < winnersCount {
		return 1
	}
	return ranked[winnersCount-1].Amount
}

// Rank returns 1 + the count of bids strictly ranked above userID's
// bid in ranked (already ordered by (amount DESC, createdAt ASC)), or
// 0 if userID has no bid in ranked.
func Rank(ranked []*models.Bid, userID string) int {
	for i, b := range ranked {
		if b.UserID == userID {
			return i + 1
		}
	}
	return 0
}

func (s *Service) publish(oc outcome) {
	s.bus.Publish(eventbus.Event{
		AuctionID: oc.auctionID,
		Kind:      eventbus.KindRoundEnd,
		Payload: eventbus.RoundEndPayload{
			RoundNumber:  oc.round.RoundNumber,
			WinnersCount: oc.winnersCount,
		},
	})
	if oc.nextRound != nil {
		s.bus.Publish(eventbus.Event{
			AuctionID: oc.auctionID,
			Kind:      eventbus.KindRoundStart,
			Payload: eventbus.RoundStartPayload{
				RoundNumber:  oc.nextRound.RoundNumber,
				EndAt:        oc.nextRound.EndAt.Format(time.RFC3339),
				WinnersCount: oc.nextRound.WinnersCount,
			},
		})
	}
	if oc.auctionDone {
		payload := eventbus.AuctionCompletePayload{AuctionID: oc.auctionID}
		s.bus.Publish(eventbus.Event{AuctionID: oc.auctionID, Kind: eventbus.KindAuctionComplete, Payload: payload})
		s.bus.Publish(eventbus.Event{AuctionID: eventbus.GlobalRoom, Kind: eventbus.KindAuctionComplete, Payload: payload})
	}
}
