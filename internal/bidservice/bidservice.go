// Package bidservice implements the bid admission path (spec.md §4.5):
// fund-freezing, raise-or-create semantics, and anti-snipe round
// extension, all serialized per (auction, user) by the distributed lock.
package bidservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/idgen"
	"auctionhouse/internal/lock"
	"auctionhouse/internal/metrics"
	"auctionhouse/internal/models"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository"
	"auctionhouse/internal/wallet"
)

// LockAcquireTimeout bounds how long PlaceBid waits for the per-(auction,
// user) lock before failing with apierrors.ErrLockTimeout.
const LockAcquireTimeout = 5 * time.Second

// LeaderboardLimit is the default top-K size for leaderboard:update.
const LeaderboardLimit = 10

// Service is the bid admission service.
type Service struct {
	store  repository.Store
	wallet *wallet.Ledger
	locker lock.Locker
	queue  queue.Queue
	bus    eventbus.Bus
}

// New creates a bid admission service.
func New(store repository.Store, w *wallet.Ledger, locker lock.Locker, q queue.Queue, bus eventbus.Bus) *Service {
	return &Service{store: store, wallet: w, locker: locker, queue: q, bus: bus}
}

// PlaceBidResult is the outcome of one admitted bid.
type PlaceBidResult struct {
	Bid                *models.Bid
	Rank               int
	TotalActiveBids    int
	AntiSnipeTriggered bool
	NewEndAt           time.Time
	Extension          time.Duration
	Leaderboard        []eventbus.LeaderboardEntry
}

// PlaceBid admits a new bid or raises an existing one for userID in
// auctionID, under the per-(auction,user) lock (spec.md §4.5).
func (s *Service) PlaceBid(ctx context.Context, userID, auctionID string, amount int64) (*PlaceBidResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("bidservice: place bid: %w - amount must be positive", apierrors.ErrBelowMinimum)
	}

	var result *PlaceBidResult
	err := s.locker.WithLock(ctx, lock.BidKey(auctionID, userID), LockAcquireTimeout, func(ctx context.Context) error {
		r, err := s.admit(ctx, userID, auctionID, amount)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		metrics.BidsPlaced.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.BidsPlaced.WithLabelValues("admitted").Inc()
	if result.AntiSnipeTriggered {
		metrics.AntiSnipeTriggers.Inc()
	}

	s.publish(result, auctionID)
	return result, nil
}

func (s *Service) admit(ctx context.Context, userID, auctionID string, amount int64) (*PlaceBidResult, error) {
	auction, err := s.store.Auctions().GetByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("bidservice: place bid: %w", err)
	}
	if auction.Status != models.AuctionActive {
		return nil, fmt.Errorf("bidservice: place bid: %w", apierrors.ErrAuctionNotActive)
	}
	if amount < auction.MinBid {
		return nil, fmt.Errorf("bidservice: place bid: %w", apierrors.ErrBelowMinimum)
	}

	round, err := s.store.Rounds().GetActiveByAuction(ctx, auctionID)
	if errors.Is(err, apierrors.ErrNotFound) {
		return nil, fmt.Errorf("bidservice: place bid: %w", apierrors.ErrNoActiveRound)
	}
	if err != nil {
		return nil, fmt.Errorf("bidservice: place bid: %w", err)
	}
	if round.Status != models.RoundActive {
		return nil, fmt.Errorf("bidservice: place bid: %w", apierrors.ErrNoActiveRound)
	}
	now := time.Now().UTC()
	if now.After(round.EndAt) {
		return nil, fmt.Errorf("bidservice: place bid: %w", apierrors.ErrRoundEnded)
	}

	bid, err := s.freezeAndWrite(ctx, userID, auctionID, round, amount)
	if err != nil {
		return nil, err
	}

	ranked, err := s.store.Bids().ListActiveByRoundRanked(ctx, round.RoundID)
	if err != nil {
		return nil, fmt.Errorf("bidservice: place bid: rank lookup: %w", err)
	}
	rank := rankOf(ranked, bid.UserID)

	triggered, newEndAt, err := s.checkAntiSnipe(ctx, auction, round, rank)
	if err != nil {
		return nil, err
	}

	leaderboard, err := s.leaderboard(ctx, ranked)
	if err != nil {
		return nil, fmt.Errorf("bidservice: place bid: leaderboard: %w", err)
	}

	return &PlaceBidResult{
		Bid:                bid,
		Rank:               rank,
		TotalActiveBids:    len(ranked),
		AntiSnipeTriggered: triggered,
		NewEndAt:           newEndAt,
		Extension:          auction.AntiSnipeExtension,
		Leaderboard:        leaderboard,
	}, nil
}

// leaderboard builds the top-K leaderboard payload from an already
// ranked bid list, resolving usernames.
func (s *Service) leaderboard(ctx context.Context, ranked []*models.Bid) ([]eventbus.LeaderboardEntry, error) {
	limit := LeaderboardLimit
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]eventbus.LeaderboardEntry, 0, limit)
	for i := 0; i < limit; i++ {
		b := ranked[i]
		u, err := s.store.Users().GetByID(ctx, b.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, eventbus.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   b.UserID,
			Username: u.Username,
			Amount:   b.Amount,
		})
	}
	return out, nil
}

// freezeAndWrite performs the raise-or-create admission of §4.5 steps
// 5: on the raise path the existing bid's amount grows additively; on
// the new path a bid row is created. Both paths freeze funds first so a
// failed freeze never results in a visible bid.
func (s *Service) freezeAndWrite(ctx context.Context, userID, auctionID string, round *models.Round, amount int64) (*models.Bid, error) {
	existing, err := s.store.Bids().GetByRoundAndUser(ctx, round.RoundID, userID)
	if err != nil && !errors.Is(err, apierrors.ErrNotFound) {
		return nil, fmt.Errorf("bidservice: place bid: lookup existing bid: %w", err)
	}

	if err == nil && existing.Status == models.BidActive {
		if err := s.wallet.Freeze(ctx, userID, amount, auctionID, existing.BidID); err != nil {
			return nil, fmt.Errorf("bidservice: raise bid: %w", err)
		}
		existing.Amount += amount
		if err := s.store.Bids().Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("bidservice: raise bid: persist: %w", err)
		}
		return existing, nil
	}

	bid := &models.Bid{
		BidID:     idgen.New(),
		AuctionID: auctionID,
		RoundID:   round.RoundID,
		UserID:    userID,
		Amount:    amount,
		Status:    models.BidActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.wallet.Freeze(ctx, userID, amount, auctionID, bid.BidID); err != nil {
		return nil, fmt.Errorf("bidservice: new bid: %w", err)
	}
	if err := s.store.Bids().Create(ctx, bid); err != nil {
		return nil, fmt.Errorf("bidservice: new bid: persist: %w", err)
	}
	return bid, nil
}

// checkAntiSnipe implements §4.5.1: a bid near close that ranks within
// the top threshold bids extends the round monotonically and
// reschedules the close-round job to the new deadline.
func (s *Service) checkAntiSnipe(ctx context.Context, auction *models.Auction, round *models.Round, bidRank int) (bool, time.Time, error) {
	now := time.Now().UTC()
	if round.EndAt.Sub(now) > auction.AntiSnipeWindow {
		return false, time.Time{}, nil
	}
	if bidRank > auction.AntiSnipeThreshold {
		return false, time.Time{}, nil
	}

	newEndAt := round.EndAt.Add(auction.AntiSnipeExtension)
	round.EndAt = newEndAt
	if err := s.store.Rounds().Update(ctx, round); err != nil {
		return false, time.Time{}, fmt.Errorf("bidservice: anti-snipe: extend round: %w", err)
	}
	if err := s.queue.Reschedule(ctx, queue.CloseRoundJobID(round.RoundID), newEndAt); err != nil {
		return false, time.Time{}, fmt.Errorf("bidservice: anti-snipe: reschedule close job: %w", err)
	}
	return true, newEndAt, nil
}

// rankOf returns 1 + the count of bids strictly ranked above userID's
// bid, per §4.5.2. ranked must already be ordered by (amount DESC,
// createdAt ASC). Returns len(ranked)+1 if userID has no bid in ranked.
func rankOf(ranked []*models.Bid, userID string) int {
	for i, b := range ranked {
		if b.UserID == userID {
			return i + 1
		}
	}
	return len(ranked) + 1
}

func (s *Service) publish(result *PlaceBidResult, auctionID string) {
	s.bus.Publish(eventbus.Event{
		AuctionID: auctionID,
		Kind:      eventbus.KindBidNew,
		Payload: eventbus.BidNewPayload{
			Rank:      result.Rank,
			Amount:    result.Bid.Amount,
			UserID:    result.Bid.UserID,
			TotalBids: result.TotalActiveBids,
		},
	})
	if result.AntiSnipeTriggered {
		s.bus.Publish(eventbus.Event{
			AuctionID: auctionID,
			Kind:      eventbus.KindTimerAntiSnipe,
			Payload: eventbus.TimerAntiSnipePayload{
				NewEndAt:  result.NewEndAt.Format(time.RFC3339),
				Extension: int64(result.Extension / time.Millisecond),
			},
		})
	}
	s.bus.Publish(eventbus.Event{
		AuctionID: auctionID,
		Kind:      eventbus.KindLeaderboard,
		Payload:   result.Leaderboard,
	})
}
