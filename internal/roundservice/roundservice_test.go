package roundservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/lock"
	"auctionhouse/internal/models"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository/memory"
	"auctionhouse/internal/wallet"
)

type fixture struct {
	store *memory.Store
	q     *queue.Memory
	bus   *eventbus.Memory
	w     *wallet.Ledger
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	locker := lock.NewMemory(time.Second, time.Millisecond)
	q := queue.NewMemory(time.Millisecond)
	bus := eventbus.NewMemory()
	w := wallet.New(store)
	return &fixture{store: store, q: q, bus: bus, w: w, svc: New(store, w, locker, q, bus)}
}

func (f *fixture) seedBidder(t *testing.T, ctx context.Context, userID, roundID, auctionID string, amount int64, createdAt time.Time) {
	t.Helper()
	_, _, err := f.store.Users().GetOrCreate(ctx, userID, userID)
	require.NoError(t, err)
	_, err = f.w.Deposit(ctx, userID, amount*10)
	require.NoError(t, err)
	require.NoError(t, f.w.Freeze(ctx, userID, amount, auctionID, userID+"-bid"))
	require.NoError(t, f.store.Bids().Create(ctx, &models.Bid{
		BidID:     userID + "-bid",
		AuctionID: auctionID,
		RoundID:   roundID,
		UserID:    userID,
		Amount:    amount,
		Status:    models.BidActive,
		CreatedAt: createdAt,
	}))
}

func (f *fixture) seedAuctionAndRound(t *testing.T, ctx context.Context, totalItems, totalRounds, itemsPerRound, winnersCount, roundNumber, distributedItems int) (*models.Auction, *models.Round) {
	t.Helper()
	a := &models.Auction{
		AuctionID:          "a1",
		Name:               "a1",
		TotalItems:         totalItems,
		TotalRounds:        totalRounds,
		ItemsPerRound:      itemsPerRound,
		MinBid:             1,
		Status:             models.AuctionActive,
		DistributedItems:   distributedItems,
		StartAt:            time.Now().UTC(),
		OtherRoundDuration: time.Minute,
		CreatedAt:          time.Now().UTC(),
	}
	require.NoError(t, f.store.Auctions().Create(ctx, a))

	r := &models.Round{
		RoundID:      "r1",
		AuctionID:    "a1",
		RoundNumber:  roundNumber,
		Status:       models.RoundActive,
		WinnersCount: winnersCount,
		StartAt:      time.Now().UTC(),
		EndAt:        time.Now().UTC(),
	}
	require.NoError(t, f.store.Rounds().Create(ctx, r))
	return a, r
}

func TestProcessRound_SettlesWinnersAndLosers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, r := f.seedAuctionAndRound(t, ctx, 10, 5, 2, 1, 1, 0)
	base := time.Now().UTC()
	f.seedBidder(t, ctx, "u1", r.RoundID, "a1", 200, base)
	f.seedBidder(t, ctx, "u2", r.RoundID, "a1", 100, base)

	require.NoError(t, f.svc.ProcessRound(ctx, r.RoundID))

	winner, err := f.store.Bids().GetByRoundAndUser(ctx, r.RoundID, "u1")
	require.NoError(t, err)
	require.Equal(t, models.BidWon, winner.Status)
	require.NotNil(t, winner.WonInRound)
	require.Equal(t, 1, *winner.WonInRound)

	loser, err := f.store.Bids().GetByRoundAndUser(ctx, r.RoundID, "u2")
	require.NoError(t, err)
	require.Equal(t, models.BidRefunded, loser.Status)

	wu, err := f.store.Users().GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(0), wu.Frozen, "winner's frozen funds must be fully consumed")

	lu, err := f.store.Users().GetByID(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, int64(0), lu.Frozen, "loser's frozen funds must be fully refunded")
	require.Equal(t, int64(1000), lu.Available, "loser ends with exactly their deposit back")

	gotRound, err := f.store.Rounds().GetByID(ctx, r.RoundID)
	require.NoError(t, err)
	require.Equal(t, models.RoundCompleted, gotRound.Status)
}

func TestProcessRound_CreatesNextRoundWhenItemsRemain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, r := f.seedAuctionAndRound(t, ctx, 10, 5, 2, 1, 1, 0)
	f.seedBidder(t, ctx, "u1", r.RoundID, "a1", 100, time.Now().UTC())

	require.NoError(t, f.svc.ProcessRound(ctx, r.RoundID))

	a, err := f.store.Auctions().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionActive, a.Status)
	require.Equal(t, 1, a.DistributedItems)
	require.Equal(t, 2, a.CurrentRound)

	next, err := f.store.Rounds().GetByAuctionAndNumber(ctx, "a1", 2)
	require.NoError(t, err)
	require.Equal(t, models.RoundActive, next.Status)
}

func TestProcessRound_CompletesAuctionWhenItemsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, r := f.seedAuctionAndRound(t, ctx, 1, 5, 2, 1, 1, 0)
	f.seedBidder(t, ctx, "u1", r.RoundID, "a1", 100, time.Now().UTC())

	require.NoError(t, f.svc.ProcessRound(ctx, r.RoundID))

	a, err := f.store.Auctions().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionCompleted, a.Status)
	_, err = f.store.Rounds().GetByAuctionAndNumber(ctx, "a1", 2)
	require.ErrorIs(t, err, apierrors.ErrNotFound)
}

func TestProcessRound_CompletesAuctionWhenTotalRoundsReached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, r := f.seedAuctionAndRound(t, ctx, 10, 1, 2, 1, 1, 0)
	f.seedBidder(t, ctx, "u1", r.RoundID, "a1", 100, time.Now().UTC())

	require.NoError(t, f.svc.ProcessRound(ctx, r.RoundID))

	a, err := f.store.Auctions().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionCompleted, a.Status, "reaching TotalRounds ends the auction even with items left")
}

func TestProcessRound_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, r := f.seedAuctionAndRound(t, ctx, 10, 5, 2, 1, 1, 0)
	f.seedBidder(t, ctx, "u1", r.RoundID, "a1", 100, time.Now().UTC())

	require.NoError(t, f.svc.ProcessRound(ctx, r.RoundID))
	// a second call against the now-completed round must be a no-op, not
	// an error, per the CAS gate in step 1.
	require.NoError(t, f.svc.ProcessRound(ctx, r.RoundID))

	got, err := f.store.Rounds().GetByID(ctx, r.RoundID)
	require.NoError(t, err)
	require.Equal(t, models.RoundCompleted, got.Status)
}

func TestProcessRound_WinnersCountCappedByActiveBids(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, r := f.seedAuctionAndRound(t, ctx, 10, 5, 5, 5, 1, 0)
	f.seedBidder(t, ctx, "u1", r.RoundID, "a1", 100, time.Now().UTC())

	require.NoError(t, f.svc.ProcessRound(ctx, r.RoundID))

	a, err := f.store.Auctions().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 1, a.DistributedItems, "only one bid existed, so only one item can be distributed regardless of WinnersCount")
}

func TestMinBidForWin(t *testing.T) {
	ranked := []*models.Bid{
		{UserID: "u1", Amount: 300},
		{UserID: "u2", Amount: 200},
		{UserID: "u3", Amount: 100},
	}
	require.Equal(t, int64(200), MinBidForWin(ranked, 2))
	require.Equal(t, int64(1), MinBidForWin(ranked, 5), "fewer bids than winner slots means anything wins")
}

func TestRank(t *testing.T) {
	ranked := []*models.Bid{
		{UserID: "u1", Amount: 300},
		{UserID: "u2", Amount: 200},
	}
	require.Equal(t, 1, Rank(ranked, "u1"))
	require.Equal(t, 2, Rank(ranked, "u2"))
	require.Equal(t, 0, Rank(ranked, "u3"))
}
