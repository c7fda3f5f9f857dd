package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auctionhouse/internal/auctionservice"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/lock"
	"auctionhouse/internal/models"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository/memory"
	"auctionhouse/internal/roundservice"
	"auctionhouse/internal/wallet"
)

func newFixture() (*memory.Store, *queue.Memory, *Scheduler) {
	store := memory.New()
	q := queue.NewMemory(time.Millisecond)
	bus := eventbus.NewMemory()
	locker := lock.NewMemory(time.Second, time.Millisecond)
	w := wallet.New(store)
	auctions := auctionservice.New(store, q, bus)
	rounds := roundservice.New(store, w, locker, q, bus)
	return store, q, New(store, q, auctions, rounds, time.Hour)
}

func TestBootstrap_SchedulesFutureAuctionStart(t *testing.T) {
	ctx := context.Background()
	store, q, sched := newFixture()
	a := &models.Auction{AuctionID: "a1", Name: "a1", TotalItems: 1, TotalRounds: 1, MinBid: 1, Status: models.AuctionPending, StartAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, store.Auctions().Create(ctx, a))

	require.NoError(t, sched.Bootstrap(ctx))
	require.Equal(t, 1, q.Len())

	got, err := store.Auctions().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionPending, got.Status, "a future start must not start eagerly")
}

func TestBootstrap_StartsOverdueAuctionImmediately(t *testing.T) {
	ctx := context.Background()
	store, _, sched := newFixture()
	a := &models.Auction{AuctionID: "a1", Name: "a1", TotalItems: 1, TotalRounds: 1, MinBid: 1, Status: models.AuctionPending, StartAt: time.Now().UTC().Add(-time.Hour), FirstRoundDuration: time.Minute}
	require.NoError(t, store.Auctions().Create(ctx, a))

	require.NoError(t, sched.Bootstrap(ctx))

	got, err := store.Auctions().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionActive, got.Status, "an overdue pending auction must be started during bootstrap")
}

func TestBootstrap_ReschedulesCloseJobsForActiveRounds(t *testing.T) {
	ctx := context.Background()
	store, q, sched := newFixture()
	a := &models.Auction{AuctionID: "a1", Name: "a1", TotalItems: 1, TotalRounds: 1, MinBid: 1, Status: models.AuctionActive, StartAt: time.Now().UTC()}
	require.NoError(t, store.Auctions().Create(ctx, a))
	r := &models.Round{RoundID: "r1", AuctionID: "a1", RoundNumber: 1, Status: models.RoundActive, EndAt: time.Now().UTC().Add(time.Minute)}
	require.NoError(t, store.Rounds().Create(ctx, r))

	require.NoError(t, sched.Bootstrap(ctx))
	require.Equal(t, 1, q.Len(), "the lost close-round job for the active round must be rescheduled")
}

func TestHandle_DispatchesByJobKind(t *testing.T) {
	ctx := context.Background()
	store, _, sched := newFixture()
	a := &models.Auction{AuctionID: "a1", Name: "a1", TotalItems: 1, TotalRounds: 1, MinBid: 1, Status: models.AuctionPending, StartAt: time.Now().UTC(), FirstRoundDuration: time.Minute}
	require.NoError(t, store.Auctions().Create(ctx, a))

	err := sched.handle(ctx, queue.Job{Kind: queue.KindStartAuction, Payload: map[string]string{"auctionId": "a1"}})
	require.NoError(t, err)

	got, err := store.Auctions().GetByID(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, models.AuctionActive, got.Status)
}

func TestHandle_UnknownKindIsANoOp(t *testing.T) {
	ctx := context.Background()
	_, _, sched := newFixture()
	require.NoError(t, sched.handle(ctx, queue.Job{Kind: "bogus"}))
}
