package auctionservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/models"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository/memory"
)

func newFixture() (*memory.Store, *queue.Memory, *eventbus.Memory, *Service) {
	store := memory.New()
	q := queue.NewMemory(time.Millisecond)
	bus := eventbus.NewMemory()
	return store, q, bus, New(store, q, bus)
}

func validInput() CreateInput {
	return CreateInput{
		Name:               "vintage watches",
		TotalItems:         10,
		TotalRounds:        5,
		MinBid:             10,
		StartAt:            time.Now().UTC().Add(time.Hour),
		FirstRoundDuration: time.Minute,
		OtherRoundDuration: time.Minute,
	}
}

func TestCreate_SchedulesStartJob(t *testing.T) {
	ctx := context.Background()
	store, q, _, svc := newFixture()

	a, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, models.AuctionPending, a.Status)
	require.Equal(t, 2, a.ItemsPerRound, "default items per round is ceil(10/5)")

	got, err := store.Auctions().GetByID(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, a.AuctionID, got.AuctionID)

	require.Equal(t, 1, q.Len())
}

func TestCreate_DefaultItemsPerRoundRoundsUp(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newFixture()
	in := validInput()
	in.TotalItems = 10
	in.TotalRounds = 3

	a, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 4, a.ItemsPerRound)
}

func TestCreate_RespectsExplicitItemsPerRound(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newFixture()
	in := validInput()
	in.ItemsPerRound = 7

	a, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 7, a.ItemsPerRound)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	_, _, _, svc := newFixture()

	cases := []func(in *CreateInput){
		func(in *CreateInput) { in.Name = "" },
		func(in *CreateInput) { in.TotalItems = 0 },
		func(in *CreateInput) { in.TotalRounds = 0 },
		func(in *CreateInput) { in.MinBid = 0 },
	}
	for _, mutate := range cases {
		in := validInput()
		mutate(&in)
		_, err := svc.Create(ctx, in)
		require.ErrorIs(t, err, apierrors.ErrBelowMinimum)
	}
}

func TestStartAuction_CreatesFirstRoundAndPublishes(t *testing.T) {
	ctx := context.Background()
	store, q, bus, svc := newFixture()
	a, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	global, unsubGlobal := bus.Subscribe(eventbus.GlobalRoom)
	defer unsubGlobal()
	room, unsubRoom := bus.Subscribe(a.AuctionID)
	defer unsubRoom()

	require.NoError(t, svc.StartAuction(ctx, a.AuctionID))

	got, err := store.Auctions().GetByID(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, models.AuctionActive, got.Status)
	require.Equal(t, 1, got.CurrentRound)

	round, err := store.Rounds().GetByAuctionAndNumber(ctx, a.AuctionID, 1)
	require.NoError(t, err)
	require.Equal(t, models.RoundActive, round.Status)
	// the original start-auction job from Create is still pending (this
	// test calls StartAuction directly, bypassing the queue's own Run
	// loop) plus the new close-round job for round 1.
	require.Equal(t, 2, q.Len(), "close-round job for round 1 must be scheduled")

	select {
	case e := <-global:
		require.Equal(t, eventbus.KindAuctionStart, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("auction:start must broadcast to the global room")
	}
	select {
	case e := <-room:
		require.Equal(t, eventbus.KindAuctionStart, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("auction:start must also publish to the auction's own room")
	}
}

func TestStartAuction_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _, _, svc := newFixture()
	a, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.StartAuction(ctx, a.AuctionID))
	require.NoError(t, svc.StartAuction(ctx, a.AuctionID), "starting an already-active auction must be a no-op")

	rounds, err := store.Rounds().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 1, "a repeated start must not create a second round")
}

func TestStartAuction_NoopOnCompletedAuction(t *testing.T) {
	ctx := context.Background()
	store, _, _, svc := newFixture()
	a, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, store.Auctions().CompareAndSetStatus(ctx, a.AuctionID, models.AuctionPending, models.AuctionCompleted))

	require.NoError(t, svc.StartAuction(ctx, a.AuctionID))

	got, err := store.Auctions().GetByID(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, models.AuctionCompleted, got.Status)
}

func TestStartAuction_WinnersCountCappedByTotalItems(t *testing.T) {
	ctx := context.Background()
	store, _, _, svc := newFixture()
	in := validInput()
	in.TotalItems = 3
	in.ItemsPerRound = 5
	a, err := svc.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, svc.StartAuction(ctx, a.AuctionID))

	round, err := store.Rounds().GetByAuctionAndNumber(ctx, a.AuctionID, 1)
	require.NoError(t, err)
	require.Equal(t, 3, round.WinnersCount)
}
