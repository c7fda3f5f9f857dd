// Package auctionservice implements auction CRUD and the
// pending-to-active lifecycle transition (spec.md §4.7).
package auctionservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/idgen"
	"auctionhouse/internal/logging"
	"auctionhouse/internal/models"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository"
)

// Service is the auction lifecycle service.
type Service struct {
	store repository.Store
	queue queue.Queue
	bus   eventbus.Bus
}

// New creates an auction service.
func New(store repository.Store, q queue.Queue, bus eventbus.Bus) *Service {
	return &Service{store: store, queue: q, bus: bus}
}

// CreateInput is the validated set of fields needed to create an auction.
type CreateInput struct {
	Name               string
	Description        string
	TotalItems         int
	TotalRounds        int
	ItemsPerRound      int // 0 means "use the default"
	MinBid             int64
	StartAt            time.Time
	FirstRoundDuration time.Duration
	OtherRoundDuration time.Duration
	AntiSnipeWindow    time.Duration
	AntiSnipeExtension time.Duration
	AntiSnipeThreshold int
}

// Create validates input, persists a pending auction, and schedules its
// start-auction job for StartAt (spec.md §4.7).
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Auction, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	itemsPerRound := in.ItemsPerRound
	if itemsPerRound <= 0 {
		itemsPerRound = models.DefaultItemsPerRound(in.TotalItems, in.TotalRounds)
	}

	a := &models.Auction{
		AuctionID:          idgen.New(),
		Name:               in.Name,
		Description:        in.Description,
		TotalItems:         in.TotalItems,
		TotalRounds:        in.TotalRounds,
		ItemsPerRound:      itemsPerRound,
		MinBid:             in.MinBid,
		CurrentRound:       0,
		Status:             models.AuctionPending,
		StartAt:            in.StartAt,
		FirstRoundDuration: in.FirstRoundDuration,
		OtherRoundDuration: in.OtherRoundDuration,
		AntiSnipeWindow:    in.AntiSnipeWindow,
		AntiSnipeExtension: in.AntiSnipeExtension,
		AntiSnipeThreshold: in.AntiSnipeThreshold,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.store.Auctions().Create(ctx, a); err != nil {
		return nil, fmt.Errorf("auctionservice: create: %w", err)
	}
	if err := s.queue.Schedule(ctx, queue.StartAuctionJobID(a.AuctionID), queue.KindStartAuction, map[string]string{"auctionId": a.AuctionID}, a.StartAt); err != nil {
		return nil, fmt.Errorf("auctionservice: create: schedule start: %w", err)
	}
	return a, nil
}

func validateCreate(in CreateInput) error {
	if in.Name == "" {
		return fmt.Errorf("auctionservice: create: %w - name is required", apierrors.ErrBelowMinimum)
	}
	if in.TotalItems <= 0 {
		return fmt.Errorf("auctionservice: create: %w - totalItems must be positive", apierrors.ErrBelowMinimum)
	}
	if in.TotalRounds <= 0 {
		return fmt.Errorf("auctionservice: create: %w - totalRounds must be positive", apierrors.ErrBelowMinimum)
	}
	if in.MinBid < 1 {
		return fmt.Errorf("auctionservice: create: %w - minBid must be >= 1", apierrors.ErrBelowMinimum)
	}
	return nil
}

// Get returns the auction by id.
func (s *Service) Get(ctx context.Context, auctionID string) (*models.Auction, error) {
	a, err := s.store.Auctions().GetByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("auctionservice: get %s: %w", auctionID, err)
	}
	return a, nil
}

// List returns every auction.
func (s *Service) List(ctx context.Context) ([]*models.Auction, error) {
	out, err := s.store.Auctions().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("auctionservice: list: %w", err)
	}
	return out, nil
}

// StartAuction transitions auctionID from pending to active, creates its
// first round, and schedules the round's close job (spec.md §4.7). It is
// idempotent: a no-op if the auction is already active or completed.
func (s *Service) StartAuction(ctx context.Context, auctionID string) error {
	a, err := s.store.Auctions().GetByID(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("auctionservice: start %s: %w", auctionID, err)
	}
	if a.Status != models.AuctionPending {
		logging.Info("auctionservice: start is a no-op, auction not pending", map[string]any{
			"auction_id": auctionID, "status": string(a.Status),
		})
		return nil
	}

	if err := s.store.Auctions().CompareAndSetStatus(ctx, auctionID, models.AuctionPending, models.AuctionActive); err != nil {
		if errors.Is(err, apierrors.ErrConflict) {
			return nil
		}
		return fmt.Errorf("auctionservice: start %s: cas to active: %w", auctionID, err)
	}

	winnersCount := a.ItemsPerRound
	if winnersCount > a.TotalItems {
		winnersCount = a.TotalItems
	}
	now := time.Now().UTC()
	round := &models.Round{
		RoundID:       idgen.New(),
		AuctionID:     auctionID,
		RoundNumber:   1,
		StartAt:       now,
		EndAt:         now.Add(a.FirstRoundDuration),
		OriginalEndAt: now.Add(a.FirstRoundDuration),
		Status:        models.RoundActive,
		WinnersCount:  winnersCount,
	}
	if err := s.store.Rounds().Create(ctx, round); err != nil {
		return fmt.Errorf("auctionservice: start %s: create round 1: %w", auctionID, err)
	}

	a.CurrentRound = 1
	a.Status = models.AuctionActive
	if err := s.store.Auctions().Update(ctx, a); err != nil {
		return fmt.Errorf("auctionservice: start %s: update current round: %w", auctionID, err)
	}

	if err := s.queue.Schedule(ctx, queue.CloseRoundJobID(round.RoundID), queue.KindCloseRound, map[string]string{"roundId": round.RoundID}, round.EndAt); err != nil {
		return fmt.Errorf("auctionservice: start %s: schedule close: %w", auctionID, err)
	}

	startPayload := eventbus.AuctionStartPayload{
		AuctionID:   auctionID,
		Name:        a.Name,
		RoundNumber: round.RoundNumber,
		EndAt:       round.EndAt.Format(time.RFC3339),
	}
	s.bus.Publish(eventbus.Event{AuctionID: auctionID, Kind: eventbus.KindAuctionStart, Payload: startPayload})
	s.bus.Publish(eventbus.Event{AuctionID: eventbus.GlobalRoom, Kind: eventbus.KindAuctionStart, Payload: startPayload})
	s.bus.Publish(eventbus.Event{
		AuctionID: auctionID,
		Kind:      eventbus.KindRoundStart,
		Payload: eventbus.RoundStartPayload{
			RoundNumber:  round.RoundNumber,
			EndAt:        round.EndAt.Format(time.RFC3339),
			WinnersCount: round.WinnersCount,
		},
	})
	return nil
}
