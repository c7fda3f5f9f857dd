package server

import (
	"time"

	"auctionhouse/internal/models"
)

type userDTO struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Available int64  `json:"available"`
	Frozen    int64  `json:"frozen"`
}

func toUserDTO(u *models.User) userDTO {
	return userDTO{UserID: u.UserID, Username: u.Username, Available: u.Available, Frozen: u.Frozen}
}

type bidDTO struct {
	BidID      string `json:"bidId"`
	AuctionID  string `json:"auctionId"`
	RoundID    string `json:"roundId"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	WonInRound *int   `json:"wonInRound,omitempty"`
	ItemNumber *int   `json:"itemNumber,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

func toBidDTO(b *models.Bid) bidDTO {
	return bidDTO{
		BidID:      b.BidID,
		AuctionID:  b.AuctionID,
		RoundID:    b.RoundID,
		Amount:     b.Amount,
		Status:     string(b.Status),
		WonInRound: b.WonInRound,
		ItemNumber: b.ItemNumber,
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
	}
}

type activeRoundDTO struct {
	RoundID      string `json:"id"`
	RoundNumber  int    `json:"roundNumber"`
	StartAt      string `json:"startAt"`
	EndAt        string `json:"endAt"`
	WinnersCount int    `json:"winnersCount"`
	MinBidForWin int64  `json:"minBidForWin"`
	TotalBids    int    `json:"totalBids"`
}

type auctionDTO struct {
	AuctionID        string          `json:"auctionId"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	TotalItems       int             `json:"totalItems"`
	TotalRounds      int             `json:"totalRounds"`
	ItemsPerRound    int             `json:"itemsPerRound"`
	MinBid           int64           `json:"minBid"`
	CurrentRound     int             `json:"currentRound"`
	Status           string          `json:"status"`
	StartAt          string          `json:"startAt"`
	DistributedItems int             `json:"distributedItems"`
	AvgPrice         float64         `json:"avgPrice"`
	ActiveRound      *activeRoundDTO `json:"activeRound"`
}

func toAuctionDTO(a *models.Auction) auctionDTO {
	return auctionDTO{
		AuctionID:        a.AuctionID,
		Name:             a.Name,
		Description:      a.Description,
		TotalItems:       a.TotalItems,
		TotalRounds:      a.TotalRounds,
		ItemsPerRound:    a.ItemsPerRound,
		MinBid:           a.MinBid,
		CurrentRound:     a.CurrentRound,
		Status:           string(a.Status),
		StartAt:          a.StartAt.Format(time.RFC3339),
		DistributedItems: a.DistributedItems,
		AvgPrice:         a.AvgPrice,
	}
}

type leaderboardEntryDTO struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
}

type myBidDTO struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Rank   int    `json:"rank"`
	Status string `json:"status"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
}

type depositRequest struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
}

type bidRequest struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
}

type createAuctionRequest struct {
	Name               string `json:"name" binding:"required"`
	Description        string `json:"description"`
	TotalItems         int    `json:"totalItems" binding:"required,min=1"`
	TotalRounds        int    `json:"totalRounds" binding:"required,min=1"`
	WinnersPerRound    int    `json:"winnersPerRound"`
	MinBid             int64  `json:"minBid"`
	StartAt            string `json:"startAt" binding:"required"`
	FirstRoundDuration string `json:"firstRoundDuration"`
	OtherRoundDuration string `json:"otherRoundDuration"`
}
