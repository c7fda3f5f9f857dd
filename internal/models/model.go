// Package models defines the aggregates of the auction engine: User,
// Auction, Round, Bid, and LedgerEntry. They are modeled as typed structs,
// not open maps, since the shape is fixed by the spec.
package models

import "time"

// AuctionStatus is the lifecycle state of an Auction.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
)

// RoundStatus is the lifecycle state of a Round.
type RoundStatus string

const (
	RoundPending    RoundStatus = "pending"
	RoundActive     RoundStatus = "active"
	RoundProcessing RoundStatus = "processing"
	RoundCompleted  RoundStatus = "completed"
)

// BidStatus is the lifecycle state of a Bid.
type BidStatus string

const (
	BidActive   BidStatus = "active"
	BidWon      BidStatus = "won"
	BidRefunded BidStatus = "refunded"
)

// LedgerKind identifies the type of a wallet ledger entry.
type LedgerKind string

const (
	LedgerDeposit  LedgerKind = "deposit"
	LedgerFreeze   LedgerKind = "freeze"
	LedgerUnfreeze LedgerKind = "unfreeze"
	LedgerWin      LedgerKind = "win"
	LedgerRefund   LedgerKind = "refund"
)

// User is a participant in the auction system. Balances are mutated only
// through the wallet ledger, never written directly by any other component.
type User struct {
	UserID    string    `json:"userId" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	Available int64     `json:"available" db:"available"`
	Frozen    int64     `json:"frozen" db:"frozen"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Auction is the top-level aggregate distributing totalItems items across
// totalRounds sealed-bid rounds.
type Auction struct {
	AuctionID          string        `json:"auctionId" db:"auction_id"`
	Name               string        `json:"name" db:"name"`
	Description        string        `json:"description" db:"description"`
	TotalItems         int           `json:"totalItems" db:"total_items"`
	TotalRounds        int           `json:"totalRounds" db:"total_rounds"`
	ItemsPerRound      int           `json:"itemsPerRound" db:"items_per_round"`
	MinBid             int64         `json:"minBid" db:"min_bid"`
	CurrentRound       int           `json:"currentRound" db:"current_round"`
	Status             AuctionStatus `json:"status" db:"status"`
	StartAt            time.Time     `json:"startAt" db:"start_at"`
	FirstRoundDuration time.Duration `json:"firstRoundDuration" db:"first_round_duration"`
	OtherRoundDuration time.Duration `json:"otherRoundDuration" db:"other_round_duration"`
	AntiSnipeWindow    time.Duration `json:"antiSnipeWindow" db:"anti_snipe_window"`
	AntiSnipeExtension time.Duration `json:"antiSnipeExtension" db:"anti_snipe_extension"`
	AntiSnipeThreshold int           `json:"antiSnipeThreshold" db:"anti_snipe_threshold"`
	DistributedItems   int           `json:"distributedItems" db:"distributed_items"`
	AvgPrice           float64       `json:"avgPrice" db:"avg_price"`
	CreatedAt          time.Time     `json:"createdAt" db:"created_at"`
}

// Round is a single sealed-bid phase within an Auction.
type Round struct {
	RoundID       string      `json:"roundId" db:"round_id"`
	AuctionID     string      `json:"auctionId" db:"auction_id"`
	RoundNumber   int         `json:"roundNumber" db:"round_number"`
	StartAt       time.Time   `json:"startAt" db:"start_at"`
	EndAt         time.Time   `json:"endAt" db:"end_at"`
	OriginalEndAt time.Time   `json:"originalEndAt" db:"original_end_at"`
	Status        RoundStatus `json:"status" db:"status"`
	WinnersCount  int         `json:"winnersCount" db:"winners_count"`
}

// Bid is a user's standing offer in a round, atomic up to raises.
type Bid struct {
	BidID      string    `json:"bidId" db:"bid_id"`
	AuctionID  string    `json:"auctionId" db:"auction_id"`
	RoundID    string    `json:"roundId" db:"round_id"`
	UserID     string    `json:"userId" db:"user_id"`
	Amount     int64     `json:"amount" db:"amount"`
	Status     BidStatus `json:"status" db:"status"`
	WonInRound *int      `json:"wonInRound,omitempty" db:"won_in_round"`
	ItemNumber *int      `json:"itemNumber,omitempty" db:"item_number"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// LedgerEntry is one append-only record of a wallet balance mutation.
type LedgerEntry struct {
	EntryID       string     `json:"entryId" db:"entry_id"`
	UserID        string     `json:"userId" db:"user_id"`
	Kind          LedgerKind `json:"kind" db:"kind"`
	Amount        int64      `json:"amount" db:"amount"`
	AuctionID     *string    `json:"auctionId,omitempty" db:"auction_id"`
	BidID         *string    `json:"bidId,omitempty" db:"bid_id"`
	BalanceBefore int64      `json:"balanceBefore" db:"balance_before"`
	BalanceAfter  int64      `json:"balanceAfter" db:"balance_after"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}

// DefaultItemsPerRound returns ceil(totalItems/totalRounds), the default
// when ItemsPerRound is left unset at auction creation.
func DefaultItemsPerRound(totalItems, totalRounds int) int {
	if totalRounds <= 0 {
		return totalItems
	}
	q := totalItems / totalRounds
	if totalItems%totalRounds != 0 {
		q++
	}
	return q
}
