// Package memory is a concurrency-safe in-memory implementation of
// repository.Store, generalizing the teacher's single-map MemoryRepo to the
// five aggregates of the auction engine. It is the default store for local
// development, tests, and single-node ("embedded") deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/models"
	"auctionhouse/internal/repository"
)

// tables holds the five aggregates' maps, shared between the locking
// top-level Store and the unlocked view WithTx hands to its callback —
// both read and write the same data, only the locking discipline differs.
type tables struct {
	users       map[string]*models.User
	usersByName map[string]string // username -> userID
	auctions    map[string]*models.Auction
	rounds      map[string]*models.Round
	roundKey    map[string]string // auctionID|roundNumber -> roundID
	bids        map[string]*models.Bid
	bidKey      map[string]string // roundID|userID -> bidID
	ledger      []*models.LedgerEntry
}

func newTables() *tables {
	return &tables{
		users:       make(map[string]*models.User),
		usersByName: make(map[string]string),
		auctions:    make(map[string]*models.Auction),
		rounds:      make(map[string]*models.Round),
		roundKey:    make(map[string]string),
		bids:        make(map[string]*models.Bid),
		bidKey:      make(map[string]string),
	}
}

// Store is the top-level, locking implementation of repository.Store.
// Every call through its five repositories takes mu for exactly that one
// operation. WithTx takes mu once for the whole callback and hands fn an
// unlocked txStore view over the same tables — sync.RWMutex is not
// reentrant, so the transaction path must never call back into a
// locking repository while mu is already held.
type Store struct {
	mu sync.RWMutex
	t  *tables
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{t: newTables()}
}

func (s *Store) Users() repository.Users       { return &lockedUsers{mu: &s.mu, t: s.t} }
func (s *Store) Auctions() repository.Auctions { return &lockedAuctions{mu: &s.mu, t: s.t} }
func (s *Store) Rounds() repository.Rounds     { return &lockedRounds{mu: &s.mu, t: s.t} }
func (s *Store) Bids() repository.Bids         { return &lockedBids{mu: &s.mu, t: s.t} }
func (s *Store) Ledger() repository.Ledger     { return &lockedLedger{mu: &s.mu, t: s.t} }

// WithTx holds the store's write lock for the whole callback, so the
// critical section sees a consistent snapshot and no other caller can
// interleave — the in-memory equivalent of a SQL transaction.
func (s *Store) WithTx(ctx context.Context, fn repository.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &txStore{t: s.t})
}

// txStore is the unlocked view passed to WithTx callbacks. Its
// repositories operate directly on tables without taking mu, since the
// enclosing WithTx already holds it for the duration.
type txStore struct{ t *tables }

func (x *txStore) Users() repository.Users       { return &rawUsers{t: x.t} }
func (x *txStore) Auctions() repository.Auctions { return &rawAuctions{t: x.t} }
func (x *txStore) Rounds() repository.Rounds     { return &rawRounds{t: x.t} }
func (x *txStore) Bids() repository.Bids         { return &rawBids{t: x.t} }
func (x *txStore) Ledger() repository.Ledger     { return &rawLedger{t: x.t} }

// WithTx nested inside a transaction just runs fn in place: the outer
// WithTx already established the atomic section.
func (x *txStore) WithTx(ctx context.Context, fn repository.TxFunc) error {
	return fn(ctx, x)
}

func roundKeyOf(auctionID string, roundNumber int) string {
	return fmt.Sprintf("%s|%d", auctionID, roundNumber)
}

func bidKeyOf(roundID, userID string) string {
	return fmt.Sprintf("%s|%s", roundID, userID)
}

// ── Users ───────────────────────────────────────────────────────────────

type rawUsers struct{ t *tables }

func (r *rawUsers) GetByID(ctx context.Context, userID string) (*models.User, error) {
	u, ok := r.t.users[userID]
	if !ok {
		return nil, fmt.Errorf("users: get %s: %w", userID, apierrors.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *rawUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	id, ok := r.t.usersByName[username]
	if !ok {
		return nil, fmt.Errorf("users: get by username %s: %w", username, apierrors.ErrNotFound)
	}
	cp := *r.t.users[id]
	return &cp, nil
}

func (r *rawUsers) GetOrCreate(ctx context.Context, userID, username string) (*models.User, bool, error) {
	if id, exists := r.t.usersByName[username]; exists {
		cp := *r.t.users[id]
		return &cp, false, nil
	}
	u := &models.User{UserID: userID, Username: username, CreatedAt: time.Now().UTC()}
	r.t.users[userID] = u
	r.t.usersByName[username] = userID
	cp := *u
	return &cp, true, nil
}

func (r *rawUsers) UpdateBalances(ctx context.Context, userID string, available, frozen int64) error {
	u, ok := r.t.users[userID]
	if !ok {
		return fmt.Errorf("users: update balances %s: %w", userID, apierrors.ErrNotFound)
	}
	u.Available = available
	u.Frozen = frozen
	return nil
}

type lockedUsers struct {
	mu *sync.RWMutex
	t  *tables
}

func (r *lockedUsers) GetByID(ctx context.Context, userID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawUsers{t: r.t}).GetByID(ctx, userID)
}

func (r *lockedUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawUsers{t: r.t}).GetByUsername(ctx, username)
}

func (r *lockedUsers) GetOrCreate(ctx context.Context, userID, username string) (*models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawUsers{t: r.t}).GetOrCreate(ctx, userID, username)
}

func (r *lockedUsers) UpdateBalances(ctx context.Context, userID string, available, frozen int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawUsers{t: r.t}).UpdateBalances(ctx, userID, available, frozen)
}

// ── Auctions ────────────────────────────────────────────────────────────

type rawAuctions struct{ t *tables }

func (r *rawAuctions) GetByID(ctx context.Context, auctionID string) (*models.Auction, error) {
	a, ok := r.t.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auctions: get %s: %w", auctionID, apierrors.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *rawAuctions) List(ctx context.Context) ([]*models.Auction, error) {
	out := make([]*models.Auction, 0, len(r.t.auctions))
	for _, a := range r.t.auctions {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *rawAuctions) ListByStatus(ctx context.Context, status models.AuctionStatus) ([]*models.Auction, error) {
	var out []*models.Auction
	for _, a := range r.t.auctions {
		if a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *rawAuctions) Create(ctx context.Context, a *models.Auction) error {
	cp := *a
	r.t.auctions[a.AuctionID] = &cp
	return nil
}

func (r *rawAuctions) Update(ctx context.Context, a *models.Auction) error {
	if _, ok := r.t.auctions[a.AuctionID]; !ok {
		return fmt.Errorf("auctions: update %s: %w", a.AuctionID, apierrors.ErrNotFound)
	}
	cp := *a
	r.t.auctions[a.AuctionID] = &cp
	return nil
}

func (r *rawAuctions) CompareAndSetStatus(ctx context.Context, auctionID string, from, to models.AuctionStatus) error {
	a, ok := r.t.auctions[auctionID]
	if !ok {
		return fmt.Errorf("auctions: cas %s: %w", auctionID, apierrors.ErrNotFound)
	}
	if a.Status != from {
		return fmt.Errorf("auctions: cas %s from %s to %s: %w", auctionID, from, to, apierrors.ErrConflict)
	}
	a.Status = to
	return nil
}

type lockedAuctions struct {
	mu *sync.RWMutex
	t  *tables
}

func (r *lockedAuctions) GetByID(ctx context.Context, auctionID string) (*models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawAuctions{t: r.t}).GetByID(ctx, auctionID)
}

func (r *lockedAuctions) List(ctx context.Context) ([]*models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawAuctions{t: r.t}).List(ctx)
}

func (r *lockedAuctions) ListByStatus(ctx context.Context, status models.AuctionStatus) ([]*models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawAuctions{t: r.t}).ListByStatus(ctx, status)
}

func (r *lockedAuctions) Create(ctx context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawAuctions{t: r.t}).Create(ctx, a)
}

func (r *lockedAuctions) Update(ctx context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawAuctions{t: r.t}).Update(ctx, a)
}

func (r *lockedAuctions) CompareAndSetStatus(ctx context.Context, auctionID string, from, to models.AuctionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawAuctions{t: r.t}).CompareAndSetStatus(ctx, auctionID, from, to)
}

// ── Rounds ──────────────────────────────────────────────────────────────

type rawRounds struct{ t *tables }

func (r *rawRounds) GetByID(ctx context.Context, roundID string) (*models.Round, error) {
	rnd, ok := r.t.rounds[roundID]
	if !ok {
		return nil, fmt.Errorf("rounds: get %s: %w", roundID, apierrors.ErrNotFound)
	}
	cp := *rnd
	return &cp, nil
}

func (r *rawRounds) GetByAuctionAndNumber(ctx context.Context, auctionID string, roundNumber int) (*models.Round, error) {
	id, ok := r.t.roundKey[roundKeyOf(auctionID, roundNumber)]
	if !ok {
		return nil, fmt.Errorf("rounds: get %s#%d: %w", auctionID, roundNumber, apierrors.ErrNotFound)
	}
	cp := *r.t.rounds[id]
	return &cp, nil
}

func (r *rawRounds) GetActiveByAuction(ctx context.Context, auctionID string) (*models.Round, error) {
	for _, rnd := range r.t.rounds {
		if rnd.AuctionID == auctionID && (rnd.Status == models.RoundActive || rnd.Status == models.RoundProcessing) {
			cp := *rnd
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("rounds: get active for %s: %w", auctionID, apierrors.ErrNotFound)
}

func (r *rawRounds) ListActive(ctx context.Context) ([]*models.Round, error) {
	var out []*models.Round
	for _, rnd := range r.t.rounds {
		if rnd.Status == models.RoundActive {
			cp := *rnd
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *rawRounds) Create(ctx context.Context, rnd *models.Round) error {
	key := roundKeyOf(rnd.AuctionID, rnd.RoundNumber)
	if _, exists := r.t.roundKey[key]; exists {
		return fmt.Errorf("rounds: create %s: %w", key, apierrors.ErrConflict)
	}
	cp := *rnd
	r.t.rounds[rnd.RoundID] = &cp
	r.t.roundKey[key] = rnd.RoundID
	return nil
}

func (r *rawRounds) Update(ctx context.Context, rnd *models.Round) error {
	if _, ok := r.t.rounds[rnd.RoundID]; !ok {
		return fmt.Errorf("rounds: update %s: %w", rnd.RoundID, apierrors.ErrNotFound)
	}
	cp := *rnd
	r.t.rounds[rnd.RoundID] = &cp
	return nil
}

func (r *rawRounds) CompareAndSetStatus(ctx context.Context, roundID string, from, to models.RoundStatus) error {
	rnd, ok := r.t.rounds[roundID]
	if !ok {
		return fmt.Errorf("rounds: cas %s: %w", roundID, apierrors.ErrNotFound)
	}
	if rnd.Status != from {
		return fmt.Errorf("rounds: cas %s from %s to %s: %w", roundID, from, to, apierrors.ErrConflict)
	}
	rnd.Status = to
	return nil
}

type lockedRounds struct {
	mu *sync.RWMutex
	t  *tables
}

func (r *lockedRounds) GetByID(ctx context.Context, roundID string) (*models.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawRounds{t: r.t}).GetByID(ctx, roundID)
}

func (r *lockedRounds) GetByAuctionAndNumber(ctx context.Context, auctionID string, roundNumber int) (*models.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawRounds{t: r.t}).GetByAuctionAndNumber(ctx, auctionID, roundNumber)
}

func (r *lockedRounds) GetActiveByAuction(ctx context.Context, auctionID string) (*models.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawRounds{t: r.t}).GetActiveByAuction(ctx, auctionID)
}

func (r *lockedRounds) ListActive(ctx context.Context) ([]*models.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawRounds{t: r.t}).ListActive(ctx)
}

func (r *lockedRounds) Create(ctx context.Context, rnd *models.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawRounds{t: r.t}).Create(ctx, rnd)
}

func (r *lockedRounds) Update(ctx context.Context, rnd *models.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawRounds{t: r.t}).Update(ctx, rnd)
}

func (r *lockedRounds) CompareAndSetStatus(ctx context.Context, roundID string, from, to models.RoundStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawRounds{t: r.t}).CompareAndSetStatus(ctx, roundID, from, to)
}

// ── Bids ────────────────────────────────────────────────────────────────

type rawBids struct{ t *tables }

func (r *rawBids) GetByRoundAndUser(ctx context.Context, roundID, userID string) (*models.Bid, error) {
	id, ok := r.t.bidKey[bidKeyOf(roundID, userID)]
	if !ok {
		return nil, fmt.Errorf("bids: get %s/%s: %w", roundID, userID, apierrors.ErrNotFound)
	}
	cp := *r.t.bids[id]
	return &cp, nil
}

func (r *rawBids) ListActiveByRoundRanked(ctx context.Context, roundID string) ([]*models.Bid, error) {
	var out []*models.Bid
	for _, b := range r.t.bids {
		if b.RoundID == roundID && b.Status == models.BidActive {
			cp := *b
			out = append(out, &cp)
		}
	}
	rankSort(out)
	return out, nil
}

func (r *rawBids) ListByUser(ctx context.Context, userID string) ([]*models.Bid, error) {
	var out []*models.Bid
	for _, b := range r.t.bids {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *rawBids) ListWonByUser(ctx context.Context, userID string) ([]*models.Bid, error) {
	var out []*models.Bid
	for _, b := range r.t.bids {
		if b.UserID == userID && b.Status == models.BidWon {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *rawBids) CountActiveByRound(ctx context.Context, roundID string) (int, error) {
	n := 0
	for _, b := range r.t.bids {
		if b.RoundID == roundID && b.Status == models.BidActive {
			n++
		}
	}
	return n, nil
}

func (r *rawBids) Create(ctx context.Context, b *models.Bid) error {
	key := bidKeyOf(b.RoundID, b.UserID)
	if _, exists := r.t.bidKey[key]; exists {
		return fmt.Errorf("bids: create %s: %w", key, apierrors.ErrConflict)
	}
	cp := *b
	r.t.bids[b.BidID] = &cp
	r.t.bidKey[key] = b.BidID
	return nil
}

func (r *rawBids) Update(ctx context.Context, b *models.Bid) error {
	if _, ok := r.t.bids[b.BidID]; !ok {
		return fmt.Errorf("bids: update %s: %w", b.BidID, apierrors.ErrNotFound)
	}
	cp := *b
	r.t.bids[b.BidID] = &cp
	return nil
}

type lockedBids struct {
	mu *sync.RWMutex
	t  *tables
}

func (r *lockedBids) GetByRoundAndUser(ctx context.Context, roundID, userID string) (*models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawBids{t: r.t}).GetByRoundAndUser(ctx, roundID, userID)
}

func (r *lockedBids) ListActiveByRoundRanked(ctx context.Context, roundID string) ([]*models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawBids{t: r.t}).ListActiveByRoundRanked(ctx, roundID)
}

func (r *lockedBids) ListByUser(ctx context.Context, userID string) ([]*models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawBids{t: r.t}).ListByUser(ctx, userID)
}

func (r *lockedBids) ListWonByUser(ctx context.Context, userID string) ([]*models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawBids{t: r.t}).ListWonByUser(ctx, userID)
}

func (r *lockedBids) CountActiveByRound(ctx context.Context, roundID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawBids{t: r.t}).CountActiveByRound(ctx, roundID)
}

func (r *lockedBids) Create(ctx context.Context, b *models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawBids{t: r.t}).Create(ctx, b)
}

func (r *lockedBids) Update(ctx context.Context, b *models.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawBids{t: r.t}).Update(ctx, b)
}

// rankSort orders bids by (amount DESC, createdAt ASC) — the tie-break
// order used by anti-snipe ranking, settlement, and minBidForWin (spec.md
// §4.5.1, §4.5.2, §4.6).
func rankSort(bids []*models.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount > bids[j].Amount
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}

// RankSort is exported for packages that need the same tie-break ordering
// over a slice they already hold (e.g. the round service's derived reads).
func RankSort(bids []*models.Bid) { rankSort(bids) }

// ── Ledger ──────────────────────────────────────────────────────────────

type rawLedger struct{ t *tables }

func (r *rawLedger) Append(ctx context.Context, e *models.LedgerEntry) error {
	cp := *e
	r.t.ledger = append(r.t.ledger, &cp)
	return nil
}

func (r *rawLedger) ListByUser(ctx context.Context, userID string) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	for i := len(r.t.ledger) - 1; i >= 0; i-- {
		if r.t.ledger[i].UserID == userID {
			cp := *r.t.ledger[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

type lockedLedger struct {
	mu *sync.RWMutex
	t  *tables
}

func (r *lockedLedger) Append(ctx context.Context, e *models.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&rawLedger{t: r.t}).Append(ctx, e)
}

func (r *lockedLedger) ListByUser(ctx context.Context, userID string) ([]*models.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&rawLedger{t: r.t}).ListByUser(ctx, userID)
}
