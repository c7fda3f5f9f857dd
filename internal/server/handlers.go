// Package server implements the HTTP transport (spec.md §6.1, §6.2):
// gin handlers, the response envelope, auth middleware, and the
// realtime event stream, wired against the core services rather than
// the repository directly wherever a service owns the operation.
package server

import (
	"auctionhouse/internal/auctionservice"
	"auctionhouse/internal/bidservice"
	"auctionhouse/internal/config"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/repository"
	"auctionhouse/internal/roundservice"
	"auctionhouse/internal/wallet"
)

// Handlers holds every dependency the HTTP surface needs, mirroring the
// teacher's handler-holds-a-service-interface shape but aggregated into
// one struct since this API spans five resource groups instead of one.
type Handlers struct {
	store    repository.Store
	wallet   *wallet.Ledger
	auctions *auctionservice.Service
	rounds   *roundservice.Service
	bids     *bidservice.Service
	bus      eventbus.Bus
	defaults config.AuctionDefaults
}

// NewHandlers wires the HTTP layer to the core services.
func NewHandlers(store repository.Store, w *wallet.Ledger, auctions *auctionservice.Service, rounds *roundservice.Service, bids *bidservice.Service, bus eventbus.Bus, defaults config.AuctionDefaults) *Handlers {
	return &Handlers{store: store, wallet: w, auctions: auctions, rounds: rounds, bids: bids, bus: bus, defaults: defaults}
}
