package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/auctionservice"
	"auctionhouse/internal/roundservice"
)

// ListAuctions handles GET /api/auctions.
func (h *Handlers) ListAuctions(c *gin.Context) {
	auctions, err := h.auctions.List(c.Request.Context())
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	out := make([]auctionDTO, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, toAuctionDTO(a))
	}
	JSONResponse(c, http.StatusOK, out)
}

// GetAuction handles GET /api/auctions/:id, populating activeRound when
// the auction has one in flight (spec.md §6.1).
func (h *Handlers) GetAuction(c *gin.Context) {
	auctionID := c.Param("id")
	a, err := h.auctions.Get(c.Request.Context(), auctionID)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}

	dto := toAuctionDTO(a)
	round, err := h.store.Rounds().GetActiveByAuction(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, apierrors.ErrNotFound) {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	if err == nil {
		ranked, err := h.store.Bids().ListActiveByRoundRanked(c.Request.Context(), round.RoundID)
		if err != nil {
			status, message := apierrors.MapToHTTP(err)
			JSONError(c, status, message)
			return
		}
		dto.ActiveRound = &activeRoundDTO{
			RoundID:      round.RoundID,
			RoundNumber:  round.RoundNumber,
			StartAt:      round.StartAt.Format(time.RFC3339),
			EndAt:        round.EndAt.Format(time.RFC3339),
			WinnersCount: round.WinnersCount,
			MinBidForWin: roundservice.MinBidForWin(ranked, round.WinnersCount),
			TotalBids:    len(ranked),
		}
	}
	JSONResponse(c, http.StatusOK, dto)
}

// Leaderboard handles GET /api/auctions/:id/leaderboard?limit=.
func (h *Handlers) Leaderboard(c *gin.Context) {
	auctionID := c.Param("id")
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	round, err := h.store.Rounds().GetActiveByAuction(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			JSONResponse(c, http.StatusOK, []leaderboardEntryDTO{})
			return
		}
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	ranked, err := h.store.Bids().ListActiveByRoundRanked(c.Request.Context(), round.RoundID)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	if limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]leaderboardEntryDTO, 0, limit)
	for i := 0; i < limit; i++ {
		b := ranked[i]
		u, err := h.store.Users().GetByID(c.Request.Context(), b.UserID)
		if err != nil {
			status, message := apierrors.MapToHTTP(err)
			JSONError(c, status, message)
			return
		}
		out = append(out, leaderboardEntryDTO{Rank: i + 1, UserID: b.UserID, Username: u.Username, Amount: b.Amount})
	}
	JSONResponse(c, http.StatusOK, out)
}

// BidsCount handles GET /api/auctions/:id/bids/count.
func (h *Handlers) BidsCount(c *gin.Context) {
	auctionID := c.Param("id")
	round, err := h.store.Rounds().GetActiveByAuction(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			JSONResponse(c, http.StatusOK, gin.H{"count": 0})
			return
		}
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	count, err := h.store.Bids().CountActiveByRound(c.Request.Context(), round.RoundID)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, gin.H{"count": count})
}

// CreateAuction handles POST /api/auctions.
func (h *Handlers) CreateAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		JSONError(c, http.StatusBadRequest, "startAt must be an RFC3339 timestamp")
		return
	}

	first := h.defaults.FirstRoundDuration
	if req.FirstRoundDuration != "" {
		if d, err := time.ParseDuration(req.FirstRoundDuration); err == nil {
			first = d
		}
	}
	other := h.defaults.OtherRoundDuration
	if req.OtherRoundDuration != "" {
		if d, err := time.ParseDuration(req.OtherRoundDuration); err == nil {
			other = d
		}
	}
	minBid := req.MinBid
	if minBid <= 0 {
		minBid = 1
	}

	in := auctionservice.CreateInput{
		Name:               req.Name,
		Description:        req.Description,
		TotalItems:         req.TotalItems,
		TotalRounds:        req.TotalRounds,
		ItemsPerRound:      req.WinnersPerRound,
		MinBid:             minBid,
		StartAt:            startAt,
		FirstRoundDuration: first,
		OtherRoundDuration: other,
		AntiSnipeWindow:    h.defaults.AntiSnipeWindow,
		AntiSnipeExtension: h.defaults.AntiSnipeExtension,
		AntiSnipeThreshold: h.defaults.AntiSnipeThreshold,
	}
	a, err := h.auctions.Create(c.Request.Context(), in)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, toAuctionDTO(a))
}

// PlaceBid handles POST /api/auctions/:id/bid.
func (h *Handlers) PlaceBid(c *gin.Context) {
	var req bidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.bids.PlaceBid(c.Request.Context(), userIDFromContext(c), c.Param("id"), req.Amount)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, toBidDTO(result.Bid))
}

// MyBid handles GET /api/auctions/:id/my-bid.
func (h *Handlers) MyBid(c *gin.Context) {
	auctionID := c.Param("id")
	userID := userIDFromContext(c)

	round, err := h.store.Rounds().GetActiveByAuction(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			JSONResponse(c, http.StatusOK, nil)
			return
		}
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}

	bid, err := h.store.Bids().GetByRoundAndUser(c.Request.Context(), round.RoundID, userID)
	if err != nil {
		if errors.Is(err, apierrors.ErrNotFound) {
			JSONResponse(c, http.StatusOK, nil)
			return
		}
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}

	ranked, err := h.store.Bids().ListActiveByRoundRanked(c.Request.Context(), round.RoundID)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}

	JSONResponse(c, http.StatusOK, myBidDTO{
		ID:     bid.BidID,
		Amount: bid.Amount,
		Rank:   roundservice.Rank(ranked, userID),
		Status: string(bid.Status),
	})
}
