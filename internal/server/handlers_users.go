package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"auctionhouse/internal/apierrors"
	"auctionhouse/internal/idgen"
	"auctionhouse/internal/models"
)

// Login handles POST /api/users/login.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	u, _, err := h.store.Users().GetOrCreate(c.Request.Context(), idgen.New(), req.Username)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, toUserDTO(u))
}

// Me handles GET /api/users/me.
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.store.Users().GetByID(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, toUserDTO(u))
}

// Deposit handles POST /api/users/me/deposit.
func (h *Handlers) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	u, err := h.wallet.Deposit(c.Request.Context(), userIDFromContext(c), req.Amount)
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, toUserDTO(u))
}

// Wins handles GET /api/users/me/wins.
func (h *Handlers) Wins(c *gin.Context) {
	bids, err := h.store.Bids().ListWonByUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, toBidDTOs(bids))
}

// MyBids handles GET /api/users/me/bids.
func (h *Handlers) MyBids(c *gin.Context) {
	bids, err := h.store.Bids().ListByUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		status, message := apierrors.MapToHTTP(err)
		JSONError(c, status, message)
		return
	}
	JSONResponse(c, http.StatusOK, toBidDTOs(bids))
}

func toBidDTOs(bids []*models.Bid) []bidDTO {
	out := make([]bidDTO, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidDTO(b))
	}
	return out
}
