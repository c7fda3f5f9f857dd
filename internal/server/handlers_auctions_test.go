package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func createAuctionBody(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"totalItems":  4,
		"totalRounds": 2,
		"minBid":      10,
		"startAt":     time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}
}

func TestCreateAuction_Succeeds(t *testing.T) {
	router := SetupTestRouter()
	data, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("vintage watches"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "pending", data["status"])
	require.Equal(t, float64(2), data["itemsPerRound"])
}

func TestCreateAuction_RejectsInvalidPayload(t *testing.T) {
	router := SetupTestRouter()
	body := createAuctionBody("")
	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAuction_RejectsBadStartAt(t *testing.T) {
	router := SetupTestRouter()
	body := createAuctionBody("bad timestamp auction")
	body["startAt"] = "not-a-timestamp"
	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAuctions_ReturnsCreated(t *testing.T) {
	router := SetupTestRouter()
	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a1"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	envelope, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := envelope["data"].([]any)
	require.Len(t, list, 1)
}

func TestGetAuction_NotFound(t *testing.T) {
	router := SetupTestRouter()
	_, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions/bogus", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAuction_IncludesActiveRoundAfterStart(t *testing.T) {
	router, h := setupTestRouterWithHandlers()
	created, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a2"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	auctionID := created["auctionId"].(string)

	require.NoError(t, h.auctions.StartAuction(context.Background(), auctionID))

	data, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions/"+auctionID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "active", data["status"])
	activeRound := data["activeRound"].(map[string]any)
	require.Equal(t, float64(1), activeRound["roundNumber"])
}

func TestLeaderboard_EmptyBeforeStart(t *testing.T) {
	router := SetupTestRouter()
	created, _ := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a3"), nil)
	auctionID := created["auctionId"].(string)

	envelope, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions/"+auctionID+"/leaderboard", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, envelope["data"].([]any))
}

func TestPlaceBid_RequiresAuth(t *testing.T) {
	router := SetupTestRouter()
	created, _ := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a4"), nil)
	auctionID := created["auctionId"].(string)

	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions/"+auctionID+"/bid", map[string]any{"amount": 100}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlaceBid_FullFlow(t *testing.T) {
	router, h := setupTestRouterWithHandlers()
	created, _ := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a5"), nil)
	auctionID := created["auctionId"].(string)
	require.NoError(t, h.auctions.StartAuction(context.Background(), auctionID))

	aliceID := loginUser(t, router, "alice5")
	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/users/me/deposit", map[string]any{"amount": 1000}, authHeader(aliceID))
	require.Equal(t, http.StatusOK, w.Code)

	bidData, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions/"+auctionID+"/bid", map[string]any{"amount": 50}, authHeader(aliceID))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(50), bidData["amount"])
	require.Equal(t, "active", bidData["status"])

	countData, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions/"+auctionID+"/bids/count", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), countData["count"])

	myBid, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions/"+auctionID+"/my-bid", nil, authHeader(aliceID))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(50), myBid["amount"])
	require.Equal(t, float64(1), myBid["rank"])

	leaderboard, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions/"+auctionID+"/leaderboard", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := leaderboard["data"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	require.Equal(t, "alice5", entry["username"])
}

func TestPlaceBid_RejectsBelowMinimum(t *testing.T) {
	router, h := setupTestRouterWithHandlers()
	created, _ := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a6"), nil)
	auctionID := created["auctionId"].(string)
	require.NoError(t, h.auctions.StartAuction(context.Background(), auctionID))

	userID := loginUser(t, router, "bob6")
	ExecuteRequestAndParse(t, router, http.MethodPost, "/api/users/me/deposit", map[string]any{"amount": 1000}, authHeader(userID))

	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions/"+auctionID+"/bid", map[string]any{"amount": 1}, authHeader(userID))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlaceBid_RejectsInsufficientFunds(t *testing.T) {
	router, h := setupTestRouterWithHandlers()
	created, _ := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a7"), nil)
	auctionID := created["auctionId"].(string)
	require.NoError(t, h.auctions.StartAuction(context.Background(), auctionID))

	userID := loginUser(t, router, "carol7")

	_, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions/"+auctionID+"/bid", map[string]any{"amount": 50}, authHeader(userID))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMyBid_NullBeforeBidding(t *testing.T) {
	router, h := setupTestRouterWithHandlers()
	created, _ := ExecuteRequestAndParse(t, router, http.MethodPost, "/api/auctions", createAuctionBody("a8"), nil)
	auctionID := created["auctionId"].(string)
	require.NoError(t, h.auctions.StartAuction(context.Background(), auctionID))

	userID := loginUser(t, router, "dave8")
	envelope, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/api/auctions/"+auctionID+"/my-bid", nil, authHeader(userID))
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, envelope["data"])
}
