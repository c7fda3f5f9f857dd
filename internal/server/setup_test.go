package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"auctionhouse/internal/auctionservice"
	"auctionhouse/internal/bidservice"
	"auctionhouse/internal/config"
	"auctionhouse/internal/eventbus"
	"auctionhouse/internal/lock"
	"auctionhouse/internal/queue"
	"auctionhouse/internal/repository/memory"
	"auctionhouse/internal/roundservice"
	"auctionhouse/internal/wallet"
)

// testDefaults mirrors the operator-tunable defaults a real deployment
// would load from config, with an anti-snipe window as long as the
// hour-long rounds so anti-snipe triggers in a test without sleeping.
func testDefaults() config.AuctionDefaults {
	return config.AuctionDefaults{
		FirstRoundDuration: time.Hour,
		OtherRoundDuration: time.Hour,
		AntiSnipeWindow:    time.Hour,
		AntiSnipeExtension: time.Minute,
		AntiSnipeThreshold: 3,
	}
}

// SetupTestRouter initializes the router against an in-memory backend,
// mirroring the teacher's SetupTestRouter helper.
func SetupTestRouter() *gin.Engine {
	router, _ := setupTestRouterWithHandlers()
	return router
}

// setupTestRouterWithHandlers also returns the wired Handlers so tests can
// reach into the services directly — e.g. to drive an auction's lifecycle
// past Create without standing up the real scheduler's background loop.
func setupTestRouterWithHandlers() (*gin.Engine, *Handlers) {
	gin.SetMode(gin.TestMode)
	store := memory.New()
	q := queue.NewMemory(time.Millisecond)
	bus := eventbus.NewMemory()
	locker := lock.NewMemory(time.Second, time.Millisecond)
	w := wallet.New(store)
	auctions := auctionservice.New(store, q, bus)
	rounds := roundservice.New(store, w, locker, q, bus)
	bids := bidservice.New(store, w, locker, q, bus)
	h := NewHandlers(store, w, auctions, rounds, bids, bus, testDefaults())
	return SetupRouter(h), h
}

// ExecuteRequestAndParse executes an HTTP request against router and
// unmarshals the envelope's body, returning the "data" field's contents
// (or the raw envelope if there is no "data" key).
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any, headers map[string]string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	var err error
	switch v := body.(type) {
	case nil:
		reqBody = nil
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var envelope map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	if data, ok := envelope["data"]; ok {
		if m, ok := data.(map[string]any); ok {
			return m, w
		}
	}
	return envelope, w
}

// loginUser logs a new user in and returns its 24-hex userID.
func loginUser(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()
	data, w := ExecuteRequestAndParse(t, router, "POST", "/api/users/login", map[string]any{"username": username}, nil)
	if w.Code != 200 {
		t.Fatalf("login failed: %d %v", w.Code, data)
	}
	return data["userId"].(string)
}

func authHeader(userID string) map[string]string {
	return map[string]string{"X-User-Id": userID}
}
