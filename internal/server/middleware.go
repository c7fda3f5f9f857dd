package server

import (
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"auctionhouse/internal/logging"
	"auctionhouse/internal/metrics"
)

var hexUserID = regexp.MustCompile(`^[0-9a-f]{24}$`)

// RequestLoggerMiddleware logs every request's method, path, status and
// latency, mirroring the teacher's RequestLoggerMiddleware.
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	latency := time.Since(start)
	logging.Info("http request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": latency.String(),
	})
	metrics.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), latency)
}

// RequireUser extracts and validates the opaque X-User-Id header
// (24-hex, per spec.md §6.1), rejecting with 401 if missing or malformed.
func RequireUser(c *gin.Context) {
	userID := c.GetHeader("X-User-Id")
	if !hexUserID.MatchString(userID) {
		JSONError(c, http.StatusUnauthorized, "missing or malformed X-User-Id")
		c.Abort()
		return
	}
	c.Set("userID", userID)
	c.Next()
}

func userIDFromContext(c *gin.Context) string {
	v, _ := c.Get("userID")
	id, _ := v.(string)
	return id
}
