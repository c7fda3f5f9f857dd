package server

import "github.com/gin-gonic/gin"

// Health handles GET /api/health.
func (h *Handlers) Health(c *gin.Context) {
	JSONResponse(c, 200, gin.H{"status": "ok"})
}
