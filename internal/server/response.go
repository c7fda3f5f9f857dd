package server

import "github.com/gin-gonic/gin"

// JSONResponse sends the envelope spec.md §6.1 requires for success.
func JSONResponse(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// JSONError sends the error envelope.
func JSONError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
