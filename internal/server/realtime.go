package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"auctionhouse/internal/eventbus"
)

// Events handles GET /api/auctions/:id/events: a server-sent event
// stream scoped to one auction room. A client "joins" by opening the
// connection and "leaves" by closing it — there is no separate
// join/leave request, since gin's SSE helper (like the rest of the
// teacher's JSON transport) is request-scoped rather than socket-scoped.
func (h *Handlers) Events(c *gin.Context) {
	auctionID := c.Param("id")
	events, unsubscribe := h.bus.Subscribe(auctionID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Kind, event.Payload)
			return true
		case <-time.After(30 * time.Second):
			c.SSEvent("ping", gin.H{})
			return true
		}
	})
}

// GlobalEvents handles GET /api/events: the broadcast stream for
// auction:start and auction:complete (spec.md §6.2 "also broadcast"),
// for clients that haven't joined a specific auction room yet.
func (h *Handlers) GlobalEvents(c *gin.Context) {
	events, unsubscribe := h.bus.Subscribe(eventbus.GlobalRoom)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Kind, event.Payload)
			return true
		case <-time.After(30 * time.Second):
			c.SSEvent("ping", gin.H{})
			return true
		}
	})
}
