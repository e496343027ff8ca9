package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"scientia/src/notify"
)

type EventHandler struct {
	bus notify.Bus
}

func NewEventHandler(bus notify.Bus) *EventHandler {
	return &EventHandler{bus: bus}
}

// Stream bridges the notification channel onto a server-sent event stream.
// Each task event becomes one SSE message; the stream ends when the client
// disconnects.
func (h *EventHandler) Stream(c *gin.Context) {
	events, err := h.bus.Subscribe(c.Request.Context(), notify.GlobalChannel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe to events"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}

		data, err := json.Marshal(event)
		if err != nil {
			return true
		}
		c.SSEvent("task", string(data))
		return true
	})
}
