package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"templatestore/internal/service/notification"
)

// drainQueue is the external trigger for the notification queue. The drain
// itself runs on the dispatcher; the handler only hands it over.
func (h *handlers) drainQueue(c *gin.Context) {
	if want := h.opts.TriggerToken; want != "" {
		got := c.GetHeader("X-Queue-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.String(http.StatusUnauthorized, "invalid queue token")
			return
		}
	}

	if c.Query("stats") == "1" {
		stats, err := h.deps.Queue.Stats(c.Request.Context())
		if err != nil {
			h.logger.Printf("queue: stats error=%v", err)
			writeJSONError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
		return
	}

	mode := notification.ModeNormal
	if c.Query("aggressive") == "1" {
		mode = notification.ModeAggressive
	}
	batch := h.opts.BatchSize
	drain := func(ctx context.Context) {
		res, err := h.deps.Queue.Drain(ctx, batch, mode)
		if err != nil {
			h.logger.Printf("queue: drain mode=%s error=%v", mode, err)
			return
		}
		h.logger.Printf("queue: drained mode=%s sent=%d retried=%d failed=%d", mode, res.Sent, res.Retried, res.Failed)
	}

	if h.deps.Dispatcher != nil && h.deps.Dispatcher.Submit(drain) {
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "mode": mode})
		return
	}
	drain(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "drained", "mode": mode})
}
