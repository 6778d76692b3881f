package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		// Process request
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures a channel call
type Timer struct {
	start   time.Time
	metrics *Metrics
	channel string
	command string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, channel, command string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		channel: channel,
		command: command,
	}
}

// Stop stops the timer and records the call with its result code
func (t *Timer) Stop(code string) {
	t.metrics.RecordChannelCall(t.channel, t.command, code, time.Since(t.start))
}
