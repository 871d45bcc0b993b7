package monitor

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowkit/errors"
)

const (
	// DefaultStreamInterval is the pause between two stats events.
	DefaultStreamInterval = time.Second
	minStreamInterval     = 100 * time.Millisecond
)

// StreamStages returns a handler pushing stage stats as server-sent events.
// A "stats" event is sent at once and then every interval, which the
// client may override with ?interval=. The stream ends with a "done" event
// once every registered stage completed, or when the client disconnects.
func StreamStages(registry *Registry, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		every := interval
		if v := c.Query("interval"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < minStreamInterval {
				RespondWithError(c, errors.InvalidInput("interval", "must be a duration of at least 100ms"))
				return
			}
			every = d
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		ctx := c.Request.Context()
		for {
			c.SSEvent("stats", DataResponse{Data: registry.Stats()})
			if registry.Finished() {
				c.SSEvent("done", DataResponse{Data: registry.Health(ctx)})
				c.Writer.Flush()
				return
			}
			c.Writer.Flush()

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
