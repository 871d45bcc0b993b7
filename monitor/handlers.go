package monitor

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/version"
)

// DataResponse is the success envelope of every monitor endpoint.
type DataResponse struct {
	Data any `json:"data"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	*observability.ServiceHealth
	Build     version.Info `json:"build"`
	Timestamp string       `json:"timestamp"`
}

// Register mounts the monitor routes on router.
func Register(router gin.IRouter, registry *Registry) {
	router.GET("/stages", ListStages(registry))
	router.GET("/stages/stream", StreamStages(registry, DefaultStreamInterval))
	router.GET("/stages/:id", GetStage(registry))
	router.GET("/health", Health(registry))
}

// ListStages returns a handler reporting the stats of every registered stage.
func ListStages(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, DataResponse{Data: registry.Stats()})
	}
}

// GetStage returns a handler reporting the stats of the stage named by the
// :id path parameter.
func GetStage(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		n, ok := registry.Get(id)
		if !ok {
			RespondWithError(c, errors.NotFound("stage", id))
			return
		}
		c.JSON(http.StatusOK, DataResponse{Data: n.Stats()})
	}
}

// Health returns a handler reporting aggregated stage health and the build
// of the process. A stage that failed on its own turns the response into
// a 503.
func Health(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := registry.Health(c.Request.Context())

		status := http.StatusOK
		if health.Status == observability.HealthStatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, HealthResponse{
			ServiceHealth: health,
			Build:         version.Get(),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// RespondWithError writes err as a structured error body with the status
// derived from its code.
func RespondWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), errors.ToResponse(err))
}
