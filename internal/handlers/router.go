package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paulexconde/surveyflow/internal/logger"
)

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// NewRouter wires the middleware and every route under /api/v1.
func NewRouter(flow *FlowHandler, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), AttachRequestID(), RequestLogger(log.With("component", "http")))

	r.GET("/healthz", HealthCheck)
	flow.Register(r.Group("/api/v1"))
	return r
}
