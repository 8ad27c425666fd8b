package api

import (
	"time"

	"clusterpval/internal"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the test endpoints under /v1.
func NewRouter(h *TestHandler, logger *internal.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	v1 := r.Group("/v1")
	{
		v1.POST("/tests/wald", h.Wald)
		v1.POST("/tests/approx", h.Approx)
	}
	return r
}

func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("[API] %s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
