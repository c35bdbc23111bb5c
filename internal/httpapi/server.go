package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer builds the gin engine: logging, recovery, then the three
// routes this front end owns. There is no podcast query surface here
// by design, only task submission and the two operational probes.
// apiAccessKey, when non-empty, gates /add_task behind a bearer token;
// /healthz and /metrics stay open for probes and scrapers.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))
	r.Use(gin.Recovery())

	addTask := r.Group("/")
	if apiAccessKey != "" {
		addTask.Use(authMiddleware(apiAccessKey))
	}
	addTask.POST("/add_task", handler.AddTask)

	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(handler.registry, promhttp.HandlerOpts{})))

	return r
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			const prefix = "Bearer "
			if auth := c.GetHeader("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				key = auth[len(prefix):]
			}
		}
		if key != apiAccessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}
