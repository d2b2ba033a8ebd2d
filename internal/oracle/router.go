package oracle

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig holds HTTP-layer configuration.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter builds the Gin engine with all middleware and routes wired.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(PrometheusMiddleware())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "OPTIONS"}
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	if cfg.RateLimitRPS > 0 {
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/server/:name", h.ResolveServer)
		v1.GET("/server/:name/addr", h.ResolveServerAddr)
		v1.GET("/client/:domain", h.ResolveClient)
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", MetricsHandler())

	return r
}
