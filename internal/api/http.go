package api

import (
	"context"
	"net/http"
	"time"

	"ctfex.com/internal/api/handler"
	"ctfex.com/internal/api/router"
	"ctfex.com/pkg/middleware"
	"ctfex.com/pkg/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

type Config struct {
	Service string
	Addr    string
	Rate    float64 // 每个 ip+route 每秒
	Burst   int
	Metrics bool         // gin 请求指标, 测试里关掉避免重复注册
	Stream  http.Handler // 非 nil 时挂 GET /api/v1/stream (websocket)

	SignDomain string        // 签名消息里的域, 默认 Service
	SignSkew   time.Duration // X-Timestamp 允许的偏差, 默认 5m
}

// NewRouter builds the gin engine. The limiter janitor lives until ctx ends.
func NewRouter(ctx context.Context, cfg Config, eng handler.Engine, reg handler.Registry) *gin.Engine {
	if cfg.Service == "" {
		cfg.Service = "ctfex"
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}
	store := ratelimit.NewStore(rate.Limit(cfg.Rate), cfg.Burst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	r := gin.New()
	if cfg.Metrics {
		p := ginprom.NewPrometheus(cfg.Service)
		p.Use(r)
	}
	r.Use(
		otelgin.Middleware(cfg.Service),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
		middleware.RateLimit(cfg.Service, store),
	)
	if cfg.SignDomain == "" {
		cfg.SignDomain = cfg.Service
	}
	signed := middleware.Signer(middleware.SignerConfig{Domain: cfg.SignDomain, MaxSkew: cfg.SignSkew})

	api := r.Group("/api/v1")
	router.Orders(api, eng, signed)
	router.Markets(api, eng, reg, signed)
	router.Ticks(api)
	if cfg.Stream != nil {
		router.Stream(api, cfg.Stream)
	}
	return r
}

func NewServer(ctx context.Context, cfg Config, eng handler.Engine, reg handler.Registry) *http.Server {
	return &http.Server{
		Addr:           cfg.Addr,
		Handler:        NewRouter(ctx, cfg, eng, reg),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}
