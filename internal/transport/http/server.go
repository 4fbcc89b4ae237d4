package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pairwave/pairwave-server/internal/auth"
	"github.com/pairwave/pairwave-server/internal/config"
	"github.com/pairwave/pairwave-server/internal/core"
	"github.com/pairwave/pairwave-server/internal/history"
	"github.com/pairwave/pairwave-server/internal/presence"
	"github.com/pairwave/pairwave-server/internal/pubsub"
)

// NewServer builds the HTTP server: websocket endpoint, REST API, health.
func NewServer(bus pubsub.Bus, pres presence.Store, router *core.Router, gw history.Gateway, jwtCfg *auth.JWTConfig, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	engine.GET("/healthz", healthHandler)

	ws := NewWSHandler(bus, pres, router, jwtCfg, cfg.HeartbeatInterval, logger)
	engine.GET("/ws/chat/:room", ws.Handle)

	api := engine.Group("/api", AuthMiddleware(jwtCfg, logger))
	handlers := NewAPIHandlers(gw, cfg.HistoryLimit, logger)
	api.GET("/rooms/:peer/messages", handlers.RoomMessages)
	api.GET("/notifications", handlers.Notifications)
	api.POST("/push/subscribe", handlers.SubscribePush)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
