package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pairwave/pairwave-server/internal/auth"
	"github.com/pairwave/pairwave-server/internal/config"
	"github.com/pairwave/pairwave-server/internal/core"
	"github.com/pairwave/pairwave-server/internal/history"
	historysqlite "github.com/pairwave/pairwave-server/internal/history/sqlite"
	"github.com/pairwave/pairwave-server/internal/presence"
	"github.com/pairwave/pairwave-server/internal/pubsub"
	"github.com/pairwave/pairwave-server/internal/push"
	transporthttp "github.com/pairwave/pairwave-server/internal/transport/http"
)

// App wires together the relay core, its collaborators, and the transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	bus             pubsub.Bus
	gateway         history.Gateway
	rdb             *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	gateway, err := historysqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init history gateway: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("history gateway initialized")

	var (
		bus  pubsub.Bus
		pres presence.Store
		rdb  *redis.Client
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			gateway.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		bus = pubsub.NewRedisBus(rdb, logger)
		pres = presence.NewRedis(rdb, cfg.PresenceTTL)
		logger.Info().Str("redis", opt.Addr).Msg("redis presence and pub/sub enabled")
	} else {
		bus = pubsub.NewMemoryBus()
		pres = presence.NewMemory()
		logger.Info().Msg("running with in-memory presence and pub/sub")
	}

	var bridge push.Bridge = push.Nop{}
	if cfg.VAPIDPrivateKey != "" {
		bridge = push.NewWebPush(gateway, push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDEmail,
		}, logger)
		logger.Info().Msg("web push bridge enabled")
	}

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}

	router := core.NewRouter(bus, pres, gateway, bridge, logger)
	server := transporthttp.NewServer(bus, pres, router, gateway, jwtCfg, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		bus:             bus,
		gateway:         gateway,
		rdb:             rdb,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the bus, the history gateway, and the redis connection.
func (a *App) cleanup() {
	if err := a.bus.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close bus")
	}
	if err := a.gateway.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close history gateway")
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}
