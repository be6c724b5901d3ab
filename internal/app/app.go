// Package app bootstraps the API service: configuration, storage backend,
// domain services, HTTP server and background workers.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/WillSoph/top-game-score/internal/billing"
	"github.com/WillSoph/top-game-score/internal/config"
	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/identity"
	"github.com/WillSoph/top-game-score/internal/leaderboard"
	"github.com/WillSoph/top-game-score/internal/logging"
	"github.com/WillSoph/top-game-score/internal/server"
	"github.com/WillSoph/top-game-score/internal/session"
	"github.com/WillSoph/top-game-score/internal/store"
	memorystore "github.com/WillSoph/top-game-score/internal/store/memory"
	postgresstore "github.com/WillSoph/top-game-score/internal/store/postgres"
	ws "github.com/WillSoph/top-game-score/pkg/http/ws"
)

// Application aggregates shared infrastructure and workers.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool    *pgxpool.Pool
	redis   *redis.Client
	docs    store.Store
	storeCl func()
	http    *http.Server

	broadcaster *leaderboard.Broadcaster
	reconciler  *leaderboard.Reconciler
	sweeper     *billing.ExpirySweeper
}

// New bootstraps the application from config.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Str("store", cfg.StoreDriver).Msg("starting application bootstrap")

	app := &Application{cfg: cfg, logger: logger}

	switch cfg.StoreDriver {
	case "postgres":
		connString := cfg.Postgres.DSN() + " pool_max_conns=10"
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		pgStore := postgresstore.New(pool, redisClient, cfg.Redis.Channel, logger)
		app.pool = pool
		app.redis = redisClient
		app.docs = pgStore
		app.storeCl = pgStore.Close
	case "memory":
		logger.Warn().Msg("memory store configured; state is lost on restart")
		app.docs = memorystore.New()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	groups := group.NewService(app.docs, group.Options{
		DefaultMaxTimeSec: cfg.Game.DefaultMaxTimeSec,
		MinMaxTimeSec:     cfg.Game.MinMaxTimeSec,
		MaxMaxTimeSec:     cfg.Game.MaxMaxTimeSec,
		FreeQuestionLimit: cfg.Billing.FreeQuestionLimit,
		FreeGroupTTL:      cfg.Billing.FreeGroupTTL,
	}, logger)

	tokens := identity.NewManager(identity.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		TTL:    cfg.Security.TokenTTL,
		Issuer: cfg.Name,
	})

	hub := ws.NewHub(logger)
	app.broadcaster = leaderboard.NewBroadcaster(app.docs, groups, hub, logger)
	app.reconciler = leaderboard.NewReconciler(app.docs, groups, cfg.Game.ReconcileInterval, logger)

	billingSvc := billing.NewService(app.docs, groups, cfg.Billing.FreeGroupTTL, logger)
	app.sweeper = billing.NewExpirySweeper(app.docs, groups, cfg.Billing.SweepInterval, logger)

	sessionCfg := session.Config{
		TickInterval: cfg.Game.TickInterval,
		SettleDelay:  cfg.Game.SettleDelay,
	}

	app.http = server.NewHTTPServer(cfg, logger, server.Handlers{
		Identity:    identity.NewHTTPHandlers(tokens, logger),
		Groups:      group.NewHTTPHandlers(groups, logger),
		Leaderboard: leaderboard.NewHTTPHandler(groups, logger),
		Billing:     billing.NewHTTPHandlers(billingSvc, logger),
		GroupWS:     session.NewHandler(groups, app.docs, hub, app.broadcaster, sessionCfg, logger),
		Auth:        tokens,
		Ping:        app.ping,
	})

	return app, nil
}

// Run starts the HTTP server and background workers, then waits for a
// termination signal or a fatal worker error.
func (a *Application) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, workerCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := a.reconciler.Run(workerCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("score reconciler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.sweeper.Run(workerCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("expiry sweeper: %w", err)
		}
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		cancel()
		_ = g.Wait()
		return fmt.Errorf("http server error: %w", err)
	case <-workerCtx.Done():
		if err := g.Wait(); err != nil {
			return err
		}
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	cancel()
	_ = g.Wait()
	a.broadcaster.Close()

	if a.storeCl != nil {
		a.storeCl()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) ping(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}
