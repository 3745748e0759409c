package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	googleadapter "github.com/smallbiznis/google-connect/internal/adapter/google"
	"github.com/smallbiznis/google-connect/internal/config"
	httptransport "github.com/smallbiznis/google-connect/internal/http"
	"github.com/smallbiznis/google-connect/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/google-connect/internal/http/middleware"
	"github.com/smallbiznis/google-connect/internal/server"
	authservice "github.com/smallbiznis/google-connect/internal/service/auth"
	"github.com/smallbiznis/google-connect/internal/statestore"
	"github.com/smallbiznis/google-connect/internal/telemetry"
	"github.com/smallbiznis/google-connect/internal/tokenstore"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newTokenStore,
			newStateRegistry,
			newGoogleEndpoints,
			newGoogleClient,
			newRateLimiter,
			newAuthService,
			handler.NewAuthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newTokenStore(cfg config.Config, logger *zap.Logger) tokenstore.Store {
	return tokenstore.NewFileStore(cfg.TokenFilePath, nil, logger)
}

func newStateRegistry(cfg config.Config) *statestore.Registry {
	return statestore.New(cfg.StateTTL, nil)
}

func newGoogleEndpoints() googleadapter.Endpoints {
	return googleadapter.DefaultEndpoints()
}

func newGoogleClient(cfg config.Config, endpoints googleadapter.Endpoints) googleadapter.Client {
	return googleadapter.NewHTTPClient(nil, endpoints, cfg.GoogleClientID, cfg.GoogleClientSecret)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthService(
	cfg config.Config,
	store tokenstore.Store,
	registry *statestore.Registry,
	client googleadapter.Client,
	endpoints googleadapter.Endpoints,
	logger *zap.Logger,
) authservice.Service {
	return authservice.NewService(cfg, store, registry, client, endpoints, logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
