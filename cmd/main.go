package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"photostream-realtime/internal/infrastructure/auth"
	"photostream-realtime/internal/infrastructure/config"
	"photostream-realtime/internal/infrastructure/logger"
	"photostream-realtime/internal/infrastructure/registry"
	"photostream-realtime/internal/infrastructure/server"
)

func main() {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogrusLogger(cfg.Logger)

	reg := registry.New(log, cfg.SweepInterval)
	if err := reg.Start(ctx); err != nil {
		log.Errorf("failed to start registry: %v", err)
		return
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)

	router := InitRouter(reg, verifier, log)
	httpSrv := server.NewHTTPServer(cfg.Addr, router)
	app := newApplication(log, httpSrv, reg)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

type Application struct {
	logger   logger.Logger
	httpSrv  server.Server
	registry *registry.Registry
}

func newApplication(
	log logger.Logger,
	httpSrv *server.HTTPServer,
	reg *registry.Registry,
) *Application {
	return &Application{
		logger:   log.WithField("app", "realtime"),
		httpSrv:  httpSrv,
		registry: reg,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()

		// Stop the registry first so connected clients see a clean close
		// before the listener goes away.
		if err := app.registry.Stop(shutdownCtx); err != nil {
			app.logger.Errorf("failed to stop registry: %v", err)
		}

		return app.httpSrv.Stop(shutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
