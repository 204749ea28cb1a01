package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "barefoot_sync/internal/adapters/http_server"
	"barefoot_sync/internal/adapters/observability"
	"barefoot_sync/internal/bootstrap"
	"barefoot_sync/internal/shared"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}
	defer deps.Close()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// http
	srv := server.New(15 * time.Second)
	if cfg.MetricsAddr == "" {
		srv.Mount("/metrics", observability.MetricsHandler(reg))
	}
	srv.MountHandlers(&server.Handlers{Q: deps.Queries, Sync: deps.Sync, AdminToken: cfg.AdminToken})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
