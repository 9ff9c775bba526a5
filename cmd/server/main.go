package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sayeni/butty/internal/config"
	"github.com/sayeni/butty/internal/logger"
	"github.com/sayeni/butty/internal/plaid"
	"github.com/sayeni/butty/internal/server"
	"github.com/sayeni/butty/internal/service"
	"github.com/sayeni/butty/internal/store"
	"github.com/sayeni/butty/internal/store/memory"
	"github.com/sayeni/butty/internal/store/postgres"
)

func main() {
	var (
		useMemory = flag.Bool("memory", false, "use the in-memory store instead of Postgres (dev only)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.New("info")
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.New(cfg.LogLevel)

	var st store.Store
	switch {
	case *useMemory || cfg.DatabaseURL == "":
		log.Warn().Msg("Using in-memory store - data is lost on restart")
		st = memory.New()
	default:
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer pg.Close()
		st = pg
	}

	var plaidClient plaid.Client
	if cfg.PlaidEnabled() {
		client, err := plaid.NewAPI(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build Plaid client")
		}
		plaidClient = client
		log.Info().Str("env", cfg.PlaidEnv).Msg("Plaid integration enabled")
	} else {
		log.Warn().Msg("No Plaid credentials configured - Plaid routes will return 503")
	}

	svc := service.New(st, plaidClient)
	handler := server.NewHandler(svc, log)
	srv := server.New(cfg, handler, log)

	if err := srv.Run(ctx, cfg.ShutdownTimeout); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Server exited")
}
