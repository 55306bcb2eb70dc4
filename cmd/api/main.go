package main

import (
	"context"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"macrobench/adapters/llm"
	"macrobench/adapters/postgres"
	"macrobench/app"
	"macrobench/internal/config"
	"macrobench/internal/logging"
	"macrobench/ports"
	"macrobench/ui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Setup("info")
		fallback.Fatal().Err(err).Msg("configuration failed")
	}
	logger := logging.Setup(cfg.LogLevel)

	var repo ports.RunRepository
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		pg := postgres.NewRunRepository(db)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := pg.EnsureSchema(ctx); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("schema migration failed")
		}
		cancel()
		repo = pg
		logger.Info().Msg("run persistence enabled")
	} else {
		logger.Info().Msg("DATABASE_URL not set, runs are kept in memory only")
	}

	registry := llm.NewRegistry(cfg.LLM, logger)
	service := app.NewBacktestService(registry, logger)
	manager := app.NewRunManager(service, repo, logger)
	server := ui.NewServer(manager, cfg.LLM.Credentials, logger)

	if err := server.ListenAndServe(":" + cfg.Server.Port); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
