package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/meikuraledutech/flowgraph/internal/config"
	"github.com/meikuraledutech/flowgraph/postgres"
	"github.com/meikuraledutech/flowgraph/runner"
)

func main() {
	cfg, err := config.Load(os.Getenv("FLOWGRAPH_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := cfg.SetupLogging(os.Stderr)
	if err := cfg.RequireDatabase(); err != nil {
		logger.Fatal().Err(err).Send()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect")
	}
	defer pool.Close()

	runners, closeRunners, err := runner.NewRegistry(ctx, cfg.RunnerSettings(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("runners")
	}
	defer closeRunners()

	app := newApp(postgres.New(pool), runners, logger)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	logger.Info().Str("address", cfg.HTTPAddress).Msg("listening")
	if err := app.Listen(cfg.HTTPAddress); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
}
