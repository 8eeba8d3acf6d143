package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"snapfeed/internal/app"
	"snapfeed/pkg/config"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/shutdown"
)

func main() {
	// build metadata, set via ldflags during release
	var (
		version = "dev"
	)
	_ = godotenv.Load(".env")

	flags := config.ParseFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(eff.Config.Logging.Level)

	a, err := app.New(eff, version)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server failed", err, eff.DBPath)
	}
	logger.Info("server_stopped")
}
