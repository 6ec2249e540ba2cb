package main

import (
	"context"

	"github.com/joho/godotenv"

	"tezrelay/internal/app"
	"tezrelay/pkg/config"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/shutdown"
)

// build metadata, set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseCommandFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		logger.Init("")
		shutdown.Abort("failed to load config", err, flags.Data)
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		logger.Init("")
		shutdown.Abort("failed to initialize relay", err, eff.DataDir)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("relay run failed", err, eff.DataDir)
	}
}
