package main

import (
	"log/slog"
	"os"

	"atlas-auth/internal/app"
	"atlas-auth/internal/config"
	"atlas-auth/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		log.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
