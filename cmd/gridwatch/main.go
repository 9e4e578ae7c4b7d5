// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gridwatch/internal/app"
	"github.com/relabs-tech/gridwatch/internal/config"
	"github.com/relabs-tech/gridwatch/internal/observability"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "KEY=VALUE config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(config.Find(*configPath))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := observability.InitLogger(observability.LogOptions{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	logger.Info().Str("device", cfg.DevicePort).Str("registry", cfg.RegistryBackend).Msg("starting gridwatch")

	if err := app.RunServer(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}
