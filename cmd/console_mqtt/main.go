// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"

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

	// Console output goes to stdout; keep logs readable on stderr.
	logger := observability.InitLogger(observability.LogOptions{
		Level:  cfg.LogLevel,
		Format: "console",
		File:   cfg.LogFile,
	})
	logger.Info().Msg("starting gridwatch console (MQTT subscriber)")

	if err := app.RunConsoleMQTT(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}
