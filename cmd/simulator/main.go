// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Command simulator prints synthetic pole-kit frames, one JSON object per
// line:
//
//	simulator -lat 19.0761 -lng 72.8771 | DEVICE_PORT=- gridwatch
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relabs-tech/gridwatch/internal/app"
	"github.com/relabs-tech/gridwatch/internal/device"
)

func main() {
	lat := flag.Float64("lat", 19.0761, "base latitude")
	lng := flag.Float64("lng", 72.8771, "base longitude")
	jitter := flag.Float64("jitter", 8, "GPS noise radius in meters")
	noFix := flag.Float64("nofix", 0.1, "share of frames without a GPS fix")
	interval := flag.Duration("interval", time.Second, "time between frames")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	// Frames go to stdout, logs to stderr.
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	opts := device.SimulatorOptions{
		Lat:         *lat,
		Lng:         *lng,
		JitterM:     *jitter,
		NoFixChance: *noFix,
		Seed:        *seed,
	}
	log.Info().Float64("lat", opts.Lat).Float64("lng", opts.Lng).Dur("interval", *interval).Msg("simulating device")

	if err := app.RunSimulator(opts, *interval); err != nil {
		log.Fatal().Err(err).Msg("simulator stopped")
	}
}
