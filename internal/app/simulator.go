// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/gridwatch/internal/device"
)

// RunSimulator writes simulated device frames to stdout until Ctrl+C.
// Pipe it into gridwatch with DEVICE_PORT=-.
func RunSimulator(opts device.SimulatorOptions, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := device.NewSimulator(opts, time.Now())
	return sim.Run(ctx, os.Stdout, interval)
}
