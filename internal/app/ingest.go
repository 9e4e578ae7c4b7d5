// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/ingest"
)

// Opener opens a fresh device stream.
type Opener func() (io.ReadCloser, error)

type deviceStatus interface {
	SetDeviceConnected(bool)
}

// Supervisor keeps the pipeline fed: it opens the device, runs the
// pipeline until the stream ends, and reopens after ReconnectInterval.
type Supervisor struct {
	Open              Opener
	Pipeline          *ingest.Pipeline
	MaxLineBytes      int
	ReconnectInterval time.Duration // <= 0 runs the stream once
	ReopenOnEOF       bool          // false for stdin
	Status            deviceStatus
	Log               zerolog.Logger
}

// Run returns when ctx is cancelled, or after the stream ends when
// reopening is disabled. The returned error is the last stream error.
func (s *Supervisor) Run(ctx context.Context) error {
	log := s.Log.With().Str("component", "device").Logger()

	for {
		stream, err := s.Open()
		if ctx.Err() != nil {
			if stream != nil {
				stream.Close()
			}
			return nil
		}
		if err != nil {
			log.Error().Err(err).Dur("retry_in", s.ReconnectInterval).Msg("failed to open device")
			if s.ReconnectInterval <= 0 {
				return err
			}
			if !sleepCtx(ctx, s.ReconnectInterval) {
				return nil
			}
			continue
		}

		log.Info().Msg("device stream opened")
		s.setConnected(true)
		err = s.runStream(ctx, stream)
		s.setConnected(false)

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Error().Err(err).Dur("retry_in", s.ReconnectInterval).Msg("device stream fault")
		} else {
			log.Info().Msg("device stream ended")
			if !s.ReopenOnEOF {
				return nil
			}
		}
		if s.ReconnectInterval <= 0 {
			return err
		}
		if !sleepCtx(ctx, s.ReconnectInterval) {
			return nil
		}
	}
}

// runStream closes the stream on cancel so a blocked read returns.
func (s *Supervisor) runStream(ctx context.Context, stream io.ReadCloser) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-done:
		}
	}()

	err := s.Pipeline.Run(ingest.NewLineReader(stream, s.MaxLineBytes))
	close(done)
	stream.Close()
	return err
}

func (s *Supervisor) setConnected(ok bool) {
	if s.Status != nil {
		s.Status.SetDeviceConnected(ok)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
