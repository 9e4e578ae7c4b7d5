// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ingest turns the device line stream into cached telemetry, pole
// updates and broadcast events.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/asset"
	"github.com/relabs-tech/gridwatch/internal/geo"
	"github.com/relabs-tech/gridwatch/internal/observability"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

const defaultStorageTimeout = 5 * time.Second

// Publisher receives every decoded record and every merged pole.
type Publisher interface {
	PublishRaw(telemetry.Record)
	PublishAssetUpdate(asset.Asset)
}

// Options tunes matching and storage calls.
type Options struct {
	ThresholdMeters float64
	StorageTimeout  time.Duration
	Now             func() time.Time
}

// Pipeline processes one line at a time, in arrival order.
type Pipeline struct {
	cache    *telemetry.Cache
	registry asset.Registry
	pub      Publisher
	merger   *Merger

	threshold      float64
	storageTimeout time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

func NewPipeline(cache *telemetry.Cache, registry asset.Registry, pub Publisher, opts Options, log zerolog.Logger) *Pipeline {
	if opts.ThresholdMeters <= 0 {
		opts.ThresholdMeters = geo.DefaultThresholdMeters
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = defaultStorageTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		cache:          cache,
		registry:       registry,
		pub:            pub,
		merger:         NewMerger(registry, opts.Now),
		threshold:      opts.ThresholdMeters,
		storageTimeout: opts.StorageTimeout,
		now:            opts.Now,
		log:            log.With().Str("component", "ingest").Logger(),
	}
}

// Run consumes lines until the stream ends. It returns nil on a clean end
// of stream and the stream error otherwise; per-line failures never stop it.
func (p *Pipeline) Run(lines *LineReader) error {
	for line, err := range lines.Lines() {
		if errors.Is(err, ErrLineTooLong) {
			observability.DecodeErrors.Inc()
			p.log.Warn().Err(err).Msg("ignored overlong line")
			continue
		}
		if err != nil {
			observability.StreamFaults.Inc()
			return fmt.Errorf("device stream: %w", err)
		}
		p.Process(line)
	}
	return nil
}

// Process handles a single raw line.
func (p *Pipeline) Process(line string) {
	start := time.Now()
	observability.LinesRead.Inc()

	rec, err := telemetry.Decode(line, p.now())
	var fieldErr *telemetry.FieldError
	if errors.As(err, &fieldErr) {
		p.log.Warn().Strs("fields", fieldErr.Fields).Str("line", line).Msg("ignored mistyped fields")
		err = nil
	}
	if err != nil {
		observability.DecodeErrors.Inc()
		if errors.Is(err, telemetry.ErrUnsupportedSentence) {
			p.log.Debug().Str("line", line).Msg("ignored NMEA sentence")
		} else {
			p.log.Warn().Err(err).Str("line", line).Msg("ignored undecodable line")
		}
		return
	}
	observability.FramesDecoded.Inc()

	p.cache.Set(rec)
	p.pub.PublishRaw(rec)
	p.correlate(rec)

	observability.ObserveProcessLatency(start)
}

func (p *Pipeline) correlate(rec telemetry.Record) {
	if !rec.HasFix() {
		observability.MatchOutcomes.WithLabelValues("no_fix").Inc()
		return
	}

	listCtx, cancel := context.WithTimeout(context.Background(), p.storageTimeout)
	assets, err := p.registry.List(listCtx)
	cancel()
	if err != nil {
		observability.MatchOutcomes.WithLabelValues("registry_error").Inc()
		p.log.Error().Err(err).Msg("failed to list poles")
		return
	}
	if len(assets) == 0 {
		observability.MatchOutcomes.WithLabelValues("no_assets").Inc()
		p.log.Debug().Msg("no poles registered, telemetry not matched")
		return
	}

	m, ok := geo.Nearest(*rec.Lat, *rec.Lng, assets, p.threshold, p.now())
	if !ok {
		observability.MatchOutcomes.WithLabelValues("out_of_range").Inc()
		p.log.Debug().Float64("lat", *rec.Lat).Float64("lng", *rec.Lng).
			Float64("threshold_m", p.threshold).Msg("telemetry not matched to any pole")
		return
	}
	observability.MatchOutcomes.WithLabelValues("matched").Inc()
	observability.MatchDistance.Observe(m.DistanceMeters)

	mergeCtx, cancel := context.WithTimeout(context.Background(), p.storageTimeout)
	updated, err := p.merger.Merge(mergeCtx, m, rec)
	cancel()
	if errors.Is(err, asset.ErrNotFound) {
		observability.MergeOutcomes.WithLabelValues("not_found").Inc()
		p.log.Warn().Str("pole", m.AssetID).Msg("matched pole no longer exists, skipping merge")
		return
	}
	if err != nil {
		observability.MergeOutcomes.WithLabelValues("error").Inc()
		p.log.Error().Err(err).Str("pole", m.AssetID).Msg("failed to merge telemetry")
		return
	}
	observability.MergeOutcomes.WithLabelValues("ok").Inc()

	p.log.Info().Str("pole", updated.ID).Float64("distance_m", m.DistanceMeters).Msg("updated pole with telemetry")
	p.pub.PublishAssetUpdate(updated)
}
