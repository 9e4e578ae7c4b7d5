// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/gridwatch/internal/asset"
	"github.com/relabs-tech/gridwatch/internal/geo"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

// Merger writes matched telemetry onto a pole in the registry.
type Merger struct {
	registry asset.Registry
	now      func() time.Time
}

func NewMerger(registry asset.Registry, now func() time.Time) *Merger {
	if now == nil {
		now = time.Now
	}
	return &Merger{registry: registry, now: now}
}

// BuildUpdate turns a match and its record into a partial pole update.
// Electrical fields and tilt are only set when the record carries them;
// the nested telemetry snapshot is always replaced as a whole.
func BuildUpdate(m geo.Match, rec telemetry.Record, now time.Time) asset.Update {
	return asset.Update{
		Voltage: rec.Voltage,
		Current: rec.Current,
		Tilt:    rec.Tilt(),
		Telemetry: &asset.Telemetry{
			Voltage:    rec.Voltage,
			Current:    rec.Current,
			FinalAlert: rec.FinalAlert,
			CoarseTilt: rec.CoarseTilt,
			MinuteTilt: rec.MinuteTilt,
			HorizMag:   rec.HorizMag,
			AccX:       rec.AccX,
			AccY:       rec.AccY,
			AccZ:       rec.AccZ,
			GPSValid:   rec.GPSValid,
			Lat:        rec.Lat,
			Lng:        rec.Lng,

			ReceivedAt:            rec.ReceivedAt,
			MatchedAt:             m.MatchedAt,
			MatchedDistanceMeters: m.DistanceMeters,
		},
		UpdatedAt: now,
	}
}

// Merge applies rec to the matched pole and returns the updated snapshot.
// Registry errors are wrapped; errors.Is(err, asset.ErrNotFound) reports a
// pole deleted since the match.
func (m *Merger) Merge(ctx context.Context, match geo.Match, rec telemetry.Record) (asset.Asset, error) {
	updated, err := m.registry.FindAndUpdate(ctx, match.AssetID, BuildUpdate(match, rec, m.now()))
	if err != nil {
		return asset.Asset{}, fmt.Errorf("merge into %s: %w", match.AssetID, err)
	}
	return updated, nil
}
