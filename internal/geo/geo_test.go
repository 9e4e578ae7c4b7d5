// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geo

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/relabs-tech/gridwatch/internal/asset"
)

func TestHaversineKnownDistances(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		{"same point", 19.076, 72.877, 19.076, 72.877, 0, 1e-9},
		{"one degree of latitude", 0, 0, 1, 0, 111195, 1},
		{"quarter meridian", 0, 0, 90, 0, math.Pi / 2 * EarthRadiusMeters, 1e-6},
		{"mumbai poles", 19.076, 72.877, 19.0761, 72.8776, 64.03, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Haversine() = %.3f, want %.3f ± %g", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestNearestPicksClosestWithinThreshold(t *testing.T) {
	assets := []asset.Asset{
		{ID: "far", Lat: 19.10, Lon: 72.90},
		{ID: "A", Lat: 19.0761, Lon: 72.8771},
		{ID: "mid", Lat: 19.0770, Lon: 72.8780},
	}
	now := time.Unix(100, 0)

	m, ok := Nearest(19.076, 72.877, assets, 50, now)
	if !ok {
		t.Fatal("Nearest() returned no match")
	}
	if m.AssetID != "A" {
		t.Errorf("AssetID = %s, want A", m.AssetID)
	}
	if m.DistanceMeters >= 50 {
		t.Errorf("DistanceMeters = %v, want < 50", m.DistanceMeters)
	}
	if !m.MatchedAt.Equal(now) {
		t.Errorf("MatchedAt = %v, want %v", m.MatchedAt, now)
	}

	// Same record, threshold below the true distance.
	if _, ok := Nearest(19.076, 72.877, assets, m.DistanceMeters-0.01, now); ok {
		t.Error("Nearest() matched with threshold below true distance")
	}
}

func TestNearestThresholdIsInclusive(t *testing.T) {
	assets := []asset.Asset{{ID: "A", Lat: 0, Lon: 0.0001}}
	d := Haversine(0, 0, 0, 0.0001)

	if _, ok := Nearest(0, 0, assets, d, time.Now()); !ok {
		t.Error("distance equal to threshold should match")
	}
}

func TestNearestNoAssets(t *testing.T) {
	if _, ok := Nearest(19.076, 72.877, nil, 50, time.Now()); ok {
		t.Error("Nearest() matched with empty asset set")
	}
}

func TestNearestTieGoesToFirst(t *testing.T) {
	assets := []asset.Asset{
		{ID: "first", Lat: 10.001, Lon: 20},
		{ID: "second", Lat: 10.001, Lon: 20},
	}
	m, ok := Nearest(10, 20, assets, 1000, time.Now())
	if !ok || m.AssetID != "first" {
		t.Errorf("Nearest() = %+v, %v; want first", m, ok)
	}
}

func TestNearestSkipsInvalidCoordinates(t *testing.T) {
	assets := []asset.Asset{
		{ID: "nan", Lat: math.NaN(), Lon: 20},
		{ID: "out-of-range", Lat: 95, Lon: 20},
		{ID: "ok", Lat: 10.0002, Lon: 20},
	}
	m, ok := Nearest(10, 20, assets, 50, time.Now())
	if !ok || m.AssetID != "ok" {
		t.Errorf("Nearest() = %+v, %v; want ok", m, ok)
	}
}

// The reported distance is never larger than the distance to any asset.
func TestNearestIsMinimumOverRandomSets(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(50)
		assets := make([]asset.Asset, n)
		for i := range assets {
			assets[i] = asset.Asset{
				ID:  string(rune('a' + i%26)),
				Lat: 19 + rng.Float64()*0.01,
				Lon: 72 + rng.Float64()*0.01,
			}
		}
		lat := 19 + rng.Float64()*0.01
		lon := 72 + rng.Float64()*0.01

		m, ok := Nearest(lat, lon, assets, math.MaxFloat64, time.Now())
		if !ok {
			t.Fatalf("round %d: no match with unbounded threshold", round)
		}
		for _, a := range assets {
			if d := Haversine(lat, lon, a.Lat, a.Lon); d < m.DistanceMeters {
				t.Fatalf("round %d: asset %s at %.3f m closer than reported %.3f m", round, a.ID, d, m.DistanceMeters)
			}
		}
	}
}
