// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geo attributes a GPS position to the nearest known pole.
package geo

import (
	"math"
	"time"

	"github.com/relabs-tech/gridwatch/internal/asset"
)

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// DefaultThresholdMeters is the match cutoff when none is configured.
const DefaultThresholdMeters = 50.0

// Match pairs a position with the pole it was attributed to.
type Match struct {
	AssetID        string
	DistanceMeters float64
	MatchedAt      time.Time
}

// Haversine returns the great-circle distance in meters between two
// points given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// coordsValid rejects NaN and out-of-range coordinates.
func coordsValid(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Nearest scans every asset once and returns the closest one if it lies
// within thresholdMeters. Among exactly equal distances the first asset
// in slice order wins. Assets with invalid coordinates are ignored.
//
// The scan is linear; a grid or R-tree would replace it if pole counts
// ever outgrow a few thousand.
func Nearest(lat, lon float64, assets []asset.Asset, thresholdMeters float64, now time.Time) (Match, bool) {
	best := -1
	bestDist := math.Inf(1)

	for i := range assets {
		a := &assets[i]
		if !coordsValid(a.Lat, a.Lon) {
			continue
		}
		d := Haversine(lat, lon, a.Lat, a.Lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	if best < 0 || bestDist > thresholdMeters {
		return Match{}, false
	}
	return Match{
		AssetID:        assets[best].ID,
		DistanceMeters: bestDist,
		MatchedAt:      now,
	}, true
}
