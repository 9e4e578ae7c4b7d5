// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"
)

// Frame is one line as the pole sensor kit prints it.
type Frame struct {
	Voltage    float64  `json:"voltage"`
	Current    float64  `json:"current"`
	FinalAlert int      `json:"final_alert"`
	CoarseTilt float64  `json:"coarse_tilt"`
	MinuteTilt float64  `json:"minute_tilt"`
	HorizMag   float64  `json:"horiz_mag"`
	AccX       float64  `json:"acc_x"`
	AccY       float64  `json:"acc_y"`
	AccZ       float64  `json:"acc_z"`
	GPSValid   int      `json:"gps_valid"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// SimulatorOptions places the simulated kit.
type SimulatorOptions struct {
	Lat, Lng    float64
	JitterM     float64 // GPS noise radius in meters
	NoFixChance float64 // 0..1, share of frames without a fix
	Seed        int64
}

// Simulator produces smoothly varying frames around a fixed position.
type Simulator struct {
	opts  SimulatorOptions
	rng   *rand.Rand
	start time.Time
}

func NewSimulator(opts SimulatorOptions, start time.Time) *Simulator {
	return &Simulator{
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		start: start,
	}
}

// Next returns the frame for time now.
func (s *Simulator) Next(now time.Time) Frame {
	elapsed := now.Sub(s.start).Seconds()

	// Pole sways slowly around vertical; accel in g.
	roll := 2 * math.Sin(elapsed*0.3) * math.Pi / 180
	pitch := 1.5 * math.Cos(elapsed*0.2) * math.Pi / 180
	ax := -math.Sin(pitch)
	ay := math.Sin(roll) * math.Cos(pitch)
	az := math.Cos(roll) * math.Cos(pitch)

	tilt := TiltFromAccel(ax, ay, az)
	f := Frame{
		Voltage:    230 + 3*math.Sin(elapsed/10) + s.rng.NormFloat64()*0.2,
		Current:    4 + math.Abs(math.Sin(elapsed/30)) + s.rng.NormFloat64()*0.05,
		CoarseTilt: math.Round(tilt),
		MinuteTilt: math.Round(tilt*60) / 60,
		HorizMag:   math.Hypot(ax, ay),
		AccX:       ax,
		AccY:       ay,
		AccZ:       az,
	}
	if f.CoarseTilt >= 5 {
		f.FinalAlert = 1
	}

	if s.rng.Float64() < s.opts.NoFixChance {
		return f
	}
	lat, lng := s.jitter()
	f.GPSValid = 1
	f.Lat = &lat
	f.Lng = &lng
	return f
}

// jitter offsets the base position by up to JitterM meters.
func (s *Simulator) jitter() (float64, float64) {
	if s.opts.JitterM <= 0 {
		return s.opts.Lat, s.opts.Lng
	}
	const metersPerDegree = 111320.0
	r := s.opts.JitterM * math.Sqrt(s.rng.Float64())
	theta := s.rng.Float64() * 2 * math.Pi
	dLat := r * math.Cos(theta) / metersPerDegree
	dLng := r * math.Sin(theta) / (metersPerDegree * math.Cos(s.opts.Lat*math.Pi/180))
	return s.opts.Lat + dLat, s.opts.Lng + dLng
}

// Run writes one JSON line per tick until ctx is done.
func (s *Simulator) Run(ctx context.Context, w io.Writer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := enc.Encode(s.Next(now)); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}

// TiltFromAccel returns the angle from vertical, in degrees, of a static
// accelerometer reading (any unit).
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
//	tilt  = acos(cos(roll)·cos(pitch))
func TiltFromAccel(ax, ay, az float64) float64 {
	roll := math.Atan2(ay, az)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))
	c := math.Cos(roll) * math.Cos(pitch)
	return math.Acos(math.Max(-1, math.Min(1, c))) * 180 / math.Pi
}
