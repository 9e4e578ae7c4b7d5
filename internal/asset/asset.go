// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package asset holds the pole model and the registry contract the
// ingestion core reads from and merges into. Creating and deleting assets
// belongs to the registry owner, not to this module.
package asset

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by FindAndUpdate when the asset does not exist.
var ErrNotFound = errors.New("asset: not found")

// Status is the operational status of a pole.
type Status string

const (
	StatusNormal      Status = "Normal"
	StatusFault       Status = "Fault"
	StatusMaintenance Status = "Maintenance"
)

// Telemetry is the last telemetry frame attributed to an asset.
type Telemetry struct {
	Voltage    *float64 `json:"voltage,omitempty"`
	Current    *float64 `json:"current,omitempty"`
	FinalAlert *float64 `json:"final_alert,omitempty"`
	CoarseTilt *float64 `json:"coarse_tilt,omitempty"`
	MinuteTilt *float64 `json:"minute_tilt,omitempty"`
	HorizMag   *float64 `json:"horiz_mag,omitempty"`
	AccX       *float64 `json:"acc_x,omitempty"`
	AccY       *float64 `json:"acc_y,omitempty"`
	AccZ       *float64 `json:"acc_z,omitempty"`
	GPSValid   *bool    `json:"gps_valid,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`

	ReceivedAt            time.Time `json:"receivedAt"`
	MatchedAt             time.Time `json:"matchedAt"`
	MatchedDistanceMeters float64   `json:"matchedDistanceMeters"`
}

// Asset is a fixed pole as stored by the registry.
type Asset struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	Tilt    *float64 `json:"tilt,omitempty"`
	Voltage *float64 `json:"voltage,omitempty"`
	Current *float64 `json:"current,omitempty"`
	Status  Status   `json:"status,omitempty"`

	Telemetry *Telemetry `json:"telemetry,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Update is a partial write. Nil fields leave the asset untouched.
type Update struct {
	Voltage   *float64
	Current   *float64
	Tilt      *float64
	Telemetry *Telemetry
	UpdatedAt time.Time
}

// Apply merges u into a.
func (u Update) Apply(a *Asset) {
	if u.Voltage != nil {
		v := *u.Voltage
		a.Voltage = &v
	}
	if u.Current != nil {
		v := *u.Current
		a.Current = &v
	}
	if u.Tilt != nil {
		v := *u.Tilt
		a.Tilt = &v
	}
	if u.Telemetry != nil {
		t := *u.Telemetry
		a.Telemetry = &t
	}
	if !u.UpdatedAt.IsZero() {
		a.UpdatedAt = u.UpdatedAt
	}
}

// Registry is the asset store the ingestion core talks to.
type Registry interface {
	// List returns every known asset.
	List(ctx context.Context) ([]Asset, error)
	// FindAndUpdate applies u to the asset with the given id and returns
	// the updated asset, or ErrNotFound.
	FindAndUpdate(ctx context.Context, id string, u Update) (Asset, error)
}
