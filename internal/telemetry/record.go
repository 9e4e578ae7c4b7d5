// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import "time"

// Record is one decoded telemetry frame from the pole sensor kit.
// Sensor fields are pointers: a field the device did not send stays nil.
type Record struct {
	Voltage    *float64 `json:"voltage,omitempty"`     // volts
	Current    *float64 `json:"current,omitempty"`     // amps
	FinalAlert *float64 `json:"final_alert,omitempty"` // device-side alert level

	CoarseTilt *float64 `json:"coarse_tilt,omitempty"` // degrees
	MinuteTilt *float64 `json:"minute_tilt,omitempty"` // degrees
	HorizMag   *float64 `json:"horiz_mag,omitempty"`   // horizontal accel magnitude

	AccX *float64 `json:"acc_x,omitempty"` // accel
	AccY *float64 `json:"acc_y,omitempty"`
	AccZ *float64 `json:"acc_z,omitempty"`

	GPSValid *bool    `json:"gps_valid,omitempty"`
	Lat      *float64 `json:"lat,omitempty"` // decimal degrees
	Lng      *float64 `json:"lng,omitempty"` // decimal degrees

	ReceivedAt time.Time `json:"receivedAt"`
}

// HasFix reports whether the record carries a usable GPS position.
func (r Record) HasFix() bool {
	return r.GPSValid != nil && *r.GPSValid && r.Lat != nil && r.Lng != nil
}

// Tilt returns the coarse tilt, falling back to the minute tilt.
func (r Record) Tilt() *float64 {
	if r.CoarseTilt != nil {
		return r.CoarseTilt
	}
	return r.MinuteTilt
}
