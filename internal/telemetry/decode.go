// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

var (
	// ErrNotObject is returned for lines that are valid JSON but not an object.
	ErrNotObject = errors.New("telemetry: frame is not a JSON object")
	// ErrUnsupportedSentence is returned for NMEA sentences that carry no fix.
	ErrUnsupportedSentence = errors.New("telemetry: unsupported NMEA sentence")
)

// FieldError names fields that were present with an unusable type. Decode
// returns it together with a Record holding every other field.
type FieldError struct {
	Fields []string
}

func (e *FieldError) Error() string {
	return "telemetry: ignored mistyped fields: " + strings.Join(e.Fields, ", ")
}

// flag accepts both 0/1 and false/true, the ESP32 firmware sends numbers.
// Only 1 counts as a fix; other numbers are fix states the firmware does
// not report as usable.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("gps_valid: %w", err)
	}
	*f = n == 1
	return nil
}

// Decode parses one trimmed line into a Record stamped with now.
// JSON object lines are the normal case; lines starting with '$' are
// treated as NMEA sentences from a GPS module wired straight to the port.
//
// A field of the wrong type is left absent and the rest of the frame is
// kept; the returned Record is then usable and err is a *FieldError.
func Decode(line string, now time.Time) (Record, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "$") {
		return decodeNMEA(line, now)
	}
	if !strings.HasPrefix(line, "{") {
		if json.Valid([]byte(line)) {
			return Record{}, ErrNotObject
		}
		return Record{}, fmt.Errorf("telemetry: invalid frame %q", truncate(line, 64))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{}, fmt.Errorf("telemetry: decode frame: %w", err)
	}

	rec := Record{ReceivedAt: now}
	var bad []string
	for _, field := range []struct {
		key string
		dst **float64
	}{
		{"voltage", &rec.Voltage},
		{"current", &rec.Current},
		{"final_alert", &rec.FinalAlert},
		{"coarse_tilt", &rec.CoarseTilt},
		{"minute_tilt", &rec.MinuteTilt},
		{"horiz_mag", &rec.HorizMag},
		{"acc_x", &rec.AccX},
		{"acc_y", &rec.AccY},
		{"acc_z", &rec.AccZ},
		{"lat", &rec.Lat},
		{"lng", &rec.Lng},
	} {
		b, ok := raw[field.key]
		if !ok {
			continue
		}
		// Decode into a fresh pointer: a type mismatch can leave a zero
		// value behind in the target.
		var v *float64
		if err := json.Unmarshal(b, &v); err != nil {
			bad = append(bad, field.key)
			continue
		}
		*field.dst = v
	}

	if b, ok := raw["gps_valid"]; ok {
		var f *flag
		if err := json.Unmarshal(b, &f); err != nil {
			bad = append(bad, "gps_valid")
		} else if f != nil {
			v := bool(*f)
			rec.GPSValid = &v
		}
	}

	if len(bad) > 0 {
		return rec, &FieldError{Fields: bad}
	}
	return rec, nil
}

func decodeNMEA(line string, now time.Time) (Record, error) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry: nmea: %w", err)
	}

	var valid bool
	var lat, lng float64
	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		valid = m.Validity == nmea.ValidRMC
		lat, lng = m.Latitude, m.Longitude
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		valid = m.FixQuality != nmea.Invalid
		lat, lng = m.Latitude, m.Longitude
	default:
		return Record{}, ErrUnsupportedSentence
	}

	return Record{
		GPSValid:   &valid,
		Lat:        &lat,
		Lng:        &lng,
		ReceivedAt: now,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
