// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/asset"
	"github.com/relabs-tech/gridwatch/internal/broadcast"
	"github.com/relabs-tech/gridwatch/internal/health"
	"github.com/relabs-tech/gridwatch/internal/ingest"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

type webFixture struct {
	cache  *telemetry.Cache
	hub    *broadcast.Hub
	health *health.Server
	srv    *httptest.Server
}

func newWebFixture(t *testing.T, origins ...string) *webFixture {
	t.Helper()
	f := &webFixture{cache: telemetry.NewCache()}
	f.hub = broadcast.NewHub(f.cache, 16, zerolog.Nop())
	f.health = health.New(f.hub.Len)
	f.srv = httptest.NewServer(NewWebMux(WebDeps{
		Cache:          f.cache,
		Hub:            f.hub,
		Health:         f.health,
		AllowedOrigins: origins,
		WriteTimeout:   time.Second,
		Log:            zerolog.Nop(),
	}))
	t.Cleanup(func() {
		f.hub.Close()
		f.srv.Close()
	})
	return f
}

func TestLatestTelemetryEmpty(t *testing.T) {
	f := newWebFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/telemetry/latest")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestLatestTelemetry(t *testing.T) {
	f := newWebFixture(t)
	rec, err := telemetry.Decode(`{"voltage":230.1,"current":4.2,"gps_valid":1,"lat":19.076,"lng":72.877}`, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	f.cache.Set(rec)

	resp, err := http.Get(f.srv.URL + "/api/telemetry/latest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["voltage"] != 230.1 || got["gps_valid"] != true || got["lng"] != 72.877 {
		t.Errorf("body = %v", got)
	}
	if _, ok := got["receivedAt"]; !ok {
		t.Error("body missing receivedAt")
	}
}

func TestLatestTelemetryCORS(t *testing.T) {
	f := newWebFixture(t, "http://localhost:5173")

	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:5173", "http://localhost:5173"},
		{"http://evil.example", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/api/telemetry/latest", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %q: allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestHealthRoute(t *testing.T) {
	f := newWebFixture(t)
	f.health.SetRunning(true)

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebsocketReceivesPipelineEvents(t *testing.T) {
	f := newWebFixture(t)
	reg, err := asset.NewMemoryRegistry(asset.Asset{ID: "P1", Lat: 19.0761, Lon: 72.8771, Status: asset.StatusNormal})
	if err != nil {
		t.Fatal(err)
	}
	pipeline := ingest.NewPipeline(f.cache, reg, f.hub, ingest.Options{ThresholdMeters: 50}, zerolog.Nop())

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	pipeline.Process(`{"voltage":230.1,"current":4.2,"gps_valid":1,"lat":19.076,"lng":72.877}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var events []string
	var pole map[string]any
	for len(events) < 2 {
		var ev struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (got %v)", err, events)
		}
		events = append(events, ev.Event)
		if ev.Event == broadcast.EventAssetUpdated {
			if err := json.Unmarshal(ev.Data, &pole); err != nil {
				t.Fatal(err)
			}
		}
	}

	if events[0] != broadcast.EventRawTelemetry || events[1] != broadcast.EventAssetUpdated {
		t.Errorf("events = %v, want raw then asset", events)
	}
	if pole["id"] != "P1" || pole["voltage"] != 230.1 {
		t.Errorf("pole = %v", pole)
	}
}
