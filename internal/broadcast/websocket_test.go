// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

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
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

type wireEvent struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestWebsocketSubscriberReceivesEvents(t *testing.T) {
	cache := telemetry.NewCache()
	v := 230.1
	cache.Set(telemetry.Record{Voltage: &v, ReceivedAt: time.Unix(10, 0).UTC()})

	hub := NewHub(cache, 8, zerolog.Nop())
	defer hub.Close()
	srv := httptest.NewServer(WebsocketHandler(hub, NewUpgrader(nil), time.Second, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv, "")

	ev := readEvent(t, conn)
	if ev.Type != EventRawTelemetry {
		t.Fatalf("catch-up event = %s, want raw-telemetry", ev.Type)
	}
	var rec telemetry.Record
	if err := json.Unmarshal(ev.Data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Voltage == nil || *rec.Voltage != 230.1 {
		t.Errorf("catch-up voltage = %v, want 230.1", rec.Voltage)
	}

	waitFor(t, func() bool { return hub.Len() == 1 })
	hub.PublishAssetUpdate(asset.Asset{ID: "P7", Lat: 19.07, Lon: 72.87})

	ev = readEvent(t, conn)
	if ev.Type != EventAssetUpdated {
		t.Fatalf("event = %s, want asset-updated", ev.Type)
	}
	var a asset.Asset
	if err := json.Unmarshal(ev.Data, &a); err != nil {
		t.Fatal(err)
	}
	if a.ID != "P7" {
		t.Errorf("asset id = %s, want P7", a.ID)
	}
}

func TestWebsocketDisconnectUnsubscribes(t *testing.T) {
	hub := NewHub(nil, 8, zerolog.Nop())
	defer hub.Close()
	srv := httptest.NewServer(WebsocketHandler(hub, NewUpgrader(nil), time.Second, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitFor(t, func() bool { return hub.Len() == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, func() bool { return hub.Len() == 0 })
}

func TestUpgraderOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list allows any", nil, "http://evil.example", true},
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"listed origin", []string{"http://localhost:5173"}, "http://localhost:5173", true},
		{"unlisted origin", []string{"http://localhost:5173"}, "http://evil.example", false},
		{"no origin header", []string{"http://localhost:5173"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUpgrader(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := u.CheckOrigin(r); got != tt.want {
				t.Errorf("CheckOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}
