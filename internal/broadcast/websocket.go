// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebsocketSink writes events as JSON text frames.
type WebsocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func NewWebsocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebsocketSink {
	return &WebsocketSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebsocketSink) Send(ev Event) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// Close sends a close frame (best effort) and closes the connection.
func (s *WebsocketSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// NewUpgrader accepts the listed origins; "*" or an empty list accepts any.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// WebsocketHandler upgrades the request and subscribes the connection to
// the hub until the peer goes away. Incoming messages are read and
// discarded; the read loop only exists to notice disconnects.
func WebsocketHandler(h *Hub, upgrader websocket.Upgrader, writeTimeout time.Duration, log zerolog.Logger) http.HandlerFunc {
	log = log.With().Str("component", "ws").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade error")
			return
		}

		sink := NewWebsocketSink(conn, writeTimeout)
		handle, err := h.Subscribe(sink)
		if err != nil {
			log.Warn().Err(err).Msg("subscribe failed")
			_ = sink.Close()
			return
		}
		defer h.Unsubscribe(handle)

		conn.SetReadLimit(4096)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Str("subscriber", handle.String()).Msg("websocket read error")
				}
				return
			}
		}
	}
}
