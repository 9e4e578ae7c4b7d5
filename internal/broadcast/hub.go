// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package broadcast fans telemetry and pole updates out to live
// subscribers (browsers over websocket, the MQTT bridge).
package broadcast

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/asset"
	"github.com/relabs-tech/gridwatch/internal/observability"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

// Event types seen by subscribers.
const (
	EventRawTelemetry = "raw-telemetry"
	EventAssetUpdated = "asset-updated"
)

var (
	// ErrDropped marks a sink error that lost one event but left the
	// subscriber usable.
	ErrDropped = errors.New("broadcast: event dropped")
	// ErrHubClosed is returned by Subscribe after Close.
	ErrHubClosed = errors.New("broadcast: hub closed")
)

const defaultQueueSize = 64

// Event is the envelope written to subscribers.
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// Sink delivers events to one subscriber. Send is only ever called from
// that subscriber's own goroutine. A sink that also implements io.Closer
// is closed when it is unsubscribed.
type Sink interface {
	Send(Event) error
}

// LatestSource provides the record replayed to late joiners.
type LatestSource interface {
	Get() (telemetry.Record, bool)
}

// Handle identifies one subscription.
type Handle uuid.UUID

func (h Handle) String() string { return uuid.UUID(h).String() }

type subscription struct {
	handle Handle
	sink   Sink
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() {
		close(s.done)
		if c, ok := s.sink.(io.Closer); ok {
			_ = c.Close()
		}
	})
}

// Hub tracks subscribers and delivers events to each of them
// independently. Publishing never blocks: a subscriber whose queue is full
// misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Handle]*subscription
	closed bool

	latest    LatestSource
	queueSize int
	log       zerolog.Logger

	wg sync.WaitGroup
}

// NewHub creates a hub. latest may be nil to disable late-joiner catch-up;
// queueSize <= 0 selects the default.
func NewHub(latest LatestSource, queueSize int, log zerolog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		subs:      make(map[Handle]*subscription),
		latest:    latest,
		queueSize: queueSize,
		log:       log.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers sink and starts its delivery goroutine. If a
// telemetry record is cached it is queued first.
func (h *Hub) Subscribe(sink Sink) (Handle, error) {
	s := &subscription{
		handle: Handle(uuid.New()),
		sink:   sink,
		events: make(chan Event, h.queueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return Handle{}, ErrHubClosed
	}
	if h.latest != nil {
		if rec, ok := h.latest.Get(); ok {
			s.events <- Event{Type: EventRawTelemetry, Data: rec}
		}
	}
	h.subs[s.handle] = s
	n := len(h.subs)
	h.wg.Add(1)
	h.mu.Unlock()

	observability.Subscribers.Set(float64(n))
	h.log.Info().Str("subscriber", s.handle.String()).Int("subscribers", n).Msg("subscriber connected")

	go h.deliver(s)
	return s.handle, nil
}

// Unsubscribe removes a subscriber. Unknown handles are ignored.
func (h *Hub) Unsubscribe(handle Handle) {
	h.mu.Lock()
	s, ok := h.subs[handle]
	if ok {
		delete(h.subs, handle)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.stop()
	observability.Subscribers.Set(float64(n))
	h.log.Info().Str("subscriber", handle.String()).Int("subscribers", n).Msg("subscriber disconnected")
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishRaw sends a decoded record to every subscriber.
func (h *Hub) PublishRaw(rec telemetry.Record) {
	h.publish(Event{Type: EventRawTelemetry, Data: rec})
}

// PublishAssetUpdate sends a merged pole snapshot to every subscriber.
func (h *Hub) PublishAssetUpdate(a asset.Asset) {
	h.publish(Event{Type: EventAssetUpdated, Data: a})
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		select {
		case <-s.done:
		case s.events <- ev:
		default:
			observability.EventsDropped.WithLabelValues("queue_full").Inc()
			h.log.Warn().Str("subscriber", s.handle.String()).Str("event", ev.Type).Msg("subscriber queue full, dropping event")
		}
	}
}

func (h *Hub) deliver(s *subscription) {
	defer h.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			err := s.sink.Send(ev)
			if err == nil {
				continue
			}
			observability.EventsDropped.WithLabelValues("send_error").Inc()
			if errors.Is(err, ErrDropped) {
				h.log.Warn().Err(err).Str("subscriber", s.handle.String()).Str("event", ev.Type).Msg("event not delivered")
				continue
			}
			h.log.Warn().Err(err).Str("subscriber", s.handle.String()).Msg("subscriber send failed, removing")
			h.Unsubscribe(s.handle)
			return
		}
	}
}

// Close removes every subscriber and waits for their goroutines to exit.
// Later Subscribe calls fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[Handle]*subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	observability.Subscribers.Set(0)
	h.wg.Wait()
}
