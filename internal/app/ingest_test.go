// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/gridwatch/internal/asset"
	"github.com/relabs-tech/gridwatch/internal/ingest"
	"github.com/relabs-tech/gridwatch/internal/telemetry"
)

type nopPublisher struct{}

func (nopPublisher) PublishRaw(telemetry.Record)    {}
func (nopPublisher) PublishAssetUpdate(asset.Asset) {}

type statusLog struct {
	mu      sync.Mutex
	changes []bool
}

func (s *statusLog) SetDeviceConnected(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, ok)
}

func newTestPipeline(t *testing.T, cache *telemetry.Cache) *ingest.Pipeline {
	t.Helper()
	reg, err := asset.NewMemoryRegistry()
	if err != nil {
		t.Fatal(err)
	}
	return ingest.NewPipeline(cache, reg, nopPublisher{}, ingest.Options{}, zerolog.Nop())
}

func TestSupervisorReopensAfterStreamEnds(t *testing.T) {
	cache := telemetry.NewCache()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opens := 0
	status := &statusLog{}
	sup := &Supervisor{
		Open: func() (io.ReadCloser, error) {
			opens++
			switch opens {
			case 1:
				return io.NopCloser(strings.NewReader("{\"voltage\":1}\n")), nil
			case 2:
				return nil, errors.New("no such device")
			case 3:
				return io.NopCloser(strings.NewReader("{\"voltage\":3}\n")), nil
			default:
				cancel()
				return nil, errors.New("stop")
			}
		},
		Pipeline:          newTestPipeline(t, cache),
		ReconnectInterval: time.Millisecond,
		ReopenOnEOF:       true,
		Status:            status,
		Log:               zerolog.Nop(),
	}

	if err := sup.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if opens != 4 {
		t.Errorf("opens = %d, want 4", opens)
	}
	rec, ok := cache.Get()
	if !ok || *rec.Voltage != 3 {
		t.Errorf("cache = %+v, want voltage 3 from the reopened stream", rec)
	}
	want := []bool{true, false, true, false}
	if len(status.changes) != len(want) {
		t.Fatalf("status changes = %v, want %v", status.changes, want)
	}
	for i := range want {
		if status.changes[i] != want[i] {
			t.Errorf("status changes = %v, want %v", status.changes, want)
			break
		}
	}
}

func TestSupervisorStopsAtEOFForStdin(t *testing.T) {
	cache := telemetry.NewCache()
	opens := 0
	sup := &Supervisor{
		Open: func() (io.ReadCloser, error) {
			opens++
			return io.NopCloser(strings.NewReader("{\"voltage\":1}\n")), nil
		},
		Pipeline:          newTestPipeline(t, cache),
		ReconnectInterval: time.Millisecond,
		ReopenOnEOF:       false,
		Log:               zerolog.Nop(),
	}

	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
}

func TestSupervisorReturnsFaultWithoutReconnect(t *testing.T) {
	fault := errors.New("permission denied")
	sup := &Supervisor{
		Open:     func() (io.ReadCloser, error) { return nil, fault },
		Pipeline: newTestPipeline(t, telemetry.NewCache()),
		Log:      zerolog.Nop(),
	}

	if err := sup.Run(context.Background()); !errors.Is(err, fault) {
		t.Errorf("Run() error = %v, want %v", err, fault)
	}
}

// blockingStream blocks reads until closed.
type blockingStream struct {
	closed chan struct{}
	once   sync.Once
}

func (b *blockingStream) Read([]byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingStream) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestSupervisorCancelUnblocksRead(t *testing.T) {
	stream := &blockingStream{closed: make(chan struct{})}
	sup := &Supervisor{
		Open:              func() (io.ReadCloser, error) { return stream, nil },
		Pipeline:          newTestPipeline(t, telemetry.NewCache()),
		ReconnectInterval: time.Hour,
		ReopenOnEOF:       true,
		Log:               zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
