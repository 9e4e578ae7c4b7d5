// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// MemoryRegistry keeps assets in process memory, in insertion order.
type MemoryRegistry struct {
	mu     sync.RWMutex
	order  []string
	assets map[string]Asset
}

// NewMemoryRegistry returns a registry holding the given assets.
// A duplicate id is an error.
func NewMemoryRegistry(assets ...Asset) (*MemoryRegistry, error) {
	r := &MemoryRegistry{assets: make(map[string]Asset, len(assets))}
	for _, a := range assets {
		if a.ID == "" {
			return nil, fmt.Errorf("asset: empty id")
		}
		if _, dup := r.assets[a.ID]; dup {
			return nil, fmt.Errorf("asset: duplicate id %q", a.ID)
		}
		r.order = append(r.order, a.ID)
		r.assets[a.ID] = a
	}
	return r, nil
}

// ReadFile reads a JSON array of assets.
func ReadFile(path string) ([]Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets file: %w", err)
	}
	var assets []Asset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("failed to parse assets file %s: %w", path, err)
	}
	return assets, nil
}

// LoadMemoryRegistry seeds a registry from a JSON array of assets.
func LoadMemoryRegistry(path string) (*MemoryRegistry, error) {
	assets, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryRegistry(assets...)
}

func (r *MemoryRegistry) List(_ context.Context) ([]Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Asset, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.assets[id])
	}
	return out, nil
}

func (r *MemoryRegistry) FindAndUpdate(_ context.Context, id string, u Update) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	u.Apply(&a)
	r.assets[id] = a
	return a, nil
}

// Get returns one asset by id.
func (r *MemoryRegistry) Get(id string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	return a, ok
}

// Delete removes an asset. It stands in for the registry owner deleting
// a pole while telemetry is in flight.
func (r *MemoryRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[id]; !ok {
		return
	}
	delete(r.assets, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
