// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import "sync/atomic"

// Cache holds the most recent Record. The zero value is empty and ready
// to use. Set and Get may be called from any goroutine.
type Cache struct {
	latest atomic.Pointer[Record]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Set replaces the cached record.
func (c *Cache) Set(r Record) {
	c.latest.Store(&r)
}

// Get returns the cached record and whether one has arrived yet.
func (c *Cache) Get() (Record, bool) {
	p := c.latest.Load()
	if p == nil {
		return Record{}, false
	}
	return *p, true
}
