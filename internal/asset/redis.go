// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package asset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// maxTxRetries bounds optimistic retries when the asset hash changes
// between WATCH and EXEC.
const maxTxRetries = 3

// RedisRegistry stores each asset as a JSON value in one Redis hash,
// keyed by asset id.
type RedisRegistry struct {
	rdb *redis.Client
	key string
	log zerolog.Logger
}

// NewRedisRegistry connects to Redis and pings it.
func NewRedisRegistry(ctx context.Context, addr string, db int, key string, log zerolog.Logger) (*RedisRegistry, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	log.Info().Str("addr", addr).Str("key", key).Msg("redis registry connected")
	return &RedisRegistry{rdb: rdb, key: key, log: log}, nil
}

// List returns all assets ordered by id. Entries that fail to decode are
// skipped and logged.
func (r *RedisRegistry) List(ctx context.Context) ([]Asset, error) {
	vals, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", r.key, err)
	}

	out := make([]Asset, 0, len(vals))
	for id, raw := range vals {
		var a Asset
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			r.log.Warn().Err(err).Str("asset_id", id).Msg("skipping undecodable asset")
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindAndUpdate applies u under WATCH so a concurrent delete or write
// aborts the transaction instead of resurrecting or clobbering the asset.
func (r *RedisRegistry) FindAndUpdate(ctx context.Context, id string, u Update) (Asset, error) {
	var updated Asset

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, r.key, id).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var a Asset
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return fmt.Errorf("decode asset %q: %w", id, err)
		}
		u.Apply(&a)

		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode asset %q: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, id, data)
			return nil
		})
		if err != nil {
			return err
		}
		updated = a
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return Asset{}, ErrNotFound
		}
		if err != nil {
			return Asset{}, fmt.Errorf("redis update %s/%s: %w", r.key, id, err)
		}
		return updated, nil
	}
	return Asset{}, fmt.Errorf("redis update %s/%s: %w", r.key, id, redis.TxFailedErr)
}

// Put writes an asset as-is, replacing any stored copy.
func (r *RedisRegistry) Put(ctx context.Context, a Asset) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode asset %q: %w", a.ID, err)
	}
	if err := r.rdb.HSet(ctx, r.key, a.ID, data).Err(); err != nil {
		return fmt.Errorf("redis HSET %s/%s: %w", r.key, a.ID, err)
	}
	return nil
}

// PutIfAbsent writes an asset only when its ID is not stored yet and
// reports whether it did. Seeding with it keeps live telemetry across
// restarts.
func (r *RedisRegistry) PutIfAbsent(ctx context.Context, a Asset) (bool, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("encode asset %q: %w", a.ID, err)
	}
	added, err := r.rdb.HSetNX(ctx, r.key, a.ID, data).Result()
	if err != nil {
		return false, fmt.Errorf("redis HSETNX %s/%s: %w", r.key, a.ID, err)
	}
	return added, nil
}

// Close releases the Redis connection pool.
func (r *RedisRegistry) Close() error {
	return r.rdb.Close()
}
