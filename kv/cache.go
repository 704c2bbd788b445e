// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package kv

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	prefix uint64
	key    string
}

// CachingEngine decorates an Engine with a bounded read-through LRU of
// recently seen (prefix, key) -> value pairs. It is off by default; callers
// opt in by wrapping an already-open Engine with NewCachingEngine.
type CachingEngine struct {
	Engine
	cache *lru.Cache[cacheKey, []byte]
	mu    sync.Mutex
}

// NewCachingEngine wraps inner with an LRU of the given capacity (entry
// count, not byte size).
func NewCachingEngine(inner Engine, capacity int) (*CachingEngine, error) {
	c, err := lru.New[cacheKey, []byte](capacity)
	if err != nil {
		return nil, Wrap(err, "allocating engine read cache")
	}
	return &CachingEngine{Engine: inner, cache: c}, nil
}

func (c *CachingEngine) Get(ctx context.Context, prefix uint64, key []byte) ([]byte, bool, error) {
	ck := cacheKey{prefix: prefix, key: string(key)}
	c.mu.Lock()
	if v, ok := c.cache.Get(ck); ok {
		c.mu.Unlock()
		return v, true, nil
	}
	c.mu.Unlock()

	v, ok, err := c.Engine.Get(ctx, prefix, key)
	if err != nil || !ok {
		return v, ok, err
	}
	c.mu.Lock()
	c.cache.Add(ck, v)
	c.mu.Unlock()
	return v, ok, nil
}

func (c *CachingEngine) Insert(ctx context.Context, prefix uint64, key, value []byte) error {
	if err := c.Engine.Insert(ctx, prefix, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache.Remove(cacheKey{prefix: prefix, key: string(key)})
	c.mu.Unlock()
	return nil
}

func (c *CachingEngine) Remove(ctx context.Context, prefix uint64, key []byte) error {
	if err := c.Engine.Remove(ctx, prefix, key); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache.Remove(cacheKey{prefix: prefix, key: string(key)})
	c.mu.Unlock()
	return nil
}
