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

// Package prefixalloc implements the monotonic id counters VMKM allocates
// instance prefixes, branch ids, and version ids from. It is a direct
// translation of original_source's next_instance_prefix / next_branch_id /
// next_version_id counters, stored under reserved engine keys and advanced
// by reading, incrementing and rewriting the stored value under an
// in-process mutex (there is no engine-level compare-and-swap), so the
// counters survive process restarts and stay correct under the single
// "one engine instance per process" discipline the base directory lock
// enforces.
package prefixalloc

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/vsdb-go/vsdb/internal/idmath"
	"github.com/vsdb-go/vsdb/kv"
)

// Allocator hands out monotonically increasing uint64 ids for one counter
// key. It serializes callers with an in-process mutex around a read,
// increment and write of the stored counter; kv.Engine does not expose a
// native compare-and-swap primitive for a single value, so none is used.
type Allocator struct {
	eng     kv.Engine
	counter string
	mu      sync.Mutex
}

// New returns an allocator for the counter stored at the reserved key name
// counterKey, initializing it to start if absent.
func New(eng kv.Engine, counterKey string, start uint64) (*Allocator, error) {
	a := &Allocator{eng: eng, counter: counterKey}
	ctx := context.Background()
	_, ok, err := eng.Get(ctx, kv.ReservedPrefix, []byte(counterKey))
	if err != nil {
		return nil, kv.Wrap(err, "prefixalloc: reading counter")
	}
	if !ok {
		if err := eng.Insert(ctx, kv.ReservedPrefix, []byte(counterKey), encode(start)); err != nil {
			return nil, kv.Wrap(err, "prefixalloc: initializing counter")
		}
	}
	return a, nil
}

func encode(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decode(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Next allocates and returns the next id, persisting the advanced counter
// before returning so a crash between allocation and use never reissues an
// id already handed to a caller.
func (a *Allocator) Next(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, ok, err := a.eng.Get(ctx, kv.ReservedPrefix, []byte(a.counter))
	if err != nil {
		return 0, kv.Wrap(err, "prefixalloc: reading counter")
	}
	if !ok {
		return 0, kv.New(kv.KindLogic, "prefixalloc: counter not initialized")
	}
	cur := decode(raw)
	next, overflowed := idmath.SafeAdd(cur, 1)
	if overflowed {
		return 0, kv.New(kv.KindLogic, "prefixalloc: counter overflow")
	}
	if err := a.eng.Insert(ctx, kv.ReservedPrefix, []byte(a.counter), encode(next)); err != nil {
		return 0, kv.Wrap(err, "prefixalloc: persisting counter")
	}
	return cur, nil
}

// Peek returns the current counter value without advancing it.
func (a *Allocator) Peek(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw, ok, err := a.eng.Get(ctx, kv.ReservedPrefix, []byte(a.counter))
	if err != nil {
		return 0, kv.Wrap(err, "prefixalloc: reading counter")
	}
	if !ok {
		return 0, kv.New(kv.KindLogic, "prefixalloc: counter not initialized")
	}
	return decode(raw), nil
}
