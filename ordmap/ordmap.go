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

// Package ordmap implements OrdRawMap, an ordered byte-key to byte-value
// map backed by one kv.Engine prefix namespace. It is the thin view over a
// single namespace that every higher layer (multimap, vmkm) composes.
package ordmap

import (
	"context"
	"encoding/binary"

	"github.com/vsdb-go/vsdb/kv"
)

// lenTagSuffix is appended to a map's own prefix to derive the reserved key
// that tracks its element count, avoiding an O(n) Len() implementation.
const lenTagSuffix = "__len__"

// OrdRawMap is an ordered view over a single 8-byte engine prefix. Empty
// ([]byte{}) values are tombstones: Get reports them as absent.
type OrdRawMap struct {
	eng    kv.Engine
	prefix uint64
}

// New wraps prefix as an OrdRawMap over eng. It does not touch the engine;
// the length tag is written by the first Insert that changes the live
// count, and Len reports 0 until then.
func New(eng kv.Engine, prefix uint64) *OrdRawMap {
	return &OrdRawMap{eng: eng, prefix: prefix}
}

// Prefix returns the engine namespace this map is a view over.
func (m *OrdRawMap) Prefix() uint64 { return m.prefix }

// UnsafeShadow returns a second handle aliasing the same prefix namespace.
// Named Unsafe because the caller takes on the obligation the teacher's
// Rust source marks with its own unsafe shadow-handle constructor: two
// handles over one prefix must never be mutated concurrently from
// different goroutines without external synchronization.
func (m *OrdRawMap) UnsafeShadow() *OrdRawMap {
	return &OrdRawMap{eng: m.eng, prefix: m.prefix}
}

func isTombstone(v []byte) bool { return len(v) == 0 }

// Get returns the value at key, or ok=false if absent or tombstoned.
func (m *OrdRawMap) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, found, err := m.eng.Get(ctx, m.prefix, key)
	if err != nil {
		return nil, false, kv.Wrap(err, "ordmap: get")
	}
	if !found || isTombstone(v) {
		return nil, false, nil
	}
	return v, true, nil
}

// ContainsKey reports whether key holds a live (non-tombstoned) value.
func (m *OrdRawMap) ContainsKey(ctx context.Context, key []byte) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

// GetLE returns the live entry with the largest key <= key, if any — the
// floor lookup original_source's MapxOrd::get_le exposes.
func (m *OrdRawMap) GetLE(ctx context.Context, key []byte) (foundKey, value []byte, ok bool, err error) {
	bound := append([]byte(nil), key...)
	bound = append(bound, 0x00)
	err = m.Range(ctx, nil, bound, kv.Reverse, func(k, v []byte) error {
		foundKey, value, ok = append([]byte(nil), k...), append([]byte(nil), v...), true
		return errStopIteration
	})
	if err == errStopIteration {
		err = nil
	}
	return
}

// GetGE returns the live entry with the smallest key >= key, if any — the
// ceiling lookup original_source's MapxOrd::get_ge exposes.
func (m *OrdRawMap) GetGE(ctx context.Context, key []byte) (foundKey, value []byte, ok bool, err error) {
	err = m.Range(ctx, key, nil, kv.Forward, func(k, v []byte) error {
		foundKey, value, ok = append([]byte(nil), k...), append([]byte(nil), v...), true
		return errStopIteration
	})
	if err == errStopIteration {
		err = nil
	}
	return
}

func (m *OrdRawMap) lenDelta(ctx context.Context, delta int64) error {
	raw, ok, err := m.eng.Get(ctx, m.prefix, []byte(lenTagSuffix))
	if err != nil {
		return kv.Wrap(err, "ordmap: reading len tag")
	}
	var cur int64
	if ok && len(raw) == 8 {
		cur = int64(binary.BigEndian.Uint64(raw))
	}
	cur += delta
	if cur < 0 {
		cur = 0
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(cur))
	return m.eng.Insert(ctx, m.prefix, []byte(lenTagSuffix), out)
}

// Insert writes key->value, maintaining the length tag. Inserting a
// tombstone (empty value) over an existing live entry decrements the
// length; inserting a non-empty value over a tombstone or absent key
// increments it.
func (m *OrdRawMap) Insert(ctx context.Context, key, value []byte) error {
	_, existed, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := m.eng.Insert(ctx, m.prefix, key, value); err != nil {
		return kv.Wrap(err, "ordmap: insert")
	}
	nowLive := !isTombstone(value)
	switch {
	case existed && !nowLive:
		return m.lenDelta(ctx, -1)
	case !existed && nowLive:
		return m.lenDelta(ctx, 1)
	default:
		return nil
	}
}

// Remove tombstones key (logical delete) if it was live.
func (m *OrdRawMap) Remove(ctx context.Context, key []byte) error {
	return m.Insert(ctx, key, []byte{})
}

// Len returns the map's live element count via its length tag.
func (m *OrdRawMap) Len(ctx context.Context) (int64, error) {
	raw, ok, err := m.eng.Get(ctx, m.prefix, []byte(lenTagSuffix))
	if err != nil {
		return 0, kv.Wrap(err, "ordmap: len")
	}
	if !ok || len(raw) != 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// IsEmpty reports whether the map has zero live elements.
func (m *OrdRawMap) IsEmpty(ctx context.Context) (bool, error) {
	n, err := m.Len(ctx)
	return n == 0, err
}

// Range walks [start, end) in dir order, skipping tombstones, calling fn
// for each live pair. Stops at the first error fn returns.
func (m *OrdRawMap) Range(ctx context.Context, start, end []byte, dir kv.Direction, fn func(key, value []byte) error) error {
	return m.eng.Range(ctx, m.prefix, start, end, dir, func(p kv.KVPair) error {
		if string(p.Key) == lenTagSuffix || isTombstone(p.Value) {
			return nil
		}
		return fn(p.Key, p.Value)
	})
}

// First returns the lexicographically smallest live key, if any.
func (m *OrdRawMap) First(ctx context.Context) (key, value []byte, ok bool, err error) {
	err = m.Range(ctx, nil, nil, kv.Forward, func(k, v []byte) error {
		key, value, ok = append([]byte(nil), k...), append([]byte(nil), v...), true
		return errStopIteration
	})
	if err == errStopIteration {
		err = nil
	}
	return
}

// Last returns the lexicographically largest live key, if any.
func (m *OrdRawMap) Last(ctx context.Context) (key, value []byte, ok bool, err error) {
	err = m.Range(ctx, nil, nil, kv.Reverse, func(k, v []byte) error {
		key, value, ok = append([]byte(nil), k...), append([]byte(nil), v...), true
		return errStopIteration
	})
	if err == errStopIteration {
		err = nil
	}
	return
}

type stopIteration struct{}

func (stopIteration) Error() string { return "ordmap: iteration stopped" }

var errStopIteration error = stopIteration{}

// Clear tombstones every live key in the map. It is O(n) by construction —
// batch deletion by prefix range is multimap's job, not a single
// OrdRawMap's.
func (m *OrdRawMap) Clear(ctx context.Context) error {
	var keys [][]byte
	if err := m.Range(ctx, nil, nil, kv.Forward, func(k, _ []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
