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

// Package kv defines the pluggable ordered key-value engine abstraction
// that every higher layer (ordmap, multimap, vmkm) is built against.
package kv

import "context"

// Direction controls the iteration order of a Range call.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// KVPair is one entry returned by Range/IterFrom.
type KVPair struct {
	Key   []byte
	Value []byte
}

// Batch accumulates writes for a single atomic commit.
type Batch interface {
	Insert(prefix uint64, key, value []byte)
	Remove(prefix uint64, key []byte)
	Commit(ctx context.Context) error
	Discard()
}

// Engine is the ordered byte-key/byte-value backend VMKM is built on. A
// prefix is an 8-byte namespace (an instance prefix or a reserved-key
// prefix; ordmap keeps its length tag as an ordinary key inside its own
// prefix): engines logically partition all keys by this
// leading namespace the way the teacher's kv layer partitions by table/
// bucket name.
type Engine interface {
	Get(ctx context.Context, prefix uint64, key []byte) ([]byte, bool, error)
	Insert(ctx context.Context, prefix uint64, key, value []byte) error
	Remove(ctx context.Context, prefix uint64, key []byte) error

	// Range iterates [start, end) (end == nil means unbounded) in dir order,
	// calling fn for each pair. Iteration stops, and the error from fn is
	// returned verbatim, the first time fn returns a non-nil error.
	Range(ctx context.Context, prefix uint64, start, end []byte, dir Direction, fn func(KVPair) error) error

	// IterFrom is a restartable cursor: it returns a function that yields
	// successive pairs in dir order starting at key (Forward: the first pair
	// >= key; Reverse: the last pair <= key), and a close function that must
	// be called when iteration is done.
	IterFrom(ctx context.Context, prefix uint64, key []byte, dir Direction) (next func() (KVPair, bool, error), closeFn func() error, err error)

	NewBatch() Batch

	Flush(ctx context.Context) error

	// Shards reports how many independent write-concurrency units this
	// engine exposes. bbolt-backed engines always report 1.
	Shards() int

	Close() error
}
