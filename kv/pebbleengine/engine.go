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

// Package pebbleengine implements the RocksDB-class kv.Engine on top of
// github.com/cockroachdb/pebble, an LSM-tree engine with native forward and
// reverse range iterators. It is the default choice for larger stores and
// supports multiple shards (one pebble instance per shard subdirectory).
package pebbleengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/vsdb-go/vsdb/kv"
)

const compressionThreshold = 256

var (
	zEnc, _ = zstd.NewWriter(nil)
	zDec, _ = zstd.NewReader(nil)
)

const compressedFlag = 0x01
const rawFlag = 0x00

// Engine is a kv.Engine backed by one or more pebble instances, sharded by
// prefix when shardCount > 1.
type Engine struct {
	shards  []*pebble.DB
	metrics *kv.Metrics
}

// Open opens shardCount pebble instances under dir/shard-N.
func Open(dir string, shardCount int, metrics *kv.Metrics) (*Engine, error) {
	if shardCount < 1 {
		shardCount = 1
	}
	if metrics == nil {
		metrics = kv.NewMetrics()
	}
	e := &Engine{metrics: metrics}
	for i := 0; i < shardCount; i++ {
		db, err := pebble.Open(filepath.Join(dir, fmt.Sprintf("shard-%d", i)), &pebble.Options{})
		if err != nil {
			for _, opened := range e.shards {
				_ = opened.Close()
			}
			return nil, kv.WithKind(err, kv.KindBackend)
		}
		e.shards = append(e.shards, db)
	}
	return e, nil
}

func (e *Engine) shardFor(prefix uint64) *pebble.DB {
	return e.shards[prefix%uint64(len(e.shards))]
}

func storageKey(prefix uint64, key []byte) []byte {
	out := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(out[:8], prefix)
	copy(out[8:], key)
	return out
}

func encodeValue(v []byte) []byte {
	if len(v) < compressionThreshold {
		out := make([]byte, 1+len(v))
		out[0] = rawFlag
		copy(out[1:], v)
		return out
	}
	compressed := zEnc.EncodeAll(v, nil)
	out := make([]byte, 1+len(compressed))
	out[0] = compressedFlag
	copy(out[1:], compressed)
	return out
}

func decodeValue(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, nil
	}
	flag, body := stored[0], stored[1:]
	if flag == rawFlag {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	return zDec.DecodeAll(body, nil)
}

func (e *Engine) Get(_ context.Context, prefix uint64, key []byte) ([]byte, bool, error) {
	db := e.shardFor(prefix)
	v, closer, err := db.Get(storageKey(prefix, key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kv.WithKind(err, kv.KindBackend)
	}
	defer closer.Close()
	decoded, err := decodeValue(v)
	if err != nil {
		return nil, false, kv.WithKind(err, kv.KindBackend)
	}
	return decoded, true, nil
}

func (e *Engine) Insert(_ context.Context, prefix uint64, key, value []byte) error {
	db := e.shardFor(prefix)
	if err := db.Set(storageKey(prefix, key), encodeValue(value), pebble.Sync); err != nil {
		return kv.WithKind(err, kv.KindBackend)
	}
	return nil
}

func (e *Engine) Remove(_ context.Context, prefix uint64, key []byte) error {
	db := e.shardFor(prefix)
	if err := db.Delete(storageKey(prefix, key), pebble.Sync); err != nil {
		return kv.WithKind(err, kv.KindBackend)
	}
	return nil
}

func prefixBounds(prefix uint64, start, end []byte) ([]byte, []byte) {
	lo := storageKey(prefix, start)
	var hi []byte
	if end != nil {
		hi = storageKey(prefix, end)
	} else {
		// Unbounded: the upper bound is the start of the next prefix.
		hi = storageKey(prefix+1, nil)
	}
	return lo, hi
}

func (e *Engine) Range(_ context.Context, prefix uint64, start, end []byte, dir kv.Direction, fn func(kv.KVPair) error) error {
	db := e.shardFor(prefix)
	lo, hi := prefixBounds(prefix, start, end)
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return kv.WithKind(err, kv.KindBackend)
	}
	defer it.Close()

	emit := func(valid bool) (bool, error) {
		if !valid {
			return false, nil
		}
		decoded, derr := decodeValue(it.Value())
		if derr != nil {
			return false, derr
		}
		userKey := append([]byte(nil), it.Key()[8:]...)
		if ferr := fn(kv.KVPair{Key: userKey, Value: decoded}); ferr != nil {
			return false, ferr
		}
		return true, nil
	}

	if dir == kv.Forward {
		for valid := it.First(); valid; valid = it.Next() {
			ok, ferr := emit(valid)
			if ferr != nil {
				return ferr
			}
			if !ok {
				break
			}
		}
	} else {
		for valid := it.Last(); valid; valid = it.Prev() {
			ok, ferr := emit(valid)
			if ferr != nil {
				return ferr
			}
			if !ok {
				break
			}
		}
	}
	return nil
}

func (e *Engine) IterFrom(ctx context.Context, prefix uint64, key []byte, dir kv.Direction) (func() (kv.KVPair, bool, error), func() error, error) {
	db := e.shardFor(prefix)
	lo, hi := prefixBounds(prefix, nil, nil)
	it, err := db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, nil, kv.WithKind(err, kv.KindBackend)
	}
	var valid bool
	started := false
	advance := func() {
		if !started {
			started = true
			if dir == kv.Forward {
				valid = it.SeekGE(storageKey(prefix, key))
			} else {
				sk := storageKey(prefix, key)
				valid = it.SeekGE(sk)
				if !valid || bytes.Compare(it.Key(), sk) > 0 {
					valid = it.SeekLT(sk)
				}
			}
			return
		}
		if dir == kv.Forward {
			valid = it.Next()
		} else {
			valid = it.Prev()
		}
	}
	next := func() (kv.KVPair, bool, error) {
		advance()
		if !valid {
			return kv.KVPair{}, false, nil
		}
		decoded, derr := decodeValue(it.Value())
		if derr != nil {
			return kv.KVPair{}, false, derr
		}
		userKey := append([]byte(nil), it.Key()[8:]...)
		return kv.KVPair{Key: userKey, Value: decoded}, true, nil
	}
	return next, it.Close, nil
}

type batchOp struct {
	prefix uint64
	key    []byte
	value  []byte
	remove bool
}

type batch struct {
	e   *Engine
	ops []batchOp
}

func (b *batch) Insert(prefix uint64, key, value []byte) {
	b.ops = append(b.ops, batchOp{prefix: prefix, key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *batch) Remove(prefix uint64, key []byte) {
	b.ops = append(b.ops, batchOp{prefix: prefix, key: append([]byte(nil), key...), remove: true})
}

func (b *batch) Commit(_ context.Context) error {
	byShard := map[*pebble.DB]*pebble.Batch{}
	for _, op := range b.ops {
		db := b.e.shardFor(op.prefix)
		pb, ok := byShard[db]
		if !ok {
			pb = db.NewBatch()
			byShard[db] = pb
		}
		sk := storageKey(op.prefix, op.key)
		if op.remove {
			if err := pb.Delete(sk, nil); err != nil {
				return kv.WithKind(err, kv.KindBackend)
			}
			continue
		}
		if err := pb.Set(sk, encodeValue(op.value), nil); err != nil {
			return kv.WithKind(err, kv.KindBackend)
		}
	}
	for db, pb := range byShard {
		if err := db.Apply(pb, pebble.Sync); err != nil {
			return kv.WithKind(err, kv.KindBackend)
		}
	}
	return nil
}

func (b *batch) Discard() { b.ops = nil }

func (e *Engine) NewBatch() kv.Batch { return &batch{e: e} }

func (e *Engine) Flush(ctx context.Context) error {
	op := func() error {
		// Shards are independent pebble instances; flushing them
		// concurrently shortens wall-clock time proportionally to shard
		// count instead of serializing one disk sync after another.
		g, _ := errgroup.WithContext(ctx)
		for _, db := range e.shards {
			db := db
			g.Go(func() error { return db.Flush() })
		}
		return g.Wait()
	}
	boff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.RetryNotify(op, boff, func(error, time.Duration) {
		e.metrics.FlushRetries.Inc()
	}); err != nil {
		return kv.WithKind(err, kv.KindBackend)
	}
	return nil
}

func (e *Engine) Shards() int { return len(e.shards) }

func (e *Engine) Close() error {
	for _, db := range e.shards {
		if err := db.Close(); err != nil {
			return kv.WithKind(err, kv.KindBackend)
		}
	}
	return nil
}
