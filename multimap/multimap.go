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

// Package multimap implements MultiKeyMap, a recursive nesting of
// ordmap.OrdRawMap to a fixed depth, mirroring original_source's
// MapxRawMk. Each non-leaf level's value is itself a sub-map's prefix
// (encoded as 8 bytes), so a partial-key Remove can tombstone every
// descendant of a prefix in one depth-first walk.
package multimap

import (
	"context"
	"encoding/binary"

	"github.com/vsdb-go/vsdb/kv"
	"github.com/vsdb-go/vsdb/ordmap"
)

// MultiKeyMap nests OrdRawMap to Depth levels. Depth must be >= 1.
type MultiKeyMap struct {
	eng   kv.Engine
	root  uint64
	depth int
	alloc func(ctx context.Context) (uint64, error)
}

// New builds a MultiKeyMap rooted at root, nesting to the given depth.
// alloc is called to mint a fresh prefix for each newly created sub-map
// level (typically prefixalloc.Allocator.Next).
func New(eng kv.Engine, root uint64, depth int, alloc func(ctx context.Context) (uint64, error)) *MultiKeyMap {
	if depth < 1 {
		depth = 1
	}
	return &MultiKeyMap{eng: eng, root: root, depth: depth, alloc: alloc}
}

func encodePrefix(p uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, p)
	return b
}

func decodePrefix(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

// Get walks keys (one per nesting level, len(keys) == Depth) down to the
// leaf value.
func (mm *MultiKeyMap) Get(ctx context.Context, keys [][]byte) ([]byte, bool, error) {
	if len(keys) != mm.depth {
		return nil, false, kv.Newf(kv.KindInvalidArgument, "multimap: expected %d keys, got %d", mm.depth, len(keys))
	}
	prefix := mm.root
	m := ordmap.New(mm.eng, prefix)
	for level := 0; level < mm.depth-1; level++ {
		v, ok, err := m.Get(ctx, keys[level])
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		childPrefix, valid := decodePrefix(v)
		if !valid {
			return nil, false, kv.New(kv.KindLogic, "multimap: corrupt intermediate prefix pointer")
		}
		m = ordmap.New(mm.eng, childPrefix)
	}
	return m.Get(ctx, keys[mm.depth-1])
}

// Insert walks/creates intermediate levels down to keys, writing value at
// the leaf.
func (mm *MultiKeyMap) Insert(ctx context.Context, keys [][]byte, value []byte) error {
	if len(keys) != mm.depth {
		return kv.Newf(kv.KindInvalidArgument, "multimap: expected %d keys, got %d", mm.depth, len(keys))
	}
	prefix := mm.root
	m := ordmap.New(mm.eng, prefix)
	for level := 0; level < mm.depth-1; level++ {
		v, ok, err := m.Get(ctx, keys[level])
		if err != nil {
			return err
		}
		var childPrefix uint64
		if ok {
			childPrefix, _ = decodePrefix(v)
		} else {
			childPrefix, err = mm.alloc(ctx)
			if err != nil {
				return kv.Wrap(err, "multimap: allocating sub-map prefix")
			}
			if err := m.Insert(ctx, keys[level], encodePrefix(childPrefix)); err != nil {
				return err
			}
		}
		m = ordmap.New(mm.eng, childPrefix)
	}
	return m.Insert(ctx, keys[mm.depth-1], value)
}

// Remove performs a partial-key batch remove: every key path whose prefix
// equals keys is tombstoned, recursing into sub-maps as needed. len(keys)
// may be less than Depth to remove an entire subtree.
func (mm *MultiKeyMap) Remove(ctx context.Context, keys [][]byte) error {
	if len(keys) > mm.depth {
		return kv.Newf(kv.KindInvalidArgument, "multimap: key path longer than depth %d", mm.depth)
	}
	prefix := mm.root
	m := ordmap.New(mm.eng, prefix)
	for level := 0; level < len(keys)-1; level++ {
		v, ok, err := m.Get(ctx, keys[level])
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		childPrefix, _ := decodePrefix(v)
		m = ordmap.New(mm.eng, childPrefix)
	}
	if len(keys) == mm.depth {
		return m.Remove(ctx, keys[mm.depth-1])
	}
	if len(keys) == 0 {
		return mm.removeSubtree(ctx, m, 0)
	}
	last := keys[len(keys)-1]
	v, ok, err := m.Get(ctx, last)
	if err != nil || !ok {
		return err
	}
	childPrefix, _ := decodePrefix(v)
	if err := mm.removeSubtree(ctx, ordmap.New(mm.eng, childPrefix), len(keys)); err != nil {
		return err
	}
	return m.Remove(ctx, last)
}

func (mm *MultiKeyMap) removeSubtree(ctx context.Context, m *ordmap.OrdRawMap, level int) error {
	if level >= mm.depth-1 {
		return m.Clear(ctx)
	}
	var children []uint64
	if err := m.Range(ctx, nil, nil, kv.Forward, func(_, v []byte) error {
		if p, ok := decodePrefix(v); ok {
			children = append(children, p)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, child := range children {
		if err := mm.removeSubtree(ctx, ordmap.New(mm.eng, child), level+1); err != nil {
			return err
		}
	}
	return m.Clear(ctx)
}

// IterOp walks every leaf under the given key prefix (len(prefix) <= Depth)
// in depth-first lexicographic order, calling op(fullKeys, value) for each
// live leaf. Iteration aborts on the first error op returns.
func (mm *MultiKeyMap) IterOp(ctx context.Context, prefix [][]byte, op func(keys [][]byte, value []byte) error) error {
	m := ordmap.New(mm.eng, mm.root)
	path := make([][]byte, 0, mm.depth)
	for _, k := range prefix {
		v, ok, err := m.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		path = append(path, k)
		if len(path) == mm.depth {
			return op(path, v)
		}
		childPrefix, _ := decodePrefix(v)
		m = ordmap.New(mm.eng, childPrefix)
	}
	return mm.walk(ctx, m, path, op)
}

func (mm *MultiKeyMap) walk(ctx context.Context, m *ordmap.OrdRawMap, path [][]byte, op func(keys [][]byte, value []byte) error) error {
	return m.Range(ctx, nil, nil, kv.Forward, func(k, v []byte) error {
		childPath := append(append([][]byte{}, path...), append([]byte(nil), k...))
		if len(childPath) == mm.depth {
			return op(childPath, v)
		}
		childPrefix, ok := decodePrefix(v)
		if !ok {
			return kv.New(kv.KindLogic, "multimap: corrupt intermediate prefix pointer")
		}
		return mm.walk(ctx, ordmap.New(mm.eng, childPrefix), childPath, op)
	})
}
