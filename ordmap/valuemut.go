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

package ordmap

import "context"

// ValueMut is a scope-guarded handle on one map entry's value: callers
// mutate Value in place and must call Close to write it back, mirroring
// the teacher's get_mut guard pattern (a guard type that persists its
// held value on Drop/Close rather than requiring a separate explicit Set
// call).
type ValueMut struct {
	m        *OrdRawMap
	key      []byte
	Value    []byte
	existed  bool
	released bool
}

// GetMut returns a ValueMut over key, creating a zero-length value slot if
// absent. The caller must call Close exactly once.
func (m *OrdRawMap) GetMut(ctx context.Context, key []byte) (*ValueMut, error) {
	v, existed, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var val []byte
	if existed {
		val = append([]byte(nil), v...)
	}
	return &ValueMut{m: m, key: append([]byte(nil), key...), Value: val, existed: existed}, nil
}

// Close writes Value back to the underlying map. Safe to call multiple
// times; only the first call has effect.
func (v *ValueMut) Close(ctx context.Context) error {
	if v.released {
		return nil
	}
	v.released = true
	return v.m.Insert(ctx, v.key, v.Value)
}

// Release discards pending mutations without writing them back.
func (v *ValueMut) Release() { v.released = true }
