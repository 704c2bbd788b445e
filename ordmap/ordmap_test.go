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

package ordmap_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsdb-go/vsdb/kv"
	"github.com/vsdb-go/vsdb/kv/boltengine"
	"github.com/vsdb-go/vsdb/ordmap"
)

func openEngine(t *testing.T) kv.Engine {
	t.Helper()
	eng, err := boltengine.Open(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestInsertGetLen(t *testing.T) {
	ctx := context.Background()
	m := ordmap.New(openEngine(t), 100)

	require.NoError(t, m.Insert(ctx, []byte("a"), []byte("1")))
	require.NoError(t, m.Insert(ctx, []byte("b"), []byte("2")))

	n, err := m.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	v, ok, err := m.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestRemoveIsTombstone(t *testing.T) {
	ctx := context.Background()
	m := ordmap.New(openEngine(t), 101)

	require.NoError(t, m.Insert(ctx, []byte("a"), []byte("1")))
	require.NoError(t, m.Remove(ctx, []byte("a")))

	_, ok, err := m.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.False(t, ok)

	n, err := m.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestRangeSkipsTombstones(t *testing.T) {
	ctx := context.Background()
	m := ordmap.New(openEngine(t), 102)

	require.NoError(t, m.Insert(ctx, []byte("a"), []byte("1")))
	require.NoError(t, m.Insert(ctx, []byte("b"), []byte("2")))
	require.NoError(t, m.Remove(ctx, []byte("a")))

	var seen []string
	require.NoError(t, m.Range(ctx, nil, nil, kv.Forward, func(k, _ []byte) error {
		seen = append(seen, string(k))
		return nil
	}))
	require.Equal(t, []string{"b"}, seen)
}

func TestUnsafeShadowAliasesSamePrefix(t *testing.T) {
	ctx := context.Background()
	m := ordmap.New(openEngine(t), 103)
	shadow := m.UnsafeShadow()

	require.NoError(t, m.Insert(ctx, []byte("a"), []byte("1")))
	v, ok, err := shadow.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestValueMutWritesBack(t *testing.T) {
	ctx := context.Background()
	m := ordmap.New(openEngine(t), 104)
	require.NoError(t, m.Insert(ctx, []byte("a"), []byte("1")))

	mut, err := m.GetMut(ctx, []byte("a"))
	require.NoError(t, err)
	mut.Value = []byte("2")
	require.NoError(t, mut.Close(ctx))

	v, ok, err := m.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}
