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

package multimap_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsdb-go/vsdb/kv/boltengine"
	"github.com/vsdb-go/vsdb/kv/prefixalloc"
	"github.com/vsdb-go/vsdb/multimap"
)

func newTestMap(t *testing.T, depth int) *multimap.MultiKeyMap {
	t.Helper()
	eng, err := boltengine.Open(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	alloc, err := prefixalloc.New(eng, "test_next_prefix", 1000)
	require.NoError(t, err)
	return multimap.New(eng, 1, depth, alloc.Next)
}

func TestNestedInsertGet(t *testing.T) {
	ctx := context.Background()
	mm := newTestMap(t, 2)

	require.NoError(t, mm.Insert(ctx, [][]byte{[]byte("acct1"), []byte("balance")}, []byte("100")))
	v, ok, err := mm.Get(ctx, [][]byte{[]byte("acct1"), []byte("balance")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("100"), v)
}

func TestPartialKeyRemovesSubtree(t *testing.T) {
	ctx := context.Background()
	mm := newTestMap(t, 2)

	require.NoError(t, mm.Insert(ctx, [][]byte{[]byte("acct1"), []byte("balance")}, []byte("100")))
	require.NoError(t, mm.Insert(ctx, [][]byte{[]byte("acct1"), []byte("nonce")}, []byte("1")))
	require.NoError(t, mm.Insert(ctx, [][]byte{[]byte("acct2"), []byte("balance")}, []byte("200")))

	require.NoError(t, mm.Remove(ctx, [][]byte{[]byte("acct1")}))

	_, ok, err := mm.Get(ctx, [][]byte{[]byte("acct1"), []byte("balance")})
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := mm.Get(ctx, [][]byte{[]byte("acct2"), []byte("balance")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("200"), v)
}

func TestIterOpWalksAllLeaves(t *testing.T) {
	ctx := context.Background()
	mm := newTestMap(t, 2)

	require.NoError(t, mm.Insert(ctx, [][]byte{[]byte("acct1"), []byte("balance")}, []byte("100")))
	require.NoError(t, mm.Insert(ctx, [][]byte{[]byte("acct2"), []byte("balance")}, []byte("200")))

	count := 0
	require.NoError(t, mm.IterOp(ctx, nil, func(keys [][]byte, value []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 2, count)
}
