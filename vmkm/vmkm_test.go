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

package vmkm_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsdb-go/vsdb/kv/boltengine"
	"github.com/vsdb-go/vsdb/vmkm"
)

func openTestBackend(t *testing.T) *vmkm.Backend {
	t.Helper()
	dir := t.TempDir()
	eng, err := boltengine.Open(filepath.Join(dir, "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	b, err := vmkm.Open(context.Background(), eng, vmkm.Options{})
	require.NoError(t, err)
	return b
}

func TestInsertGetRemove(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("alpha")}, []byte("1")))
	v, ok, err := b.Get(ctx, [][]byte{[]byte("alpha")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, b.Remove(ctx, [][]byte{[]byte("alpha")}))
	_, ok, err = b.Get(ctx, [][]byte{[]byte("alpha")})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVersionHistory(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("k")}, []byte("v0")))
	v1, err := b.VersionCreateByBranch(ctx, "main", "v1")
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("k")}, []byte("v1-value")))

	val, ok, err := b.GetByBranchVersion(ctx, "main", "v1", [][]byte{[]byte("k")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1-value"), val)
	_ = v1
}

func TestBranchForkIsolation(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("k")}, []byte("main-value")))
	_, err := b.BranchCreateByBaseBranchVersion(ctx, "feature", "main", vmkm.BranchCreateOpts{})
	require.NoError(t, err)

	require.NoError(t, b.InsertByBranch(ctx, "feature", [][]byte{[]byte("k")}, []byte("feature-value")))

	mainVal, ok, err := b.GetByBranch(ctx, "main", [][]byte{[]byte("k")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("main-value"), mainVal)

	featVal, ok, err := b.GetByBranch(ctx, "feature", [][]byte{[]byte("k")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("feature-value"), featVal)
}

func TestBatchRemoveByPrefix(t *testing.T) {
	ctx := context.Background()
	b, err := vmkm.Open(context.Background(), mustEngine(t), vmkm.Options{KeySize: 2})
	require.NoError(t, err)

	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("acct1"), []byte("balance")}, []byte("100")))
	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("acct1"), []byte("nonce")}, []byte("1")))
	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("acct2"), []byte("balance")}, []byte("200")))

	require.NoError(t, b.Remove(ctx, [][]byte{[]byte("acct1")}))

	_, ok, err := b.Get(ctx, [][]byte{[]byte("acct1"), []byte("balance")})
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := b.Get(ctx, [][]byte{[]byte("acct2"), []byte("balance")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("200"), v)
}

// TestBatchRemoveByPrefixPreservesOlderVersionHistory exercises the
// end-to-end scenario where a prefix is inserted at one version, a new
// version is created, and then the prefix is removed: the remove must only
// shadow the prefix as of the new head, not erase the key's history, so a
// read pinned to the earlier version still sees the original value.
func TestBatchRemoveByPrefixPreservesOlderVersionHistory(t *testing.T) {
	ctx := context.Background()
	b, err := vmkm.Open(context.Background(), mustEngine(t), vmkm.Options{KeySize: 2})
	require.NoError(t, err)

	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("p"), []byte("1")}, []byte{0x11}))
	_, err = b.VersionCreateByBranch(ctx, "main", "v1")
	require.NoError(t, err)

	require.NoError(t, b.Remove(ctx, [][]byte{[]byte("p")}))

	_, ok, err := b.Get(ctx, [][]byte{[]byte("p"), []byte("1")})
	require.NoError(t, err)
	require.False(t, ok)

	old, ok, err := b.GetByBranchVersion(ctx, "main", "v0", [][]byte{[]byte("p"), []byte("1")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x11}, old)
}

func TestPruneKeepsVisibleHead(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	for i := 0; i < 5; i++ {
		_, err := b.VersionCreateByBranch(ctx, "main", vmkm.VersionName("v"+string(rune('1'+i))))
		require.NoError(t, err)
		require.NoError(t, b.Insert(ctx, [][]byte{[]byte("k")}, []byte("value")))
	}

	m := vmkm.NewVsMgmt(b)
	require.NoError(t, m.Prune(ctx, 1))

	v, ok, err := b.Get(ctx, [][]byte{[]byte("k")})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("value"), v)
}

// TestPruneFoldsDistinctKeysIntoRewriteVersion mirrors spec.md's literal
// prune(keep=1) scenario: four versions each write a different key once,
// and after pruning, the folded versions are gone but every key's value is
// still reachable through the retained rewrite version.
func TestPruneFoldsDistinctKeysIntoRewriteVersion(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	_, err := b.VersionCreateByBranch(ctx, "main", "v1")
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("a")}, []byte{0x00}))

	_, err = b.VersionCreateByBranch(ctx, "main", "v2")
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("b")}, []byte{0x01}))

	_, err = b.VersionCreateByBranch(ctx, "main", "v3")
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("c")}, []byte{0x02}))

	_, err = b.VersionCreateByBranch(ctx, "main", "v4")
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, [][]byte{[]byte("d")}, []byte{0x03}))

	m := vmkm.NewVsMgmt(b)
	require.NoError(t, m.Prune(ctx, 1))

	for _, name := range []vmkm.VersionName{"v0", "v1", "v2", "v3"} {
		exists, err := b.VersionExistsGlobally(ctx, name)
		require.NoError(t, err)
		require.Falsef(t, exists, "version %q should have been folded away", name)
	}
	exists, err := b.VersionExistsGlobally(ctx, "v4")
	require.NoError(t, err)
	require.True(t, exists)

	for key, want := range map[string]byte{"a": 0x00, "b": 0x01, "c": 0x02, "d": 0x03} {
		v, ok, err := b.Get(ctx, [][]byte{[]byte(key)})
		require.NoError(t, err)
		require.Truef(t, ok, "key %q should still be visible after prune", key)
		require.Equal(t, []byte{want}, v)
	}
}

func mustEngine(t *testing.T) *boltengine.Engine {
	t.Helper()
	dir := t.TempDir()
	eng, err := boltengine.Open(filepath.Join(dir, "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}
