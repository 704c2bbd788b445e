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

package prefixalloc_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsdb-go/vsdb/kv/boltengine"
	"github.com/vsdb-go/vsdb/kv/prefixalloc"
)

func TestAllocatorIsMonotonic(t *testing.T) {
	ctx := context.Background()
	eng, err := boltengine.Open(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	defer eng.Close()

	a, err := prefixalloc.New(eng, "test_counter", 5)
	require.NoError(t, err)

	first, err := a.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, first)

	second, err := a.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 6, second)
}

func TestAllocatorSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	eng, err := boltengine.Open(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	defer eng.Close()

	a, err := prefixalloc.New(eng, "test_counter", 1)
	require.NoError(t, err)
	_, err = a.Next(ctx)
	require.NoError(t, err)

	reopened, err := prefixalloc.New(eng, "test_counter", 1)
	require.NoError(t, err)
	next, err := reopened.Next(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, next)
}
