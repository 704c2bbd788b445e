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

package vmkm

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// branchBitmapCache caches each branch's own version-membership set as a
// roaring bitmap, keyed by the low 32 bits of VersionID (versionBit
// truncates; ids at or above 2^32 would collide with smaller ones). The
// authoritative membership record remains the brToItsVers multimap; Open
// refills this cache from it and every membership change updates both.
// Backend.isVisible answers "is version V on branch B" from this cache
// alone, for every version a layeredIndex.Resolve walk considers.
//
// Grounded on erigon-lib/kv/tables.go's own roaring-bitmap-encoded history
// indices (AccountsHistory/StorageHistory: "value - roaring bitmap - list
// of block where it changed"), repointed from per-key block history to
// per-branch version membership.
type branchBitmapCache struct {
	mu     sync.RWMutex
	byBr   map[BranchID]*roaring.Bitmap
}

func newBranchBitmapCache() *branchBitmapCache {
	return &branchBitmapCache{byBr: make(map[BranchID]*roaring.Bitmap)}
}

func versionBit(v VersionID) uint32 { return uint32(v) }

func (c *branchBitmapCache) Add(branch BranchID, version VersionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bm, ok := c.byBr[branch]
	if !ok {
		bm = roaring.New()
		c.byBr[branch] = bm
	}
	bm.Add(versionBit(version))
}

func (c *branchBitmapCache) Remove(branch BranchID, version VersionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bm, ok := c.byBr[branch]; ok {
		bm.Remove(versionBit(version))
	}
}

func (c *branchBitmapCache) Contains(branch BranchID, version VersionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bm, ok := c.byBr[branch]
	if !ok {
		return false
	}
	return bm.Contains(versionBit(version))
}

func (c *branchBitmapCache) Drop(branch BranchID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byBr, branch)
}

func (c *branchBitmapCache) Clone(from, to BranchID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bm, ok := c.byBr[from]; ok {
		c.byBr[to] = bm.Clone()
	}
}
