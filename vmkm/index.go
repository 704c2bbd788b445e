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
	"bytes"
	"sync"

	"github.com/google/btree"
)

// versionEntry is one leaf of a layeredKeyEntry's per-version btree.
type versionEntry struct {
	version VersionID
	value   []byte // empty means tombstone
}

func (v versionEntry) Less(than btree.Item) bool {
	return v.version < than.(versionEntry).version
}

// layeredKeyEntry is one key's full version history, ordered by VersionID.
// This is the Go replacement for original_source's
// `BTreeMap<Vec<RawKey>, BTreeMap<VersionID, RawValue>>`: the outer
// ordering is provided by layeredIndex's own btree, the inner ordering by
// versions (a second google/btree.BTree). segs retains the original
// (unflattened) compound-key segments so a prefix scan can hand them back
// to a caller that needs to write through the multimap-keyed change set,
// which flattenKeySegments's join cannot be reversed into in general.
type layeredKeyEntry struct {
	key      []byte
	segs     [][]byte
	versions *btree.BTree
}

func (e *layeredKeyEntry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(*layeredKeyEntry).key) < 0
}

// layeredIndex is the in-memory `key -> ordered version->value` index VMKM
// resolves reads against. It is rebuilt eagerly from the engine's
// per-version change sets on open (see Backend.rebuildIndex), matching
// original_source's own eager in-memory layered_kv.
type layeredIndex struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func newLayeredIndex() *layeredIndex {
	return &layeredIndex{tree: btree.New(32)}
}

// Record inserts or overwrites segs's value as of version. An empty value
// records a tombstone: Resolve stops at it and reports the key absent, so
// it hides any older value (Resolve reports "deleted" and "never written"
// the same way).
func (idx *layeredIndex) Record(segs [][]byte, version VersionID, value []byte) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := flattenKeySegments(segs)
	probe := &layeredKeyEntry{key: key}
	var entry *layeredKeyEntry
	if item := idx.tree.Get(probe); item != nil {
		entry = item.(*layeredKeyEntry)
	} else {
		segsCopy := make([][]byte, len(segs))
		for i, s := range segs {
			segsCopy[i] = append([]byte(nil), s...)
		}
		entry = &layeredKeyEntry{key: append([]byte(nil), key...), segs: segsCopy, versions: btree.New(16)}
		idx.tree.ReplaceOrInsert(entry)
	}
	entry.versions.ReplaceOrInsert(versionEntry{version: version, value: append([]byte(nil), value...)})
}

// Resolve returns the value key held as of the newest version <= asOf that
// visible accepts (the branch's own version set, including
// inherited versions from its base branch chain), or ok=false if the key
// was never written as of that point, or its newest-visible write was a
// tombstone.
func (idx *layeredIndex) Resolve(key []byte, asOf VersionID, visible func(VersionID) bool) (value []byte, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	item := idx.tree.Get(&layeredKeyEntry{key: key})
	if item == nil {
		return nil, false
	}
	entry := item.(*layeredKeyEntry)

	var found versionEntry
	hasFound := false
	entry.versions.Descend(func(i btree.Item) bool {
		ve := i.(versionEntry)
		if ve.version > asOf {
			return true
		}
		if !visible(ve.version) {
			return true
		}
		found = ve
		hasFound = true
		return false
	})
	if !hasFound || len(found.value) == 0 {
		return nil, false
	}
	return found.value, true
}

// RemoveVersion deletes all entries for version across every key, used by
// version_pop and version_revert_globally.
func (idx *layeredIndex) RemoveVersion(version VersionID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var empties []*layeredKeyEntry
	idx.tree.Ascend(func(i btree.Item) bool {
		entry := i.(*layeredKeyEntry)
		entry.versions.Delete(versionEntry{version: version})
		if entry.versions.Len() == 0 {
			empties = append(empties, entry)
		}
		return true
	})
	for _, e := range empties {
		idx.tree.Delete(e)
	}
}

// RemoveKeyVersion deletes a single key's entry at one version, used to
// garbage-collect a prune fold's rewrite-version entry once it turns out to
// be a tombstone (the key was created and deleted entirely inside the
// pruned window).
func (idx *layeredIndex) RemoveKeyVersion(key []byte, version VersionID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	item := idx.tree.Get(&layeredKeyEntry{key: key})
	if item == nil {
		return
	}
	entry := item.(*layeredKeyEntry)
	entry.versions.Delete(versionEntry{version: version})
	if entry.versions.Len() == 0 {
		idx.tree.Delete(entry)
	}
}

// ResolvePrefix returns the original segments of every key whose flattened
// form has the given prefix and currently holds a live (non-tombstone)
// value as of asOf under visible — the non-destructive range-scan
// batch-remove-by-prefix uses to discover which full keys a partial-key
// tombstone write needs to shadow, in place of physically deleting their
// history.
func (idx *layeredIndex) ResolvePrefix(prefix []byte, asOf VersionID, visible func(VersionID) bool) [][][]byte {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out [][][]byte
	idx.tree.AscendGreaterOrEqual(&layeredKeyEntry{key: prefix}, func(i btree.Item) bool {
		entry := i.(*layeredKeyEntry)
		if !bytes.HasPrefix(entry.key, prefix) {
			return false
		}
		var found versionEntry
		hasFound := false
		entry.versions.Descend(func(i btree.Item) bool {
			ve := i.(versionEntry)
			if ve.version > asOf {
				return true
			}
			if !visible(ve.version) {
				return true
			}
			found = ve
			hasFound = true
			return false
		})
		if hasFound && len(found.value) > 0 {
			out = append(out, entry.segs)
		}
		return true
	})
	return out
}
