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

import "context"

// Insert writes key->value at the default branch's head version. It returns
// a NoHeadVersion error if the default branch has no version yet.
func (b *Backend) Insert(ctx context.Context, keySegments [][]byte, value []byte) error {
	return b.InsertByBranch(ctx, b.defaultBranchName(ctx), keySegments, value)
}

func (b *Backend) defaultBranchName(ctx context.Context) BranchName {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, ok, _ := b.branchIDToName.Get(ctx, encodeU64(uint64(b.defaultBranch)))
	if !ok {
		return ""
	}
	return BranchName(raw)
}

// InsertByBranch writes to branch's current head version.
func (b *Backend) InsertByBranch(ctx context.Context, branch BranchName, keySegments [][]byte, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return err
	}
	head, ok, err := b.branchHead(ctx, brID)
	if err != nil {
		return err
	}
	if !ok {
		return kvNoHeadVersion(branch)
	}
	return b.writeLocked(ctx, brID, head, keySegments, value)
}

// InsertByBranchVersion writes under an explicit version id already
// recorded on branch. Per the dispatch rule carried over from
// original_source's write_by_branch_version, a key shorter than the
// configured key size is treated as a batch-remove-by-prefix request when
// value is empty (a tombstone write over a partial key removes every
// descendant), and as an error otherwise (a partial key cannot hold a
// leaf value).
func (b *Backend) InsertByBranchVersion(ctx context.Context, branch BranchName, version VersionName, keySegments [][]byte, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return err
	}
	verID, err := b.resolveVersion(ctx, version)
	if err != nil {
		return err
	}
	if !b.bitmaps.Contains(brID, verID) {
		return kvInvalidArg("version %q is not on branch %q", version, branch)
	}
	return b.writeLocked(ctx, brID, verID, keySegments, value)
}

func (b *Backend) writeLocked(ctx context.Context, brID BranchID, version VersionID, keySegments [][]byte, value []byte) error {
	if len(keySegments) < b.keySize {
		if len(value) != 0 {
			return kvInvalidArg("partial key write requires an empty (tombstone) value")
		}
		return b.batchRemoveLocked(ctx, brID, version, keySegments)
	}
	path := append([][]byte{encodeU64(uint64(version))}, keySegments...)
	if err := b.verChangeSet.Insert(ctx, path, value); err != nil {
		return err
	}
	b.index.Record(keySegments, version, value)
	return nil
}

// batchRemoveLocked tombstones every key currently live under keyPrefix as
// of version. Per spec.md §3 invariant 7, removal never deletes historical
// versions: rather than physically wiping the prefix's history from the
// in-memory index, it enumerates the full keys the index currently
// resolves as live under keyPrefix (as seen from brID, asOf version) and
// writes an explicit tombstone for each one at version — both into the
// persisted verChangeSet and the in-memory index — so get_by_version
// against an older version still returns the original value, exactly like
// a leaf-level Remove.
func (b *Backend) batchRemoveLocked(ctx context.Context, brID BranchID, version VersionID, keyPrefix [][]byte) error {
	visible := func(v VersionID) bool {
		ok, _ := b.isVisible(ctx, brID, v)
		return ok
	}
	// Full keys here have at least two segments, so each is flattened with
	// a 0x00 after every segment; terminate the prefix's segments the same
	// way so "acct1" does not also match a first segment "acct10".
	var prefix []byte
	for _, s := range keyPrefix {
		prefix = append(prefix, s...)
		prefix = append(prefix, 0)
	}
	live := b.index.ResolvePrefix(prefix, version, visible)
	for _, segs := range live {
		path := append([][]byte{encodeU64(uint64(version))}, segs...)
		if err := b.verChangeSet.Insert(ctx, path, []byte{}); err != nil {
			return err
		}
		b.index.Record(segs, version, []byte{})
	}
	return nil
}

// Remove tombstones key at the default branch's head version.
func (b *Backend) Remove(ctx context.Context, keySegments [][]byte) error {
	return b.Insert(ctx, keySegments, []byte{})
}

// RemoveByBranch tombstones key at branch's head version.
func (b *Backend) RemoveByBranch(ctx context.Context, branch BranchName, keySegments [][]byte) error {
	return b.InsertByBranch(ctx, branch, keySegments, []byte{})
}

// RemoveByBranchVersion tombstones (or batch-removes, for a partial key)
// under an explicit version already on branch.
func (b *Backend) RemoveByBranchVersion(ctx context.Context, branch BranchName, version VersionName, keySegments [][]byte) error {
	return b.InsertByBranchVersion(ctx, branch, version, keySegments, []byte{})
}
