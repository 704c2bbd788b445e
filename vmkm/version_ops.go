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
	"context"

	"github.com/vsdb-go/vsdb/kv"
)

// VersionCreateByBranch allocates a new version, binds it to name, and
// records it as the newest version on branch.
func (b *Backend) VersionCreateByBranch(ctx context.Context, branch BranchName, name VersionName) (VersionID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok, err := b.versionNameToID.Get(ctx, []byte(name)); err != nil {
		return 0, err
	} else if ok {
		return 0, kvAlreadyExists("vmkm: version %q already exists", name)
	}
	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return 0, err
	}
	verID, err := b.versionAlloc.Next(ctx)
	if err != nil {
		return 0, kv.Wrap(err, "allocating version id")
	}
	if err := b.bindVersionName(ctx, VersionID(verID), name); err != nil {
		return 0, err
	}
	if err := b.brToItsVers.Insert(ctx, [][]byte{encodeU64(uint64(brID)), encodeU64(verID)}, []byte{1}); err != nil {
		return 0, kv.Wrap(err, "recording version membership")
	}
	b.bitmaps.Add(brID, VersionID(verID))
	return VersionID(verID), nil
}

// VersionExistsGlobally reports whether name is bound to any version id.
func (b *Backend) VersionExistsGlobally(ctx context.Context, name VersionName) (bool, error) {
	_, ok, err := b.versionNameToID.Get(ctx, []byte(name))
	return ok, err
}

// VersionExistsOnBranch reports whether name is bound to a version visible
// on branch.
func (b *Backend) VersionExistsOnBranch(ctx context.Context, branch BranchName, name VersionName) (bool, error) {
	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return false, err
	}
	verID, err := b.resolveVersion(ctx, name)
	if err != nil {
		return false, nil
	}
	return b.isVisible(ctx, brID, verID)
}

// VersionPopByBranch removes the newest version from branch. If no other
// branch still references that version, its change-set entries are purged
// from the in-memory index and the engine's change-set store.
func (b *Backend) VersionPopByBranch(ctx context.Context, branch BranchName) error {
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
	if err := b.brToItsVers.Remove(ctx, [][]byte{encodeU64(uint64(brID)), encodeU64(uint64(head))}); err != nil {
		return kv.Wrap(err, "removing version membership")
	}
	b.bitmaps.Remove(brID, head)

	stillReferenced, err := b.versionReferencedByAnyBranch(ctx, head)
	if err != nil {
		return err
	}
	if !stillReferenced {
		if err := b.purgeVersion(ctx, head); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) versionReferencedByAnyBranch(ctx context.Context, version VersionID) (bool, error) {
	found := false
	err := b.brToItsVers.IterOp(ctx, nil, func(keys [][]byte, _ []byte) error {
		if VersionID(decodeU64(keys[1])) == version {
			found = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (b *Backend) purgeVersion(ctx context.Context, version VersionID) error {
	if err := b.verChangeSet.Remove(ctx, [][]byte{encodeU64(uint64(version))}); err != nil {
		return kv.Wrap(err, "purging version change set")
	}
	b.index.RemoveVersion(version)

	name, ok, err := b.versionIDToName.Get(ctx, encodeU64(uint64(version)))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := b.versionIDToName.Remove(ctx, encodeU64(uint64(version))); err != nil {
		return kv.Wrap(err, "unbinding version id")
	}
	return b.versionNameToID.Remove(ctx, name)
}

// VersionRebaseByBranch is unsafe: it folds every version on branch newer
// than keepVersion into keepVersion's own change set (last-write-wins by
// version order), then drops the folded versions. Callers must ensure no
// concurrent reader is pinned to a folded version.
func (b *Backend) VersionRebaseByBranch(ctx context.Context, branch BranchName, keepVersion VersionName) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return err
	}
	keepID, err := b.resolveVersion(ctx, keepVersion)
	if err != nil {
		return err
	}

	var toFold []VersionID
	err = b.brToItsVers.IterOp(ctx, [][]byte{encodeU64(uint64(brID))}, func(keys [][]byte, _ []byte) error {
		v := VersionID(decodeU64(keys[1]))
		if v > keepID {
			toFold = append(toFold, v)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, v := range toFold {
		if err := b.verChangeSet.IterOp(ctx, [][]byte{encodeU64(uint64(v))}, func(keys [][]byte, value []byte) error {
			segs := keys[1:]
			path := append([][]byte{encodeU64(uint64(keepID))}, segs...)
			if err := b.verChangeSet.Insert(ctx, path, value); err != nil {
				return err
			}
			b.index.Record(segs, keepID, value)
			return nil
		}); err != nil {
			return err
		}
		if err := b.brToItsVers.Remove(ctx, [][]byte{encodeU64(uint64(brID)), encodeU64(uint64(v))}); err != nil {
			return err
		}
		b.bitmaps.Remove(brID, v)
		if err := b.purgeVersion(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// VersionCleanUpGlobally drops every version id not referenced by any
// branch's version set, reclaiming its change-set storage.
func (b *Backend) VersionCleanUpGlobally(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.versionCleanUpGloballyLocked(ctx)
}

func (b *Backend) versionCleanUpGloballyLocked(ctx context.Context) error {
	referenced := make(map[VersionID]bool)
	if err := b.brToItsVers.IterOp(ctx, nil, func(keys [][]byte, _ []byte) error {
		referenced[VersionID(decodeU64(keys[1]))] = true
		return nil
	}); err != nil {
		return err
	}

	var all []VersionID
	if err := b.versionIDToName.Range(ctx, nil, nil, kv.Forward, func(k, _ []byte) error {
		all = append(all, VersionID(decodeU64(k)))
		return nil
	}); err != nil {
		return err
	}

	for _, v := range all {
		if !referenced[v] {
			if err := b.purgeVersion(ctx, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// errStopIteration is an internal sentinel an IterOp callback returns to
// abort a walk early without signaling a real failure.
var errStopIteration = kv.New(kv.KindLogic, "vmkm: iteration stopped early")

// VersionList returns every version name on the default branch's own
// version set, oldest first.
func (b *Backend) VersionList(ctx context.Context) ([]VersionName, error) {
	return b.VersionListByBranch(ctx, b.defaultBranchName(ctx))
}

// VersionListByBranch returns every version name recorded on branch's own
// version set, in version-id (chronological) order.
func (b *Backend) VersionListByBranch(ctx context.Context, branch BranchName) ([]VersionName, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return nil, err
	}
	var ids []VersionID
	if err := b.brToItsVers.IterOp(ctx, [][]byte{encodeU64(uint64(brID))}, func(keys [][]byte, _ []byte) error {
		ids = append(ids, VersionID(decodeU64(keys[1])))
		return nil
	}); err != nil {
		return nil, err
	}
	return b.namesForVersions(ctx, ids)
}

// VersionListGlobally returns every version name currently bound, whether
// or not any branch still references it, in version-id order. Names of
// purged versions (pop, rebase, prune, clean-up, revert) are not listed.
func (b *Backend) VersionListGlobally(ctx context.Context) ([]VersionName, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var names []VersionName
	err := b.versionIDToName.Range(ctx, nil, nil, kv.Forward, func(_, v []byte) error {
		names = append(names, VersionName(v))
		return nil
	})
	return names, err
}

func (b *Backend) namesForVersions(ctx context.Context, ids []VersionID) ([]VersionName, error) {
	names := make([]VersionName, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := b.versionIDToName.Get(ctx, encodeU64(uint64(id)))
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, VersionName(raw))
		}
	}
	return names, nil
}

// VersionHasChangeSet reports whether version recorded any (key -> value)
// mutation at all; the initial version on a freshly created branch has
// none until the first write.
func (b *Backend) VersionHasChangeSet(ctx context.Context, version VersionName) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	verID, err := b.resolveVersion(ctx, version)
	if err != nil {
		return false, err
	}
	has := false
	err = b.verChangeSet.IterOp(ctx, [][]byte{encodeU64(uint64(verID))}, func(_ [][]byte, _ []byte) error {
		has = true
		return errStopIteration
	})
	if err != nil && err != errStopIteration {
		return false, err
	}
	return has, nil
}

// VersionRevertGlobally is unsafe: it removes version's effects from every
// branch that references it and purges its change set entirely, as if the
// version had never been created. Unlike VersionCleanUpGlobally this acts
// on one named version regardless of whether other, newer versions still
// depend on the same key history.
func (b *Backend) VersionRevertGlobally(ctx context.Context, version VersionName) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	verID, err := b.resolveVersion(ctx, version)
	if err != nil {
		return err
	}
	var branches []BranchID
	if err := b.brToItsVers.IterOp(ctx, nil, func(keys [][]byte, _ []byte) error {
		if VersionID(decodeU64(keys[1])) == verID {
			branches = append(branches, BranchID(decodeU64(keys[0])))
		}
		return nil
	}); err != nil {
		return err
	}
	for _, brID := range branches {
		if err := b.brToItsVers.Remove(ctx, [][]byte{encodeU64(uint64(brID)), encodeU64(uint64(verID))}); err != nil {
			return err
		}
		b.bitmaps.Remove(brID, verID)
	}
	return b.purgeVersion(ctx, verID)
}
