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

// BranchCreateOpts controls BranchCreateByBaseBranchVersion.
type BranchCreateOpts struct {
	// BaseVersion pins the fork point to a specific version rather than the
	// base branch's current head. It is used only when HasBaseVersion is
	// set; otherwise the fork point is the base branch's head.
	BaseVersion    VersionName
	HasBaseVersion bool
	// WithoutNewVersion skips allocating a first version on the new branch;
	// the branch starts with no head version until a caller creates one.
	WithoutNewVersion bool
	// NewVersion names the first version allocated on the new branch; left
	// empty, that version has no name. Ignored if WithoutNewVersion is set.
	NewVersion VersionName
	// Force allows creating a branch whose name already exists, replacing
	// the old binding (the old branch id becomes unreachable by name but
	// is not deleted — same caller-beware contract as BranchSwap).
	Force bool
}

// BranchCreateByBaseBranchVersion forks name off base (at BaseVersion, or
// base's current head if unset), funnel point for every branch-creation
// variant original_source exposes (plain/without-new-version/force), all of
// which dispatch into this one routine just as backend.rs's own
// do_branch_create_by_base_branch_version does.
func (b *Backend) BranchCreateByBaseBranchVersion(ctx context.Context, name BranchName, base BranchName, opts BranchCreateOpts) (BranchID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok, err := b.branchNameToID.Get(ctx, []byte(name)); err != nil {
		return 0, err
	} else if ok && !opts.Force {
		return 0, kvAlreadyExists("vmkm: branch %q already exists", name)
	}
	if opts.NewVersion != "" && !opts.WithoutNewVersion {
		if _, ok, err := b.versionNameToID.Get(ctx, []byte(opts.NewVersion)); err != nil {
			return 0, err
		} else if ok {
			return 0, kvAlreadyExists("vmkm: version %q already exists", opts.NewVersion)
		}
	}

	baseID, err := b.resolveBranch(ctx, base)
	if err != nil {
		return 0, err
	}

	var baseVerID VersionID
	hasBaseVer := false
	if opts.HasBaseVersion {
		v, err := b.resolveVersion(ctx, opts.BaseVersion)
		if err != nil {
			return 0, err
		}
		baseVerID, hasBaseVer = v, true
	} else {
		v, ok, err := b.branchHead(ctx, baseID)
		if err != nil {
			return 0, err
		}
		if ok {
			baseVerID, hasBaseVer = v, true
		}
	}

	newID, err := b.branchAlloc.Next(ctx)
	if err != nil {
		return 0, kv.Wrap(err, "vmkm: allocating branch id")
	}
	if err := b.bindBranchName(ctx, BranchID(newID), name); err != nil {
		return 0, err
	}
	if err := b.branchMeta.Insert(ctx, encodeU64(newID), encodeBranchMeta(branchMetaRecord{
		BaseBranch:     baseID,
		BaseVersion:    baseVerID,
		HasBaseVersion: hasBaseVer,
	})); err != nil {
		return 0, kv.Wrap(err, "vmkm: recording branch fork point")
	}

	if !opts.WithoutNewVersion {
		verID, err := b.versionAlloc.Next(ctx)
		if err != nil {
			return 0, kv.Wrap(err, "vmkm: allocating initial branch version")
		}
		if opts.NewVersion != "" {
			if err := b.bindVersionName(ctx, VersionID(verID), opts.NewVersion); err != nil {
				return 0, err
			}
		}
		if err := b.brToItsVers.Insert(ctx, [][]byte{encodeU64(newID), encodeU64(verID)}, []byte{1}); err != nil {
			return 0, kv.Wrap(err, "vmkm: recording initial branch version")
		}
		b.bitmaps.Add(BranchID(newID), VersionID(verID))
	}
	return BranchID(newID), nil
}

// BranchExists reports whether name is bound to a branch id.
func (b *Backend) BranchExists(ctx context.Context, name BranchName) (bool, error) {
	_, ok, err := b.branchNameToID.Get(ctx, []byte(name))
	return ok, err
}

// BranchHasVersions reports whether branch has at least one version of its
// own (distinct from an inherited ancestor range).
func (b *Backend) BranchHasVersions(ctx context.Context, branch BranchName) (bool, error) {
	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return false, err
	}
	_, ok, err := b.branchHead(ctx, brID)
	return ok, err
}

// BranchRemove deletes branch's name binding and its own version
// memberships (it does not purge shared version change sets; use
// VersionCleanUpGlobally for that).
func (b *Backend) BranchRemove(ctx context.Context, branch BranchName) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return err
	}
	if err := b.brToItsVers.Remove(ctx, [][]byte{encodeU64(uint64(brID))}); err != nil {
		return kv.Wrap(err, "vmkm: removing branch version memberships")
	}
	b.bitmaps.Drop(brID)
	if err := b.branchMeta.Remove(ctx, encodeU64(uint64(brID))); err != nil {
		return kv.Wrap(err, "vmkm: removing branch metadata")
	}
	if err := b.branchNameToID.Remove(ctx, []byte(branch)); err != nil {
		return kv.Wrap(err, "vmkm: unbinding branch name")
	}
	return b.branchIDToName.Remove(ctx, encodeU64(uint64(brID)))
}

// BranchKeepOnly removes every branch not in names.
func (b *Backend) BranchKeepOnly(ctx context.Context, names []BranchName) error {
	keep := make(map[BranchName]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	var toRemove []BranchName
	if err := b.branchNameToID.Range(ctx, nil, nil, kv.Forward, func(k, _ []byte) error {
		name := BranchName(k)
		if !keep[name] {
			toRemove = append(toRemove, name)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, n := range toRemove {
		if err := b.BranchRemove(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// BranchPopVersion removes branch's head version, the branch-facing name
// original_source exposes for VersionPopByBranch.
func (b *Backend) BranchPopVersion(ctx context.Context, branch BranchName) error {
	return b.VersionPopByBranch(ctx, branch)
}

// BranchTruncate removes every version on branch, leaving it with no head
// (NoHeadVersion until a new version is created).
func (b *Backend) BranchTruncate(ctx context.Context, branch BranchName) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return err
	}
	if err := b.brToItsVers.Remove(ctx, [][]byte{encodeU64(uint64(brID))}); err != nil {
		return kv.Wrap(err, "vmkm: truncating branch")
	}
	b.bitmaps.Drop(brID)
	return nil
}

// BranchTruncateTo removes every version on branch newer than keepVersion.
func (b *Backend) BranchTruncateTo(ctx context.Context, branch BranchName, keepVersion VersionName) error {
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
	var toRemove []VersionID
	if err := b.brToItsVers.IterOp(ctx, [][]byte{encodeU64(uint64(brID))}, func(keys [][]byte, _ []byte) error {
		v := VersionID(decodeU64(keys[1]))
		if v > keepID {
			toRemove = append(toRemove, v)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, v := range toRemove {
		if err := b.brToItsVers.Remove(ctx, [][]byte{encodeU64(uint64(brID)), encodeU64(uint64(v))}); err != nil {
			return err
		}
		b.bitmaps.Remove(brID, v)
	}
	return nil
}

// branchMergeTo is the shared funnel behind BranchMergeTo/BranchMergeToForce.
// It finds the fork point of source (its BaseVersion on target, or version
// 0 if source was not itself forked from target, so a non-force merge is
// then refused whenever target has any version), then replays every
// version source has recorded since that point onto target's head, in
// version order. force skips the "target has not advanced since the fork"
// safety check backend.rs's branch_merge_to performs.
func (b *Backend) branchMergeTo(ctx context.Context, source, target BranchName, force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	srcID, err := b.resolveBranch(ctx, source)
	if err != nil {
		return err
	}
	tgtID, err := b.resolveBranch(ctx, target)
	if err != nil {
		return err
	}

	raw, ok, err := b.branchMeta.Get(ctx, encodeU64(uint64(srcID)))
	if err != nil {
		return err
	}
	var forkPoint VersionID
	if ok {
		meta := decodeBranchMeta(raw)
		if meta.BaseBranch == tgtID && meta.HasBaseVersion {
			forkPoint = meta.BaseVersion
		}
	}

	if !force {
		tgtHead, ok, err := b.branchHead(ctx, tgtID)
		if err != nil {
			return err
		}
		if ok && tgtHead > forkPoint {
			return kvMergeUnsafe("vmkm: target branch %q advanced past the fork point; use force merge", target)
		}
	}

	var srcVersions []VersionID
	if err := b.brToItsVers.IterOp(ctx, [][]byte{encodeU64(uint64(srcID))}, func(keys [][]byte, _ []byte) error {
		v := VersionID(decodeU64(keys[1]))
		if v > forkPoint {
			srcVersions = append(srcVersions, v)
		}
		return nil
	}); err != nil {
		return err
	}

	tgtHeadForWrite, ok, err := b.branchHead(ctx, tgtID)
	if err != nil {
		return err
	}
	if !ok {
		newVer, err := b.versionAlloc.Next(ctx)
		if err != nil {
			return kv.Wrap(err, "vmkm: allocating merge target version")
		}
		if err := b.brToItsVers.Insert(ctx, [][]byte{encodeU64(uint64(tgtID)), encodeU64(newVer)}, []byte{1}); err != nil {
			return err
		}
		b.bitmaps.Add(tgtID, VersionID(newVer))
		tgtHeadForWrite = VersionID(newVer)
	}

	for _, v := range srcVersions {
		if err := b.verChangeSet.IterOp(ctx, [][]byte{encodeU64(uint64(v))}, func(keys [][]byte, value []byte) error {
			segs := keys[1:]
			path := append([][]byte{encodeU64(uint64(tgtHeadForWrite))}, segs...)
			if err := b.verChangeSet.Insert(ctx, path, value); err != nil {
				return err
			}
			b.index.Record(segs, tgtHeadForWrite, value)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// BranchMergeTo merges source into target, refusing if target has advanced
// since source's fork point.
func (b *Backend) BranchMergeTo(ctx context.Context, source, target BranchName) error {
	return b.branchMergeTo(ctx, source, target, false)
}

// BranchMergeToForce merges source into target unconditionally.
func (b *Backend) BranchMergeToForce(ctx context.Context, source, target BranchName) error {
	return b.branchMergeTo(ctx, source, target, true)
}

// BranchSetDefault changes the default branch.
func (b *Backend) BranchSetDefault(ctx context.Context, branch BranchName) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	brID, err := b.resolveBranch(ctx, branch)
	if err != nil {
		return err
	}
	b.defaultBranch = brID
	return nil
}

// BranchGetDefault returns the current default branch id.
func (b *Backend) BranchGetDefault() BranchID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.defaultBranch
}

// BranchGetDefaultName returns the current default branch's name.
func (b *Backend) BranchGetDefaultName(ctx context.Context) (BranchName, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, ok, err := b.branchIDToName.Get(ctx, encodeU64(uint64(b.defaultBranch)))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", kvNotFound("vmkm: default branch name not found")
	}
	return BranchName(raw), nil
}

// BranchIsEmpty reports whether the store has no branches at all.
func (b *Backend) BranchIsEmpty(ctx context.Context) (bool, error) {
	empty, err := b.branchNameToID.IsEmpty(ctx)
	return empty, err
}

// BranchList returns every branch name currently bound, in lexicographic
// order.
func (b *Backend) BranchList(ctx context.Context) ([]BranchName, error) {
	var names []BranchName
	err := b.branchNameToID.Range(ctx, nil, nil, kv.Forward, func(k, _ []byte) error {
		names = append(names, BranchName(k))
		return nil
	})
	return names, err
}

// BranchSwap swaps the name bindings of two branches. Unsafe: callers must
// ensure no concurrent reader/writer is mid-operation against either name,
// the same contract original_source's branch_swap documents as unsafe.
func (b *Backend) BranchSwap(ctx context.Context, a, bName BranchName) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	aID, err := b.resolveBranch(ctx, a)
	if err != nil {
		return err
	}
	bID, err := b.resolveBranch(ctx, bName)
	if err != nil {
		return err
	}
	if err := b.bindBranchName(ctx, aID, bName); err != nil {
		return err
	}
	if err := b.bindBranchName(ctx, bID, a); err != nil {
		return err
	}
	if b.defaultBranch == aID {
		b.defaultBranch = bID
	} else if b.defaultBranch == bID {
		b.defaultBranch = aID
	}
	return nil
}

// commonVersionPrefix returns the longest run of version ids every list in
// lists agrees on at the same position, starting from index 0 — the
// "shared tail" original_source's do_prune computes across all branches
// before deciding what is safe to fold.
func commonVersionPrefix(lists [][]VersionID) []VersionID {
	if len(lists) == 0 {
		return nil
	}
	shortest := len(lists[0])
	for _, l := range lists[1:] {
		if len(l) < shortest {
			shortest = len(l)
		}
	}
	var shared []VersionID
	for i := 0; i < shortest; i++ {
		v := lists[0][i]
		for _, l := range lists[1:] {
			if l[i] != v {
				return shared
			}
		}
		shared = append(shared, v)
	}
	return shared
}

// Prune runs a global clean-up, then folds the oldest part of the version
// history every branch shares into one rewrite version, the Go equivalent
// of original_source's do_prune: compute the shared tail across all
// branches, keep its newest `keep` versions distinct, and move every
// (key->value) entry from the older, shared merge-target versions into the
// rewrite version (last-write-wins by version order, since merge targets
// are folded oldest-first). Keys whose folded value lands as a tombstone at
// the rewrite version are dropped entirely, garbage-collecting keys that
// were created and deleted inside the pruned window.
func (b *Backend) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		return kvInvalidArg("vmkm: prune keep count must be >= 1")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.versionCleanUpGloballyLocked(ctx); err != nil {
		return err
	}

	var branches []BranchID
	if err := b.branchIDToName.Range(ctx, nil, nil, kv.Forward, func(k, _ []byte) error {
		branches = append(branches, BranchID(decodeU64(k)))
		return nil
	}); err != nil {
		return err
	}
	if len(branches) == 0 {
		return nil
	}

	perBranch := make([][]VersionID, len(branches))
	for i, brID := range branches {
		var versions []VersionID
		if err := b.brToItsVers.IterOp(ctx, [][]byte{encodeU64(uint64(brID))}, func(keys [][]byte, _ []byte) error {
			versions = append(versions, VersionID(decodeU64(keys[1])))
			return nil
		}); err != nil {
			return err
		}
		perBranch[i] = versions
	}

	sharedTail := commonVersionPrefix(perBranch)
	if len(sharedTail) <= keep+1 {
		return nil
	}

	rewriteIdx := len(sharedTail) - keep
	rewriteVersion := sharedTail[rewriteIdx]
	mergeTargets := sharedTail[:rewriteIdx]

	// native holds every key rewriteVersion already had its own direct write
	// for, before any folding starts. rewriteVersion's id is always greater
	// than every merge-target's, so a native entry is the correct as-of-head
	// value and must win over a stale value folded in from an older
	// merge-target — see the Prune preserves visible state law.
	native := make(map[string]bool)
	if err := b.verChangeSet.IterOp(ctx, [][]byte{encodeU64(uint64(rewriteVersion))}, func(keys [][]byte, _ []byte) error {
		native[string(flattenKeySegments(keys[1:]))] = true
		return nil
	}); err != nil {
		return err
	}

	touchedSegs := make(map[string][][]byte)
	for _, v := range mergeTargets {
		if err := b.verChangeSet.IterOp(ctx, [][]byte{encodeU64(uint64(v))}, func(keys [][]byte, value []byte) error {
			segs := keys[1:]
			flat := flattenKeySegments(segs)
			if native[string(flat)] {
				return nil
			}
			path := append([][]byte{encodeU64(uint64(rewriteVersion))}, segs...)
			if err := b.verChangeSet.Insert(ctx, path, value); err != nil {
				return err
			}
			b.index.Record(segs, rewriteVersion, value)
			segsCopy := make([][]byte, len(segs))
			for i, s := range segs {
				segsCopy[i] = append([]byte(nil), s...)
			}
			touchedSegs[string(flat)] = segsCopy
			return nil
		}); err != nil {
			return err
		}
		for _, brID := range branches {
			if err := b.brToItsVers.Remove(ctx, [][]byte{encodeU64(uint64(brID)), encodeU64(uint64(v))}); err != nil {
				return err
			}
			b.bitmaps.Remove(brID, v)
		}
		if err := b.purgeVersion(ctx, v); err != nil {
			return err
		}
	}

	for flat, segs := range touchedSegs {
		path := append([][]byte{encodeU64(uint64(rewriteVersion))}, segs...)
		val, ok, err := b.verChangeSet.Get(ctx, path)
		if err != nil {
			return err
		}
		if ok && len(val) == 0 {
			if err := b.verChangeSet.Remove(ctx, path); err != nil {
				return err
			}
			b.index.RemoveKeyVersion([]byte(flat), rewriteVersion)
		}
	}
	return nil
}
