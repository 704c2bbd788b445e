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
	"encoding/binary"
	"sync"

	"github.com/vsdb-go/vsdb/internal/trash"
	"github.com/vsdb-go/vsdb/kv"
	"github.com/vsdb-go/vsdb/kv/prefixalloc"
	"github.com/vsdb-go/vsdb/multimap"
	"github.com/vsdb-go/vsdb/ordmap"
)

// Reserved prefixes this package carves out of the engine's namespace,
// above kv.BiggestReservedID so they never collide with an allocator-issued
// instance prefix.
const (
	prefixBranchNameToID uint64 = kv.BiggestReservedID + 1
	prefixVersionNameToID uint64 = kv.BiggestReservedID + 2
	prefixBranchIDToName uint64 = kv.BiggestReservedID + 3
	prefixVersionIDToName uint64 = kv.BiggestReservedID + 4
	prefixBrToItsVersRoot uint64 = kv.BiggestReservedID + 5
	prefixVerChangeSetRoot uint64 = kv.BiggestReservedID + 6
	prefixBranchMeta uint64 = kv.BiggestReservedID + 7

	firstDynamicPrefix uint64 = kv.BiggestReservedID + 64
)

// Backend is the id-indexed VMKM core, a direct generalization of
// original_source's MapxRawMkVs. KeySize is the number of nested key
// segments a compound key is split into (multimap.New's depth); 1 means
// plain flat byte keys.
type Backend struct {
	eng     kv.Engine
	keySize int
	hasher  ChangeSetHasher
	trash   *trash.Cleaner
	metrics *kv.Metrics

	mu sync.RWMutex

	branchNameToID *ordmap.OrdRawMap
	versionNameToID *ordmap.OrdRawMap
	branchIDToName *ordmap.OrdRawMap
	versionIDToName *ordmap.OrdRawMap
	branchMeta     *ordmap.OrdRawMap // BranchID -> encoded Branch (base branch/version)

	brToItsVers *multimap.MultiKeyMap // [branchIDBytes, versionIDBytes] -> marker
	verChangeSet *multimap.MultiKeyMap // [versionIDBytes, key...] -> value

	index    *layeredIndex
	bitmaps  *branchBitmapCache

	instanceAlloc *prefixalloc.Allocator
	branchAlloc   *prefixalloc.Allocator
	versionAlloc  *prefixalloc.Allocator

	defaultBranch BranchID
}

// Options configures Open.
type Options struct {
	KeySize int // >= 1; defaults to 1 (flat byte keys) if zero
	Hasher  ChangeSetHasher
	Trash   *trash.Cleaner
	Metrics *kv.Metrics
}

// Open initializes (or reopens) a Backend over eng, creating the reserved
// bookkeeping keys and a default branch ("main") with an initial version if
// this is a fresh store, then rebuilding the in-memory layered index from
// every existing version's change set.
func Open(ctx context.Context, eng kv.Engine, opts Options) (*Backend, error) {
	if opts.KeySize < 1 {
		opts.KeySize = 1
	}
	if opts.Hasher == nil {
		opts.Hasher = DefaultHasher()
	}
	if opts.Metrics == nil {
		opts.Metrics = kv.NewMetrics()
	}
	if opts.Trash == nil {
		opts.Trash = trash.New()
	}

	instanceAlloc, err := prefixalloc.New(eng, kv.KeyNextInstancePfx, firstDynamicPrefix)
	if err != nil {
		return nil, kv.Wrap(err, "vmkm: opening instance prefix allocator")
	}
	branchAlloc, err := prefixalloc.New(eng, kv.KeyNextBranchID, 1)
	if err != nil {
		return nil, kv.Wrap(err, "vmkm: opening branch id allocator")
	}
	versionAlloc, err := prefixalloc.New(eng, kv.KeyNextVersionID, 1)
	if err != nil {
		return nil, kv.Wrap(err, "vmkm: opening version id allocator")
	}

	b := &Backend{
		eng:     eng,
		keySize: opts.KeySize,
		hasher:  opts.Hasher,
		trash:   opts.Trash,
		metrics: opts.Metrics,

		branchNameToID:  ordmap.New(eng, prefixBranchNameToID),
		versionNameToID: ordmap.New(eng, prefixVersionNameToID),
		branchIDToName:  ordmap.New(eng, prefixBranchIDToName),
		versionIDToName: ordmap.New(eng, prefixVersionIDToName),
		branchMeta:      ordmap.New(eng, prefixBranchMeta),

		index:   newLayeredIndex(),
		bitmaps: newBranchBitmapCache(),

		instanceAlloc: instanceAlloc,
		branchAlloc:   branchAlloc,
		versionAlloc:  versionAlloc,
	}
	b.brToItsVers = multimap.New(eng, prefixBrToItsVersRoot, 2, instanceAlloc.Next)
	b.verChangeSet = multimap.New(eng, prefixVerChangeSetRoot, opts.KeySize+1, instanceAlloc.Next)

	defaultID, ok, err := b.branchNameToID.Get(ctx, []byte("main"))
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := b.initDefaultBranch(ctx); err != nil {
			return nil, err
		}
	} else {
		b.defaultBranch = BranchID(decodeU64(defaultID))
	}

	if err := b.rebuildIndex(ctx); err != nil {
		return nil, kv.Wrap(err, "vmkm: rebuilding layered index")
	}
	return b, nil
}

func (b *Backend) initDefaultBranch(ctx context.Context) error {
	brID, err := b.branchAlloc.Next(ctx)
	if err != nil {
		return kv.Wrap(err, "vmkm: allocating default branch id")
	}
	verID, err := b.versionAlloc.Next(ctx)
	if err != nil {
		return kv.Wrap(err, "vmkm: allocating initial version id")
	}
	if err := b.bindBranchName(ctx, BranchID(brID), BranchName("main")); err != nil {
		return err
	}
	if err := b.bindVersionName(ctx, VersionID(verID), VersionName("v0")); err != nil {
		return err
	}
	if err := b.brToItsVers.Insert(ctx, [][]byte{encodeU64(brID), encodeU64(verID)}, []byte{1}); err != nil {
		return kv.Wrap(err, "vmkm: recording initial version membership")
	}
	b.bitmaps.Add(BranchID(brID), VersionID(verID))
	b.defaultBranch = BranchID(brID)
	return nil
}

func encodeU64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func decodeU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (b *Backend) bindBranchName(ctx context.Context, id BranchID, name BranchName) error {
	if err := b.branchNameToID.Insert(ctx, []byte(name), encodeU64(uint64(id))); err != nil {
		return kv.Wrap(err, "vmkm: binding branch name")
	}
	if err := b.branchIDToName.Insert(ctx, encodeU64(uint64(id)), []byte(name)); err != nil {
		return kv.Wrap(err, "vmkm: binding branch id")
	}
	return nil
}

func (b *Backend) bindVersionName(ctx context.Context, id VersionID, name VersionName) error {
	if err := b.versionNameToID.Insert(ctx, []byte(name), encodeU64(uint64(id))); err != nil {
		return kv.Wrap(err, "vmkm: binding version name")
	}
	if err := b.versionIDToName.Insert(ctx, encodeU64(uint64(id)), []byte(name)); err != nil {
		return kv.Wrap(err, "vmkm: binding version id")
	}
	return nil
}

// resolveBranch maps a branch name to its id.
func (b *Backend) resolveBranch(ctx context.Context, name BranchName) (BranchID, error) {
	raw, ok, err := b.branchNameToID.Get(ctx, []byte(name))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, kv.Newf(kv.KindNotFound, "vmkm: branch %q not found", name)
	}
	return BranchID(decodeU64(raw)), nil
}

// resolveVersion maps a version name to its id.
func (b *Backend) resolveVersion(ctx context.Context, name VersionName) (VersionID, error) {
	raw, ok, err := b.versionNameToID.Get(ctx, []byte(name))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, kv.Newf(kv.KindNotFound, "vmkm: version %q not found", name)
	}
	return VersionID(decodeU64(raw)), nil
}

// branchHead returns the newest version id recorded on branch, or ok=false
// if the branch has no versions of its own (spec's NoHeadVersion case).
func (b *Backend) branchHead(ctx context.Context, branch BranchID) (VersionID, bool, error) {
	var head VersionID
	found := false
	err := b.brToItsVers.IterOp(ctx, [][]byte{encodeU64(uint64(branch))}, func(keys [][]byte, _ []byte) error {
		v := VersionID(decodeU64(keys[1]))
		if !found || v > head {
			head = v
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return head, found, nil
}

// rebuildIndex walks every recorded version's change set and folds it into
// the in-memory layeredIndex, matching original_source's eager in-memory
// layered_kv population on load, then refills the branch bitmap cache from
// brToItsVers.
func (b *Backend) rebuildIndex(ctx context.Context) error {
	if err := b.verChangeSet.IterOp(ctx, nil, func(keys [][]byte, value []byte) error {
		verID := VersionID(decodeU64(keys[0]))
		b.index.Record(keys[1:], verID, value)
		return nil
	}); err != nil {
		return err
	}
	return b.brToItsVers.IterOp(ctx, nil, func(keys [][]byte, _ []byte) error {
		b.bitmaps.Add(BranchID(decodeU64(keys[0])), VersionID(decodeU64(keys[1])))
		return nil
	})
}

func flattenKeySegments(segs [][]byte) []byte {
	if len(segs) == 1 {
		return segs[0]
	}
	var total int
	for _, s := range segs {
		total += len(s) + 1
	}
	out := make([]byte, 0, total)
	for _, s := range segs {
		out = append(out, s...)
		out = append(out, 0)
	}
	return out
}
