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
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"pgregory.net/rapid"

	"github.com/vsdb-go/vsdb/kv/boltengine"
	"github.com/vsdb-go/vsdb/vmkm"
)

// TestWriteThenReadOwnWrite checks the "read your own write" law: after
// Insert(k, v) on a branch's current head, Get for that key on that same
// branch returns v, for any generated key/value pair.
func TestWriteThenReadOwnWrite(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		dir := t.TempDir()
		eng, err := boltengine.Open(filepath.Join(dir, "store.db"), nil)
		if err != nil {
			rt.Fatal(err)
		}
		defer eng.Close()
		b, err := vmkm.Open(ctx, eng, vmkm.Options{})
		if err != nil {
			rt.Fatal(err)
		}

		key := rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(rt, "key")
		val := rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(rt, "val")

		if err := b.Insert(ctx, [][]byte{key}, val); err != nil {
			rt.Fatal(err)
		}
		got, ok, err := b.Get(ctx, [][]byte{key})
		if err != nil {
			rt.Fatal(err)
		}
		if !ok {
			rt.Fatal("expected key to be present after insert")
		}
		if string(got) != string(val) {
			rt.Fatalf("got %q, want %q", got, val)
		}
	})
}

// TestTombstoneHidesKey checks that removing a key makes it invisible on
// the branch it was removed from, for any generated key/value pair.
func TestTombstoneHidesKey(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		dir := t.TempDir()
		eng, err := boltengine.Open(filepath.Join(dir, "store.db"), nil)
		if err != nil {
			rt.Fatal(err)
		}
		defer eng.Close()
		b, err := vmkm.Open(ctx, eng, vmkm.Options{})
		if err != nil {
			rt.Fatal(err)
		}

		key := rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(rt, "key")
		val := rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(rt, "val")

		if err := b.Insert(ctx, [][]byte{key}, val); err != nil {
			rt.Fatal(err)
		}
		if err := b.Remove(ctx, [][]byte{key}); err != nil {
			rt.Fatal(err)
		}
		_, ok, err := b.Get(ctx, [][]byte{key})
		if err != nil {
			rt.Fatal(err)
		}
		if ok {
			rt.Fatal("expected key to be absent after remove")
		}
	})
}

// commonPrefixStrings mirrors branch_ops.go's commonVersionPrefix shared-
// tail computation, over the oracle's string version names instead of
// VersionIDs.
func commonPrefixStrings(lists [][]string) []string {
	if len(lists) == 0 {
		return nil
	}
	shortest := len(lists[0])
	for _, l := range lists[1:] {
		if len(l) < shortest {
			shortest = len(l)
		}
	}
	var shared []string
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

// TestSequencePropertiesHoldAfterEveryStep generates random sequences of
// Insert/Remove/VersionCreate/BranchCreate/Rebase/Prune calls against a
// live Backend and checks, after every step, that every key an independent
// oracle model holds live on a branch reads back through GetByBranch with
// the oracle's value, and that each branch's version list still matches
// the oracle's. Keys the oracle holds deleted or never wrote are not
// checked for absence. This exercises read determinism and the
// "prune preserves visible state" and "rebase preserves head state" laws
// from spec.md §8 for live keys along arbitrary paths through the
// branch/version algebra, not just the single fixed-shape operations
// TestWriteThenReadOwnWrite and TestTombstoneHidesKey cover.
func TestSequencePropertiesHoldAfterEveryStep(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		dir := t.TempDir()
		eng, err := boltengine.Open(filepath.Join(dir, "store.db"), nil)
		if err != nil {
			rt.Fatal(err)
		}
		defer eng.Close()
		b, err := vmkm.Open(ctx, eng, vmkm.Options{KeySize: 1})
		if err != nil {
			rt.Fatal(err)
		}
		m := vmkm.NewVsMgmt(b)

		// branchVersions/changeset is the oracle: each branch's ordered,
		// ancestor-inclusive version-name list (what a read needs to
		// resolve visible key state, and what a fork copies its prefix
		// from), and each version name's own (key -> value) writes,
		// mirroring backend.rs's br→vers / ver→chgset directly but over
		// plain Go maps instead of the real on-disk structures.
		//
		// ownVersions tracks, separately, only the version names a branch
		// directly owns in its own version set — the same distinction
		// brToItsVers draws in the real Backend: a forked branch never
		// copies its base's pre-fork history into its own set, it only
		// ever records versions created directly on it afterward.
		// VersionListByBranch, Prune, and VersionRebaseByBranch all walk
		// brToItsVers, so the oracle mirrors that split rather than using
		// the ancestor-inclusive view liveKeys needs for reads.
		branchVersions := map[string][]string{"main": {"v0"}}
		ownVersions := map[string][]string{"main": {"v0"}}
		changeset := map[string]map[string][]byte{"v0": {}}
		verCounter := 0
		nextVersionName := func() string {
			verCounter++
			return fmt.Sprintf("ver%d", verCounter)
		}

		branchNames := func() []string {
			names := make([]string, 0, len(branchVersions))
			for n := range branchVersions {
				names = append(names, n)
			}
			sort.Strings(names)
			return names
		}

		referencedElsewhere := func(version, exclude string) bool {
			for br, list := range branchVersions {
				if br == exclude {
					continue
				}
				for _, v := range list {
					if v == version {
						return true
					}
				}
			}
			return false
		}

		liveKeys := func(branch, asOf string) map[string][]byte {
			list := branchVersions[branch]
			idx := -1
			for i, v := range list {
				if v == asOf {
					idx = i
					break
				}
			}
			live := make(map[string][]byte)
			seen := make(map[string]bool)
			for i := idx; i >= 0; i-- {
				for k, v := range changeset[list[i]] {
					if seen[k] {
						continue
					}
					seen[k] = true
					if len(v) > 0 {
						live[k] = v
					}
				}
			}
			return live
		}

		checkBranch := func(branch string) {
			list := branchVersions[branch]
			head := list[len(list)-1]
			for k, want := range liveKeys(branch, head) {
				got, ok, err := b.GetByBranch(ctx, vmkm.BranchName(branch), [][]byte{[]byte(k)})
				if err != nil {
					rt.Fatalf("GetByBranch(%q,%q): %v", branch, k, err)
				}
				if !ok {
					rt.Fatalf("branch %q key %q: expected %x, got absent", branch, k, want)
				}
				if string(got) != string(want) {
					rt.Fatalf("branch %q key %q: got %x, want %x", branch, k, got, want)
				}
			}
			own := ownVersions[branch]
			names, err := m.VersionListByBranch(ctx, vmkm.BranchName(branch))
			if err != nil {
				rt.Fatalf("VersionListByBranch(%q): %v", branch, err)
			}
			if len(names) != len(own) {
				rt.Fatalf("branch %q: version list length got %d, want %d", branch, len(names), len(own))
			}
			for i, n := range names {
				if string(n) != own[i] {
					rt.Fatalf("branch %q: version list[%d] got %q, want %q", branch, i, n, own[i])
				}
			}
		}

		checkAll := func() {
			for _, br := range branchNames() {
				checkBranch(br)
			}
		}
		checkAll()

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for s := 0; s < steps; s++ {
			branch := rapid.SampledFrom(branchNames()).Draw(rt, "branch")
			head := branchVersions[branch][len(branchVersions[branch])-1]

			action := rapid.SampledFrom([]string{"insert", "remove", "versioncreate", "branchcreate", "rebase", "prune"}).Draw(rt, "action")
			switch action {
			case "insert":
				k := rapid.SliceOfN(rapid.Byte(), 1, 3).Draw(rt, "key")
				v := rapid.SliceOfN(rapid.Byte(), 1, 3).Draw(rt, "val")
				if err := b.InsertByBranch(ctx, vmkm.BranchName(branch), [][]byte{k}, v); err != nil {
					rt.Fatalf("InsertByBranch: %v", err)
				}
				changeset[head][string(k)] = append([]byte(nil), v...)

			case "remove":
				k := rapid.SliceOfN(rapid.Byte(), 1, 3).Draw(rt, "key")
				if err := b.RemoveByBranch(ctx, vmkm.BranchName(branch), [][]byte{k}); err != nil {
					rt.Fatalf("RemoveByBranch: %v", err)
				}
				changeset[head][string(k)] = []byte{}

			case "versioncreate":
				name := nextVersionName()
				if _, err := m.VersionCreateByBranch(ctx, vmkm.BranchName(branch), vmkm.VersionName(name)); err != nil {
					rt.Fatalf("VersionCreateByBranch: %v", err)
				}
				branchVersions[branch] = append(branchVersions[branch], name)
				ownVersions[branch] = append(ownVersions[branch], name)
				changeset[name] = map[string][]byte{}

			case "branchcreate":
				newName := fmt.Sprintf("branch%d", len(branchVersions)+1)
				if _, exists := branchVersions[newName]; exists {
					break
				}
				list := branchVersions[branch]
				baseIdx := rapid.IntRange(0, len(list)-1).Draw(rt, "baseIdx")
				baseVer := list[baseIdx]
				newVer := nextVersionName()
				if _, err := m.BranchCreateByBaseBranchVersion(ctx, vmkm.BranchName(newName), vmkm.BranchName(branch), vmkm.BranchCreateOpts{
					BaseVersion:    vmkm.VersionName(baseVer),
					HasBaseVersion: true,
					NewVersion:     vmkm.VersionName(newVer),
				}); err != nil {
					rt.Fatalf("BranchCreateByBaseBranchVersion: %v", err)
				}
				copied := append([]string(nil), list[:baseIdx+1]...)
				changeset[newVer] = map[string][]byte{}
				branchVersions[newName] = append(copied, newVer)
				// A fork's own version set starts with only the single new
				// head version allocated at fork time — the inherited
				// prefix lives solely in the base branch's own set, reached
				// through the branch/version chain, not copied here.
				ownVersions[newName] = []string{newVer}

			case "rebase":
				// VersionRebaseByBranch only ever folds versions out of
				// branch's own version set (brToItsVers), never an inherited
				// ancestor prefix, so keepIdx/toFold are chosen over
				// ownVersions, not the ancestor-inclusive branchVersions.
				own := ownVersions[branch]
				if len(own) < 2 {
					break
				}
				keepIdx := rapid.IntRange(0, len(own)-2).Draw(rt, "keepIdx")
				keepVer := own[keepIdx]
				toFold := own[keepIdx+1:]
				unsafeToFold := false
				for _, v := range toFold {
					if referencedElsewhere(v, branch) {
						unsafeToFold = true
						break
					}
				}
				if unsafeToFold {
					// version_rebase is documented unsafe: the caller must
					// ensure no other branch still depends on the versions
					// being folded away. Skip rather than exercise a
					// precondition the caller, not the core, is responsible
					// for.
					break
				}
				if err := m.VersionRebaseByBranch(ctx, vmkm.BranchName(branch), vmkm.VersionName(keepVer)); err != nil {
					rt.Fatalf("VersionRebaseByBranch: %v", err)
				}
				for _, v := range toFold {
					for k, val := range changeset[v] {
						changeset[keepVer][k] = val
					}
					delete(changeset, v)
				}
				ownVersions[branch] = append([]string(nil), own[:keepIdx+1]...)
				full := branchVersions[branch]
				branchVersions[branch] = append([]string(nil), full[:len(full)-len(toFold)]...)

			case "prune":
				keep := rapid.IntRange(1, 3).Draw(rt, "keep")
				if err := m.Prune(ctx, keep); err != nil {
					rt.Fatalf("Prune: %v", err)
				}
				names := branchNames()
				// Prune's shared tail is computed from each branch's own
				// version set (brToItsVers), exactly like commonVersionPrefix
				// in branch_ops.go — a forked branch's inherited prefix was
				// never copied into its own set, so it can never contribute
				// to the shared tail across more than one branch.
				perBranch := make([][]string, len(names))
				for i, n := range names {
					perBranch[i] = ownVersions[n]
				}
				shared := commonPrefixStrings(perBranch)
				if len(shared) > keep+1 {
					rewriteIdx := len(shared) - keep
					rewriteVersion := shared[rewriteIdx]
					mergeTargets := shared[:rewriteIdx]

					native := make(map[string]bool, len(changeset[rewriteVersion]))
					for k := range changeset[rewriteVersion] {
						native[k] = true
					}
					foldSet := make(map[string]bool, len(mergeTargets))
					for _, v := range mergeTargets {
						foldSet[v] = true
						for k, val := range changeset[v] {
							if native[k] {
								continue
							}
							changeset[rewriteVersion][k] = val
						}
						delete(changeset, v)
					}
					for _, n := range names {
						filtered := make([]string, 0, len(branchVersions[n]))
						for _, v := range branchVersions[n] {
							if !foldSet[v] {
								filtered = append(filtered, v)
							}
						}
						branchVersions[n] = filtered

						ownFiltered := make([]string, 0, len(ownVersions[n]))
						for _, v := range ownVersions[n] {
							if !foldSet[v] {
								ownFiltered = append(ownFiltered, v)
							}
						}
						ownVersions[n] = ownFiltered
					}
				}
			}

			checkAll()
		}
	})
}
