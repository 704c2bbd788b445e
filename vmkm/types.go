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

// Package vmkm implements the versioned, branched multi-key map: a Git-like
// DAG of branches and versions layered over an ordered byte-key map, such
// that Get(key, branch, version) resolves to the value key held on that
// branch as of that version. It is a direct generalization of
// original_source's MapxRawMkVs.
package vmkm

// BranchID identifies a branch internally. 0 is never issued by the
// allocator (reserved).
type BranchID uint64

// VersionID identifies a version internally, monotonically increasing
// across the whole store (not per-branch).
type VersionID uint64

// BranchName and VersionName are the user-facing identifiers that map to
// BranchID/VersionID through the id<->name caches.
type BranchName string
type VersionName string

// Branch is a named fork point: a BranchID, its human name, and the base
// branch/version it forked from (zero values for the root branch).
type Branch struct {
	ID             BranchID
	Name           BranchName
	BaseBranch     BranchID
	BaseVersion    VersionID
	HasBaseVersion bool
}

// Version is one point in a branch's history.
type Version struct {
	ID   VersionID
	Name VersionName
}

// ChangeEntry is one key's write (or tombstone, if Value is empty) recorded
// in a version's change set.
type ChangeEntry struct {
	Key   []byte
	Value []byte
}
