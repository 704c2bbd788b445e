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

package kv

// SchemaVersion gates whether an on-disk base directory written by one
// build of this module can be opened by another, the way DBSchemaVersion
// gates erigon's own on-disk layout.
type SchemaVersion struct {
	Major, Minor, Patch uint32
}

// CurrentSchemaVersion is the layout version of this build. Nothing in this
// module writes it under KeySchemaVersion or checks it when a store opens.
var CurrentSchemaVersion = SchemaVersion{Major: 1, Minor: 0, Patch: 0}

// Reserved keys live under prefix 0 (ReservedPrefix) and are never visible
// through any VsMgmt/vmkm operation: they hold the prefix allocator's
// counters. The id<->name maps live at vmkm's own prefixes just above
// BiggestReservedID, and the default branch is kept in memory only.
const (
	ReservedPrefix uint64 = 0

	// BiggestReservedID bounds the reserved prefix keyspace: no
	// allocator-issued instance prefix falls at or below it. Branch and
	// version ids come from separate counters that start at 1.
	BiggestReservedID uint64 = 1 << 10
)

// Reserved key names, analogous to erigon's table-name constant block in
// erigon-lib/kv/tables.go, but naming bookkeeping keys instead of tables.
const (
	KeySchemaVersion     = "schema_version"
	KeyNextInstancePfx   = "next_instance_prefix"
	KeyNextBranchID      = "next_branch_id"
	KeyNextVersionID     = "next_version_id"
	KeyDefaultBranchName = "default_branch_name"
	KeyDefaultBranchID   = "default_branch_id"
)

// reservedKeys lists every bookkeeping key name, the way tables.go lists
// table names; IsReservedKeyName checks against it. Opening a store does
// not validate against this list.
var reservedKeys = []string{
	KeySchemaVersion,
	KeyNextInstancePfx,
	KeyNextBranchID,
	KeyNextVersionID,
	KeyDefaultBranchName,
	KeyDefaultBranchID,
}

// IsReservedKeyName reports whether name is one of the bookkeeping keys
// under ReservedPrefix.
func IsReservedKeyName(name string) bool {
	for _, k := range reservedKeys {
		if k == name {
			return true
		}
	}
	return false
}
