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
	"crypto/sha256"
	"sort"
)

// ChangeSetHasher computes a deterministic fingerprint over one version's
// change set. Merkle-trie construction itself is out of scope for this
// module (see original_source's dagmap_raw_trie, which this module does
// not implement); ChangeSetHasher is the hook a caller with its own trie
// utility downstream can plug in instead of the stdlib default.
type ChangeSetHasher interface {
	Hash(entries []ChangeEntry) [32]byte
}

// sha256Hasher is the zero-dependency default: entries are sorted by key,
// then folded through crypto/sha256 in order. It gives a stable fingerprint
// for equality checks and smoke tests; it is not a Merkle tree and exposes
// no inclusion proof.
type sha256Hasher struct{}

// DefaultHasher returns the stdlib-only ChangeSetHasher used when no
// Merkle-trie collaborator is configured.
func DefaultHasher() ChangeSetHasher { return sha256Hasher{} }

func (sha256Hasher) Hash(entries []ChangeEntry) [32]byte {
	sorted := append([]ChangeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].Key) < string(sorted[j].Key)
	})
	h := sha256.New()
	for _, e := range sorted {
		h.Write(e.Key)
		h.Write([]byte{0})
		h.Write(e.Value)
		h.Write([]byte{0})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
