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

import "github.com/vsdb-go/vsdb/kv"

func kvNoHeadVersion(branch BranchName) error {
	return kv.Newf(kv.KindNoHeadVersion, "vmkm: branch %q has no head version", branch)
}

func kvInvalidArg(format string, args ...any) error {
	return kv.Newf(kv.KindInvalidArgument, format, args...)
}

func kvAlreadyExists(format string, args ...any) error {
	return kv.Newf(kv.KindAlreadyExists, format, args...)
}

func kvNotFound(format string, args ...any) error {
	return kv.Newf(kv.KindNotFound, format, args...)
}

func kvMergeUnsafe(format string, args ...any) error {
	return kv.Newf(kv.KindMergeUnsafe, format, args...)
}
