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

package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/edsrzf/mmap-go"
)

// statsCmd reports the on-disk size of the store file, human-readable via
// c2h5oh/datasize, taken from a read-only mmap snapshot (edsrzf/mmap-go) so
// it never blocks the live write path.
type statsCmd struct {
	Path string `arg:"" default:"store.db"`
}

func printStoreStats(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		fmt.Println("store is empty")
		return nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	defer m.Unmap()

	size := datasize.ByteSize(len(m))
	fmt.Printf("store size: %s\n", size.HumanReadable())
	return nil
}
