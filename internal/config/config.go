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

// Package config resolves the on-disk base directory every Engine opens
// against: $HOME/.vsdb by default, overridable by VSDB_BASE_DIR, or by one
// early programmatic call to SetBaseDir. A gofrs/flock advisory lock file
// enforces one engine instance per base directory per the package's
// external-interface contract.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/vsdb-go/vsdb/kv"
)

const (
	envBaseDir  = "VSDB_BASE_DIR"
	defaultDir  = ".vsdb"
	customDir   = "__CUSTOM__"
	lockFile    = "LOCK"
)

var (
	once       sync.Once
	baseDir    string
	baseDirSet bool
	mu         sync.Mutex
)

// SetBaseDir overrides the base directory programmatically. Must be called
// before the first call to BaseDir/Open in the process; subsequent calls
// are no-ops, matching the package's first-write-wins resolution order.
func SetBaseDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	if baseDirSet {
		return
	}
	baseDir = dir
	baseDirSet = true
}

// BaseDir resolves (and memoizes) the base directory: a prior SetBaseDir
// call wins, then VSDB_BASE_DIR, then $HOME/.vsdb.
func BaseDir() (string, error) {
	var err error
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if baseDirSet {
			return
		}
		if env := os.Getenv(envBaseDir); env != "" {
			baseDir = env
			baseDirSet = true
			return
		}
		home, herr := os.UserHomeDir()
		if herr != nil {
			err = kv.Wrap(herr, "config: resolving home directory")
			return
		}
		baseDir = filepath.Join(home, defaultDir)
		baseDirSet = true
	})
	return baseDir, err
}

// CustomDir returns the __CUSTOM__ subdirectory of the base directory,
// reserved for caller-defined auxiliary files the engine itself never
// touches.
func CustomDir() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, customDir), nil
}

// Lock is a held advisory lock on the base directory's LOCK file.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes an exclusive, non-blocking advisory lock on the base
// directory, returning kv.ErrBaseDirLocked if another process holds it.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, kv.Wrap(err, "config: creating base directory")
	}
	fl := flock.New(filepath.Join(dir, lockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, kv.Wrap(err, "config: acquiring base directory lock")
	}
	if !locked {
		return nil, kv.ErrBaseDirLocked
	}
	return &Lock{fl: fl}, nil
}

// Release drops the advisory lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
