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

// Package logging wires go.uber.org/zap the way the teacher wires its own
// erigon-lib/log package: one process-wide logger, level selected from an
// environment variable, development/production encoder presets.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envLevel = "VSDB_LOG_LEVEL"

// New builds a zap.Logger. development=true uses a human-readable console
// encoder; false uses JSON. No other package in this module calls it.
func New(development bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if v := os.Getenv(envLevel); v != "" {
		_ = level.Set(v)
	}
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// Nop returns a logger that discards everything, used as the zero-value
// default before a caller wires a real one in.
func Nop() *zap.Logger { return zap.NewNop() }
