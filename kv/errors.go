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

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a storage-layer failure so callers can branch on it with
// KindOf without parsing message text.
type Kind int

const (
	// KindNone is the zero value; never attached to a returned error.
	KindNone Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindNoHeadVersion
	KindMergeUnsafe
	KindBackend
	KindLogic
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNoHeadVersion:
		return "no_head_version"
	case KindMergeUnsafe:
		return "merge_unsafe"
	case KindBackend:
		return "backend"
	case KindLogic:
		return "logic"
	default:
		return "none"
	}
}

// Error is the breadcrumb-chained error type used throughout the module.
// It mirrors the original_source backend's ruc `d!()`/`.c(d!())` chaining:
// every layer that re-raises an error adds one more context line instead of
// discarding the inner cause.
type Error struct {
	kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf reports the classification of err, or KindNone if err does not carry
// one (or is nil).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindNone
}

// New builds a fresh breadcrumb-chained error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, cause: errors.New(msg)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap adds one breadcrumb of context to err without losing its kind (if
// err already carries one) or its cause chain.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if kind == KindNone {
		kind = KindLogic
	}
	return &Error{kind: kind, cause: errors.WithMessage(err, msg)}
}

// Wrapf is Wrap with fmt.Sprintf-style formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if kind == KindNone {
		kind = KindLogic
	}
	return &Error{kind: kind, cause: errors.WithMessagef(err, format, args...)}
}

// WithKind reclassifies err under kind, preserving its context chain. Used
// when a lower layer's generic error (e.g. a raw backend I/O error) needs to
// surface as a specific taxonomy kind to the caller.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, cause: err}
}

var (
	ErrBaseDirLocked = New(KindBackend, "base directory is locked by another process")
)
