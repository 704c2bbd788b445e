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

import "context"

// VsMgmt is the name-indexed façade administrative tooling (cmd/vsdbctl,
// internal/debughttp) is built against, collecting the id-indexed
// Backend's branch/version algebra behind one handle. It is a thin
// renaming layer: every method here except Entry (a Get followed by an
// Insert when absent) forwards straight to its Backend counterpart,
// matching original_source's own split between the raw
// MapxRawMkVs and its name-resolving wrapper methods.
type VsMgmt struct {
	b *Backend
}

// NewVsMgmt wraps an opened Backend.
func NewVsMgmt(b *Backend) *VsMgmt { return &VsMgmt{b: b} }

func (m *VsMgmt) Get(ctx context.Context, keySegments [][]byte) ([]byte, bool, error) {
	return m.b.Get(ctx, keySegments)
}
func (m *VsMgmt) GetByBranch(ctx context.Context, branch BranchName, keySegments [][]byte) ([]byte, bool, error) {
	return m.b.GetByBranch(ctx, branch, keySegments)
}
func (m *VsMgmt) GetByBranchVersion(ctx context.Context, branch BranchName, version VersionName, keySegments [][]byte) ([]byte, bool, error) {
	return m.b.GetByBranchVersion(ctx, branch, version, keySegments)
}

func (m *VsMgmt) Insert(ctx context.Context, keySegments [][]byte, value []byte) error {
	return m.b.Insert(ctx, keySegments, value)
}
func (m *VsMgmt) InsertByBranch(ctx context.Context, branch BranchName, keySegments [][]byte, value []byte) error {
	return m.b.InsertByBranch(ctx, branch, keySegments, value)
}
func (m *VsMgmt) InsertByBranchVersion(ctx context.Context, branch BranchName, version VersionName, keySegments [][]byte, value []byte) error {
	return m.b.InsertByBranchVersion(ctx, branch, version, keySegments, value)
}
func (m *VsMgmt) Remove(ctx context.Context, keySegments [][]byte) error {
	return m.b.Remove(ctx, keySegments)
}
func (m *VsMgmt) RemoveByBranch(ctx context.Context, branch BranchName, keySegments [][]byte) error {
	return m.b.RemoveByBranch(ctx, branch, keySegments)
}
func (m *VsMgmt) RemoveByBranchVersion(ctx context.Context, branch BranchName, version VersionName, keySegments [][]byte) error {
	return m.b.RemoveByBranchVersion(ctx, branch, version, keySegments)
}

// Entry returns the current value at keySegments on the default branch's
// head, or inserts and returns def if absent (OrInsert semantics).
func (m *VsMgmt) Entry(ctx context.Context, keySegments [][]byte, def []byte) ([]byte, error) {
	v, ok, err := m.b.Get(ctx, keySegments)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if err := m.b.Insert(ctx, keySegments, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (m *VsMgmt) VersionCreateByBranch(ctx context.Context, branch BranchName, name VersionName) (VersionID, error) {
	return m.b.VersionCreateByBranch(ctx, branch, name)
}
func (m *VsMgmt) VersionExistsGlobally(ctx context.Context, name VersionName) (bool, error) {
	return m.b.VersionExistsGlobally(ctx, name)
}
func (m *VsMgmt) VersionExistsOnBranch(ctx context.Context, branch BranchName, name VersionName) (bool, error) {
	return m.b.VersionExistsOnBranch(ctx, branch, name)
}
func (m *VsMgmt) VersionPopByBranch(ctx context.Context, branch BranchName) error {
	return m.b.VersionPopByBranch(ctx, branch)
}
func (m *VsMgmt) VersionList(ctx context.Context) ([]VersionName, error) {
	return m.b.VersionList(ctx)
}
func (m *VsMgmt) VersionListByBranch(ctx context.Context, branch BranchName) ([]VersionName, error) {
	return m.b.VersionListByBranch(ctx, branch)
}
func (m *VsMgmt) VersionListGlobally(ctx context.Context) ([]VersionName, error) {
	return m.b.VersionListGlobally(ctx)
}
func (m *VsMgmt) VersionHasChangeSet(ctx context.Context, version VersionName) (bool, error) {
	return m.b.VersionHasChangeSet(ctx, version)
}
func (m *VsMgmt) VersionRebaseByBranch(ctx context.Context, branch BranchName, keepVersion VersionName) error {
	return m.b.VersionRebaseByBranch(ctx, branch, keepVersion)
}
func (m *VsMgmt) VersionCleanUpGlobally(ctx context.Context) error {
	return m.b.VersionCleanUpGlobally(ctx)
}
func (m *VsMgmt) VersionRevertGlobally(ctx context.Context, version VersionName) error {
	return m.b.VersionRevertGlobally(ctx, version)
}

func (m *VsMgmt) BranchCreateByBaseBranchVersion(ctx context.Context, name, base BranchName, opts BranchCreateOpts) (BranchID, error) {
	return m.b.BranchCreateByBaseBranchVersion(ctx, name, base, opts)
}
func (m *VsMgmt) BranchExists(ctx context.Context, name BranchName) (bool, error) {
	return m.b.BranchExists(ctx, name)
}
func (m *VsMgmt) BranchHasVersions(ctx context.Context, branch BranchName) (bool, error) {
	return m.b.BranchHasVersions(ctx, branch)
}
func (m *VsMgmt) BranchRemove(ctx context.Context, branch BranchName) error {
	return m.b.BranchRemove(ctx, branch)
}
func (m *VsMgmt) BranchKeepOnly(ctx context.Context, names []BranchName) error {
	return m.b.BranchKeepOnly(ctx, names)
}
func (m *VsMgmt) BranchPopVersion(ctx context.Context, branch BranchName) error {
	return m.b.BranchPopVersion(ctx, branch)
}
func (m *VsMgmt) BranchTruncate(ctx context.Context, branch BranchName) error {
	return m.b.BranchTruncate(ctx, branch)
}
func (m *VsMgmt) BranchTruncateTo(ctx context.Context, branch BranchName, keepVersion VersionName) error {
	return m.b.BranchTruncateTo(ctx, branch, keepVersion)
}
func (m *VsMgmt) BranchMergeTo(ctx context.Context, source, target BranchName) error {
	return m.b.BranchMergeTo(ctx, source, target)
}
func (m *VsMgmt) BranchMergeToForce(ctx context.Context, source, target BranchName) error {
	return m.b.BranchMergeToForce(ctx, source, target)
}
func (m *VsMgmt) BranchSetDefault(ctx context.Context, branch BranchName) error {
	return m.b.BranchSetDefault(ctx, branch)
}
func (m *VsMgmt) BranchGetDefault() BranchID {
	return m.b.BranchGetDefault()
}
func (m *VsMgmt) BranchGetDefaultName(ctx context.Context) (BranchName, error) {
	return m.b.BranchGetDefaultName(ctx)
}
func (m *VsMgmt) BranchIsEmpty(ctx context.Context) (bool, error) {
	return m.b.BranchIsEmpty(ctx)
}
func (m *VsMgmt) BranchList(ctx context.Context) ([]BranchName, error) {
	return m.b.BranchList(ctx)
}
func (m *VsMgmt) BranchSwap(ctx context.Context, a, b2 BranchName) error {
	return m.b.BranchSwap(ctx, a, b2)
}
func (m *VsMgmt) Prune(ctx context.Context, keep int) error {
	return m.b.Prune(ctx, keep)
}

func (m *VsMgmt) NewVersionedReader(ctx context.Context, branch BranchName, version VersionName) (*VersionedReader, error) {
	return m.b.NewVersionedReader(ctx, branch, version)
}
