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
	"context"
	"fmt"

	"github.com/emicklei/dot"
)

// ExportDAG renders the branch/version DAG to Graphviz DOT: one cluster per
// branch holding a chain of its own versions, with a dashed edge from the
// base branch's fork-point version to the branch's first node when known.
func (m *VsMgmt) ExportDAG(ctx context.Context) (string, error) {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")

	branches, err := m.BranchList(ctx)
	if err != nil {
		return "", err
	}

	branchNodes := map[BranchName]dot.Node{}
	for _, name := range branches {
		brID, err := m.b.resolveBranch(ctx, name)
		if err != nil {
			return "", err
		}
		cluster := g.Subgraph(fmt.Sprintf("branch_%s", name), dot.ClusterOption{})
		var versions []VersionID
		if err := m.b.brToItsVers.IterOp(ctx, [][]byte{encodeU64(uint64(brID))}, func(keys [][]byte, _ []byte) error {
			versions = append(versions, VersionID(decodeU64(keys[1])))
			return nil
		}); err != nil {
			return "", err
		}
		var prev *dot.Node
		var first dot.Node
		for i, v := range versions {
			raw, _, _ := m.b.versionIDToName.Get(ctx, encodeU64(uint64(v)))
			label := fmt.Sprintf("%s", raw)
			n := cluster.Node(fmt.Sprintf("%s/%d", name, v)).Label(label)
			if i == 0 {
				first = n
			}
			if prev != nil {
				g.Edge(*prev, n)
			}
			prevCopy := n
			prev = &prevCopy
		}
		branchNodes[name] = first
	}

	for _, name := range branches {
		brID, err := m.b.resolveBranch(ctx, name)
		if err != nil {
			return "", err
		}
		raw, ok, err := m.b.branchMeta.Get(ctx, encodeU64(uint64(brID)))
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		meta := decodeBranchMeta(raw)
		if !meta.HasBaseVersion {
			continue
		}
		baseNameRaw, ok, err := m.b.branchIDToName.Get(ctx, encodeU64(uint64(meta.BaseBranch)))
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		first, ok := branchNodes[name]
		if !ok {
			continue
		}
		forkNode := g.Node(fmt.Sprintf("%s/%d", baseNameRaw, meta.BaseVersion))
		g.Edge(forkNode, first).Attr("style", "dashed")
	}
	return g.String(), nil
}
