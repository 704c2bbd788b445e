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

// Command vsdbctl is the administrative CLI over a VMKM store's branch and
// version algebra, built with alecthomas/kong the way the teacher builds
// its own operator-facing command trees.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vsdb-go/vsdb/internal/config"
	"github.com/vsdb-go/vsdb/internal/debughttp"
	"github.com/vsdb-go/vsdb/kv/boltengine"
	"github.com/vsdb-go/vsdb/vmkm"
)

type branchCmd struct {
	Create struct {
		Name   string `arg:""`
		Base   string `arg:""`
		Force  bool   `help:"Replace an existing branch of the same name."`
	} `cmd:"" help:"Create a branch forked off an existing base branch's head."`
	List struct{} `cmd:"" help:"List every branch."`
	Remove struct {
		Name string `arg:""`
	} `cmd:"" help:"Remove a branch."`
	Truncate struct {
		Name string `arg:""`
	} `cmd:"" help:"Remove every version on a branch."`
	Merge struct {
		Source string `arg:""`
		Target string `arg:""`
		Force  bool   `help:"Merge even if target advanced past the fork point."`
	} `cmd:"" help:"Merge one branch into another."`
	SetDefault struct {
		Name string `arg:""`
	} `cmd:"set-default" help:"Change the default branch."`
}

type versionCmd struct {
	Create struct {
		Branch string `arg:""`
		Name   string `arg:""`
	} `cmd:"" help:"Create a new version on a branch."`
	Pop struct {
		Branch string `arg:""`
	} `cmd:"" help:"Remove the newest version from a branch."`
}

type dagCmd struct {
	Export struct{} `cmd:"" help:"Export the branch/version DAG as Graphviz DOT."`
}

var cli struct {
	BaseDir string `help:"Override the base directory (else $VSDB_BASE_DIR or $HOME/.vsdb)." type:"path"`

	Branch  branchCmd `cmd:"" help:"Branch operations."`
	Version versionCmd `cmd:"" help:"Version operations."`
	Dag     dagCmd    `cmd:"" help:"DAG introspection."`
	Prune   struct {
		Keep int `arg:"" default:"16"`
	} `cmd:"" help:"Fold the oldest versions shared by every branch into one rewrite version, keeping the newest N distinct."`
	ServeDebug struct {
		Addr string `default:":8585"`
	} `cmd:"serve-debug" help:"Serve the read-only debug HTTP introspection surface."`
	Stats statsCmd `cmd:"" help:"Report on-disk store size."`
}

func main() {
	ctx := kong.Parse(&cli)
	if cli.BaseDir != "" {
		config.SetBaseDir(cli.BaseDir)
	}
	dir, err := config.BaseDir()
	ctx.FatalIfErrorf(err)

	lock, err := config.AcquireLock(dir)
	ctx.FatalIfErrorf(err)
	defer lock.Release()

	eng, err := boltengine.Open(dir+"/store.db", nil)
	ctx.FatalIfErrorf(err)
	defer eng.Close()

	backend, err := vmkm.Open(context.Background(), eng, vmkm.Options{})
	ctx.FatalIfErrorf(err)
	m := vmkm.NewVsMgmt(backend)

	switch ctx.Command() {
	case "branch create <name> <base>":
		_, err := m.BranchCreateByBaseBranchVersion(context.Background(), vmkm.BranchName(cli.Branch.Create.Name), vmkm.BranchName(cli.Branch.Create.Base), vmkm.BranchCreateOpts{Force: cli.Branch.Create.Force})
		ctx.FatalIfErrorf(err)
	case "branch list":
		names, err := m.BranchList(context.Background())
		ctx.FatalIfErrorf(err)
		for _, n := range names {
			fmt.Println(n)
		}
	case "branch remove <name>":
		ctx.FatalIfErrorf(m.BranchRemove(context.Background(), vmkm.BranchName(cli.Branch.Remove.Name)))
	case "branch truncate <name>":
		ctx.FatalIfErrorf(m.BranchTruncate(context.Background(), vmkm.BranchName(cli.Branch.Truncate.Name)))
	case "branch merge <source> <target>":
		if cli.Branch.Merge.Force {
			ctx.FatalIfErrorf(m.BranchMergeToForce(context.Background(), vmkm.BranchName(cli.Branch.Merge.Source), vmkm.BranchName(cli.Branch.Merge.Target)))
		} else {
			ctx.FatalIfErrorf(m.BranchMergeTo(context.Background(), vmkm.BranchName(cli.Branch.Merge.Source), vmkm.BranchName(cli.Branch.Merge.Target)))
		}
	case "branch set-default <name>":
		ctx.FatalIfErrorf(m.BranchSetDefault(context.Background(), vmkm.BranchName(cli.Branch.SetDefault.Name)))
	case "version create <branch> <name>":
		_, err := m.VersionCreateByBranch(context.Background(), vmkm.BranchName(cli.Version.Create.Branch), vmkm.VersionName(cli.Version.Create.Name))
		ctx.FatalIfErrorf(err)
	case "version pop <branch>":
		ctx.FatalIfErrorf(m.VersionPopByBranch(context.Background(), vmkm.BranchName(cli.Version.Pop.Branch)))
	case "dag export":
		out, err := m.ExportDAG(context.Background())
		ctx.FatalIfErrorf(err)
		fmt.Println(out)
	case "prune <keep>":
		ctx.FatalIfErrorf(m.Prune(context.Background(), cli.Prune.Keep))
	case "serve-debug":
		ctx.FatalIfErrorf(debughttp.Serve(context.Background(), cli.ServeDebug.Addr, m))
	case "stats <path>":
		ctx.FatalIfErrorf(printStoreStats(cli.Stats.Path))
	default:
		fmt.Fprintln(os.Stderr, "unknown command:", ctx.Command())
		os.Exit(1)
	}
}
