// Copyright 2021 The corejs Authors
// This file is part of corejs.
//
// corejs is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// corejs is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with corejs. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/corejs/isolate"
	"github.com/probeum/corejs/isolate/snapshotstore"
)

var (
	snapshotScriptFlag = cli.StringFlag{
		Name:  "script",
		Usage: "Script to execute before snapshotting",
	}

	snapshotCommand = cli.Command{
		Name:     "snapshot",
		Usage:    "Manage isolate snapshots",
		Category: "SNAPSHOT COMMANDS",
		Subcommands: []cli.Command{
			snapshotSaveCommand,
			snapshotLoadCommand,
		},
	}
	snapshotSaveCommand = cli.Command{
		Action:    snapshotSave,
		Name:      "save",
		Usage:     "Execute a script under WillSnapshot and store the resulting manifest",
		ArgsUsage: "<name>",
		Flags:     []cli.Flag{configFileFlag, snapshotDBFlag, snapshotScriptFlag},
	}
	snapshotLoadCommand = cli.Command{
		Action:    snapshotLoad,
		Name:      "load",
		Usage:     "Replay a stored snapshot and print its size and approximate memory usage",
		ArgsUsage: "<name>",
		Flags:     []cli.Flag{configFileFlag, snapshotDBFlag},
	}
)

func snapshotSave(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		fatalf("usage: gocore snapshot save <name> --script <file.js>")
	}
	name := ctx.Args().Get(0)
	scriptPath := ctx.String(snapshotScriptFlag.Name)
	if scriptPath == "" {
		fatalf("--script is required")
	}
	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return err
	}

	cfg := makeConfig(ctx)
	iso, err := isolate.New(isolate.WithQueueSize(cfg.QueueSize), isolate.WillSnapshot())
	if err != nil {
		return err
	}
	if err := iso.Execute(scriptPath, string(source)); err != nil {
		return err
	}
	blob, err := iso.Snapshot()
	if err != nil {
		return err
	}

	store, err := snapshotstore.Open(cfg.SnapshotDB)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(name, blob); err != nil {
		return err
	}
	fmt.Printf("saved snapshot %q (%d bytes)\n", name, len(blob))
	return nil
}

func snapshotLoad(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		fatalf("usage: gocore snapshot load <name>")
	}
	name := ctx.Args().Get(0)
	cfg := makeConfig(ctx)

	store, err := snapshotstore.Open(cfg.SnapshotDB)
	if err != nil {
		return err
	}
	defer store.Close()

	blob, err := store.Load(name)
	if err != nil {
		return err
	}

	iso, err := isolate.New(isolate.WithSnapshot(blob))
	if err != nil {
		return err
	}
	defer iso.Close()
	fmt.Printf("replayed snapshot %q (%d bytes); approx memory usage %d bytes\n", name, len(blob), iso.MemoryUsage())
	return nil
}
