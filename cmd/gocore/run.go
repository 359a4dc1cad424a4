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
	"context"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/corejs/internal/corelog"
	"github.com/probeum/corejs/isolate"
)

var (
	queueSizeFlag = cli.IntFlag{
		Name:  "queue-size",
		Usage: "SharedQueue byte capacity",
	}
	snapshotDBFlag = cli.StringFlag{
		Name:  "snapshotdb",
		Usage: "Path to the snapshot store used by the snapshot subcommands",
	}
	snapshotInFlag = cli.StringFlag{
		Name:  "snapshot",
		Usage: "Construct the isolate by replaying a saved snapshot instead of running fresh",
	}
	mmapQueueFlag = cli.BoolFlag{
		Name:  "mmap-queue",
		Usage: "Back the SharedQueue with an anonymous mmap region instead of a Go-heap slice",
	}

	runCommand = cli.Command{
		Action:    runScript,
		Name:      "run",
		Usage:     "Run a JavaScript file to completion",
		ArgsUsage: "<file.js>",
		Flags:     []cli.Flag{configFileFlag, queueSizeFlag, snapshotDBFlag, snapshotInFlag, mmapQueueFlag},
		Category:  "CONSOLE COMMANDS",
	}
)

// runScript constructs an isolate, registers the demonstration ops,
// executes the given file, and polls until idle, exiting non-zero on any
// captured exception. This is the library's embedding contract exercised
// end to end: Execute, then drive Poll until the driver reports idle.
func runScript(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		fatalf("usage: gocore run <file.js>")
	}
	path := ctx.Args().Get(0)
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg := makeConfig(ctx)
	var opts []isolate.Option
	opts = append(opts, isolate.WithQueueSize(cfg.QueueSize))
	if ctx.Bool(mmapQueueFlag.Name) {
		opts = append(opts, isolate.WithMmapQueue())
	}

	if blobPath := ctx.String(snapshotInFlag.Name); blobPath != "" {
		blob, err := os.ReadFile(blobPath)
		if err != nil {
			return err
		}
		opts = append(opts, isolate.WithSnapshot(blob))
	}

	iso, err := isolate.New(opts...)
	if err != nil {
		return err
	}
	defer iso.Close()

	if err := registerDemoOps(iso); err != nil {
		return err
	}

	corelog.Info("running script", "path", path, "bytes", len(source))
	if err := iso.Execute(path, string(source)); err != nil {
		return err
	}
	return iso.RunToIdle(context.Background())
}
