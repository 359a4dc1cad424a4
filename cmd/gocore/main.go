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

// gocore is a demonstration host binary for the corejs embeddable
// JavaScript runtime: it runs scripts, offers an interactive console, and
// manages on-disk snapshots, the way gprobe is a host binary for the
// go-probeum library.
package main

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/corejs/internal/corelog"
)

const clientIdentifier = "gocore"

var app = newApp()

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = clientIdentifier
	app.Usage = "the corejs JavaScript runtime console"
	app.Action = runRepl
	app.HideVersion = true
	app.Flags = []cli.Flag{configFileFlag, queueSizeFlag, snapshotDBFlag}
	app.Commands = []cli.Command{
		runCommand,
		replCommand,
		snapshotCommand,
		dumpConfigCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))
	return app
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		corelog.Error("gocore exited with error", "err", err)
		os.Exit(1)
	}
}
