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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/corejs/internal/corelog"
	"github.com/probeum/corejs/isolate"
)

var replCommand = cli.Command{
	Action:    runRepl,
	Name:      "repl",
	Usage:     "Start an interactive JavaScript console",
	ArgsUsage: "",
	Flags:     []cli.Flag{configFileFlag, queueSizeFlag},
	Category:  "CONSOLE COMMANDS",
}

const replHistoryFile = ".gocore_history"

// runRepl drives a peterh/liner-backed console the way the teacher's own
// JS-engine consoles do: one line in, Execute, print the structured
// exception if it throws, poll to idle before the next prompt. The line's
// completion value is not printed.
func runRepl(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	iso, err := isolate.New(isolate.WithQueueSize(cfg.QueueSize))
	if err != nil {
		return err
	}
	defer iso.Close()
	if err := registerDemoOps(iso); err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if historyPath := historyFilePath(); historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Println("gocore console -- type .exit to quit")
	for {
		text, err := line.Prompt("> ")
		if err != nil {
			break
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if text == ".exit" {
			break
		}
		line.AppendHistory(text)

		if err := iso.Execute("<repl>", text); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if err := iso.RunToIdle(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	if historyPath := historyFilePath(); historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		} else {
			corelog.Warn("could not persist console history", "err", err)
		}
	}
	return nil
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, replHistoryFile)
}
