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
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/probeum/corejs/queue"
)

var configFileFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML configuration file",
}

// tomlSettings mirrors the teacher's convention: struct field names are
// used verbatim as TOML keys, and a stray key in the file is reported by
// name rather than silently ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// gocoreConfig is the full set of options cmd/gocore reads from TOML,
// overridable by the equivalent CLI flags.
type gocoreConfig struct {
	QueueSize       int
	ScriptCacheSize int
	SnapshotDB      string
	StartupScript   string
}

func defaultConfig() gocoreConfig {
	return gocoreConfig{
		QueueSize:       queue.RecommendedSize,
		ScriptCacheSize: 64,
		SnapshotDB:      "gocore-snapshots",
	}
}

func loadConfig(file string, cfg *gocoreConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads defaults, then overlays a --config file, then CLI flags,
// in that order, matching the teacher's makeConfigNode layering.
func makeConfig(ctx *cli.Context) gocoreConfig {
	cfg := defaultConfig()
	file := ctx.String(configFileFlag.Name)
	if file == "" {
		file = ctx.GlobalString(configFileFlag.Name)
	}
	if file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			fatalf("%v", err)
		}
	}
	if ctx.IsSet(queueSizeFlag.Name) {
		cfg.QueueSize = ctx.Int(queueSizeFlag.Name)
	} else if ctx.GlobalIsSet(queueSizeFlag.Name) {
		cfg.QueueSize = ctx.GlobalInt(queueSizeFlag.Name)
	}
	if ctx.IsSet(snapshotDBFlag.Name) {
		cfg.SnapshotDB = ctx.String(snapshotDBFlag.Name)
	} else if ctx.GlobalIsSet(snapshotDBFlag.Name) {
		cfg.SnapshotDB = ctx.GlobalString(snapshotDBFlag.Name)
	}
	return cfg
}

var dumpConfigCommand = cli.Command{
	Action:      dumpConfig,
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	ArgsUsage:   "",
	Flags:       []cli.Flag{configFileFlag, queueSizeFlag, snapshotDBFlag},
	Category:    "MISCELLANEOUS COMMANDS",
	Description: `The dumpconfig command shows configuration values.`,
}

func dumpConfig(ctx *cli.Context) error {
	cfg := makeConfig(ctx)
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
