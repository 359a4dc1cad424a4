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
	"time"

	"github.com/probeum/corejs/internal/corelog"
	"github.com/probeum/corejs/isolate"
	"github.com/probeum/corejs/ops"
	"github.com/probeum/corejs/zerocopy"
)

// registerDemoOps wires the small set of ops the REPL and `gocore run`
// exercise: a file read, a timer, and a stats dump. They exist to give the
// isolate driver something real to dispatch, not to be a filesystem or
// timer API in their own right.
func registerDemoOps(iso *isolate.Isolate) error {
	if _, err := iso.Registry.Register("op_read_file", opReadFile); err != nil {
		return err
	}
	if _, err := iso.Registry.Register("op_timer_sleep", opTimerSleep); err != nil {
		return err
	}
	if _, err := iso.Registry.Register("op_print_stats", opPrintStats(iso)); err != nil {
		return err
	}
	return nil
}

// opReadFile reads the path named by control (UTF-8) and returns its bytes
// synchronously.
func opReadFile(control []byte, zc *zerocopy.Buf) ops.Op {
	data, err := os.ReadFile(string(control))
	if err != nil {
		corelog.Warn("op_read_file failed", "path", string(control), "err", err)
		return ops.Sync(nil)
	}
	return ops.Sync(data)
}

// opTimerSleep parses control as a little-endian uint32 millisecond count
// and resolves asynchronously after that delay, demonstrating the async
// path end to end.
func opTimerSleep(control []byte, zc *zerocopy.Buf) ops.Op {
	var ms uint32
	for i := 0; i < len(control) && i < 4; i++ {
		ms |= uint32(control[i]) << (8 * i)
	}
	ch := make(chan []byte, 1)
	go func() {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		ch <- []byte{1}
		close(ch)
	}()
	return ops.Async(ch)
}

// opPrintStats reports queue occupancy and approximate isolate memory
// usage, synchronously, as a small JSON-free key=value line.
func opPrintStats(iso *isolate.Isolate) ops.Handler {
	return func(control []byte, zc *zerocopy.Buf) ops.Op {
		usage := iso.MemoryUsage()
		line := fmt.Sprintf("queue_size=%d approx_bytes=%d", iso.Queue.Size(), usage)
		return ops.Sync([]byte(line))
	}
}
