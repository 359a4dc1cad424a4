// Copyright 2021 The corejs Authors
// This file is part of the corejs library.
//
// The corejs library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corejs library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corejs library. If not, see <http://www.gnu.org/licenses/>.

package isolate

import "github.com/fjl/memsize"

// diagnostics is the small object graph MemoryUsage walks: the registry's
// pending-id bookkeeping set and the queue's backing buffer.
// It deliberately excludes the goja.Runtime itself, whose internal object
// graph memsize cannot walk meaningfully through goja's reflection-unfriendly
// internals; this is an approximate sizing signal, not a V8-grade heap
// statistic.
type diagnostics struct {
	QueueBytes []byte
	PendingIDs []uint32
}

// MemoryUsage returns an approximate byte count for the isolate's
// native-side state, analogous to (but far less precise than) V8's
// HeapStatistics. It never touches the engine, so it is safe to call
// concurrently with running JS.
func (iso *Isolate) MemoryUsage() uint64 {
	d := diagnostics{
		QueueBytes: iso.Queue.Bytes(),
		PendingIDs: iso.Registry.PendingIDs(),
	}
	return memsize.Scan(d).Total
}
