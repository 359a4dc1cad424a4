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

package queue

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Backend is what an Isolate needs from a queue implementation: push a
// record natively, report how many are outstanding, and expose the raw
// bytes as the buffer mapped into JS as a SharedArrayBuffer. *Queue and
// *MmapQueue both satisfy it.
type Backend interface {
	Bytes() []byte
	Push(opID uint32, payload []byte) bool
	Size() int
}

// MmapQueue is a Queue whose backing storage is a real anonymous memory
// mapping instead of a Go-heap slice, so a host that needs to map the queue
// into a second OS process (a sandboxed worker, say) can do so directly
// instead of copying it across.
type MmapQueue struct {
	Queue
	region mmap.MMap
}

// NewMmap allocates an anonymous read/write mapping of size bytes and wraps
// it in the same flat layout as Queue.
func NewMmap(size int) (*MmapQueue, error) {
	if size < headerBytes {
		size = headerBytes
	}
	f, err := os.CreateTemp("", "corejs-queue-*")
	if err != nil {
		return nil, fmt.Errorf("queue: create backing file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("queue: size backing file: %w", err)
	}
	region, err := mmap.Map(f, mmap.RDWR, 0)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("queue: mmap: %w", err)
	}
	q := &MmapQueue{region: region}
	q.buf = region
	return q, nil
}

// Close unmaps the backing region. The MmapQueue must not be used
// afterwards.
func (q *MmapQueue) Close() error {
	if q.region == nil {
		return nil
	}
	err := q.region.Unmap()
	q.region = nil
	q.buf = nil
	return err
}
