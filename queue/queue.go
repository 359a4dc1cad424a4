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

// Package queue implements the fixed-size single-producer/single-consumer
// byte ring used to batch async op responses back into JS.
//
// There is no lock. Correctness depends entirely on strict phase
// alternation: native code holds the queue only during a poll step, JS holds
// it only while draining inside the receive callback, and the two phases
// never overlap. Do not add synchronization here to paper over a caller that
// violates the alternation; fix the caller instead.
package queue

import "encoding/binary"

const (
	// MaxRecords bounds how many records a single poll pass may pack
	// before a push must fail over to the overflow path.
	MaxRecords = 100

	// RecommendedSize is the default queue allocation: 2 MiB.
	RecommendedSize = 2 << 20

	idxNumRecords    = 0
	idxNumShiftedOff = 1
	idxHead          = 2
	idxOffsets       = 3

	headerWords = idxOffsets + MaxRecords
	headerBytes = headerWords * 4
)

// Queue is the flat-layout shared ring described in the wire format: a fixed
// header of 32-bit little-endian fields followed by an append-only record
// area of (op_id, payload) records padded to 4-byte alignment.
type Queue struct {
	buf []byte

	// lengths holds the exact, unpadded payload length of each record
	// pushed since the last reset. It is native-side-only bookkeeping: the
	// wire format's OFFSETS array stores the *padded* end (so that
	// HEAD == OFFSETS[NUM_RECORDS-1] as required), which on its own is not
	// enough to recover a payload length that wasn't already a multiple of
	// 4 bytes. A JS-side mirror reading only the shared buffer sees the
	// padded slice (a handful of trailing zero bytes at most); the native
	// Shift below returns the exact bytes that were pushed.
	lengths [MaxRecords]int
}

// New allocates a queue backed by a plain Go slice of size bytes.
func New(size int) *Queue {
	if size < headerBytes {
		size = headerBytes
	}
	return &Queue{buf: make([]byte, size)}
}

// Bytes returns the raw buffer, as mapped to JS as a SharedArrayBuffer.
func (q *Queue) Bytes() []byte { return q.buf }

func align4(n int) int { return (n + 3) &^ 3 }

func (q *Queue) u32(word int) uint32 {
	return binary.LittleEndian.Uint32(q.buf[word*4:])
}

func (q *Queue) setU32(word int, v uint32) {
	binary.LittleEndian.PutUint32(q.buf[word*4:], v)
}

func (q *Queue) numRecords() int    { return int(q.u32(idxNumRecords)) }
func (q *Queue) numShiftedOff() int { return int(q.u32(idxNumShiftedOff)) }
func (q *Queue) head() int          { return int(q.u32(idxHead)) }
func (q *Queue) offset(i int) int   { return int(q.u32(idxOffsets + i)) }

func (q *Queue) recordAreaCap() int { return len(q.buf) - headerBytes }

// Reset clears the queue to empty.
func (q *Queue) Reset() {
	q.setU32(idxNumRecords, 0)
	q.setU32(idxNumShiftedOff, 0)
	q.setU32(idxHead, 0)
	q.lengths = [MaxRecords]int{}
}

// Push appends an (op_id, payload) record. It returns false, leaving the
// queue unchanged, if the record would exceed MaxRecords or the remaining
// record-area capacity; the caller must then use the overflow path.
func (q *Queue) Push(opID uint32, payload []byte) bool {
	n := q.numRecords()
	if n >= MaxRecords {
		return false
	}
	head := q.head()
	padded := align4(len(payload))
	recLen := 4 + padded
	if head+recLen > q.recordAreaCap() {
		return false
	}

	base := headerBytes + head
	binary.LittleEndian.PutUint32(q.buf[base:], opID)
	copy(q.buf[base+4:], payload)
	for i := len(payload); i < padded; i++ {
		q.buf[base+4+i] = 0
	}

	newHead := head + recLen
	q.setU32(idxOffsets+n, uint32(newHead))
	q.setU32(idxHead, uint32(newHead))
	q.setU32(idxNumRecords, uint32(n+1))
	q.lengths[n] = len(payload)
	return true
}

// Shift removes and returns the oldest unconsumed record, if any. When the
// returned record is the last outstanding one, the queue collapses to an
// implicit reset so the next Push starts from an empty queue.
func (q *Queue) Shift() (opID uint32, payload []byte, ok bool) {
	shifted := q.numShiftedOff()
	n := q.numRecords()
	if shifted == n {
		return 0, nil, false
	}

	begin := 0
	if shifted > 0 {
		begin = q.offset(shifted - 1)
	}
	base := headerBytes + begin
	opID = binary.LittleEndian.Uint32(q.buf[base:])

	length := q.lengths[shifted]
	payload = make([]byte, length)
	copy(payload, q.buf[base+4:base+4+length])

	shifted++
	if shifted == n {
		q.Reset()
	} else {
		q.setU32(idxNumShiftedOff, uint32(shifted))
	}
	return opID, payload, true
}

// Size reports the number of records not yet consumed by Shift.
func (q *Queue) Size() int {
	return q.numRecords() - q.numShiftedOff()
}
