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
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/corejs/internal/corelog"
)

// dumpOnFailure registers a cleanup that spews the queue's header words and
// raw bytes via corelog.Dump if t has failed by the time the test returns,
// so a CI failure log shows the exact record layout instead of just an
// assertion diff.
func dumpOnFailure(t *testing.T, q *Queue) {
	t.Helper()
	t.Cleanup(func() {
		if t.Failed() {
			corelog.Dump("queue state at failure", struct {
				NumRecords    int
				NumShiftedOff int
				Head          int
				Bytes         []byte
			}{q.numRecords(), q.numShiftedOff(), q.head(), q.Bytes()})
		}
	})
}

func TestPushShiftRoundTrip(t *testing.T) {
	q := New(RecommendedSize)
	dumpOnFailure(t, q)

	type rec struct {
		opID    uint32
		payload []byte
	}
	want := []rec{
		{1, []byte{42}},
		{2, []byte("hello world")},
		{3, []byte{}},
		{4, []byte{1, 2, 3, 4, 5}},
	}
	for _, r := range want {
		require.True(t, q.Push(r.opID, r.payload))
	}

	for _, r := range want {
		opID, payload, ok := q.Shift()
		require.True(t, ok)
		assert.Equal(t, r.opID, opID)
		assert.Equal(t, r.payload, payload)
	}
	assert.Equal(t, 0, q.Size())
	_, _, ok := q.Shift()
	assert.False(t, ok)
}

func TestPushShiftRoundTripFuzz(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 512)
	q := New(RecommendedSize)

	type rec struct {
		opID    uint32
		payload []byte
	}
	var want []rec
	for i := 0; i < 16; i++ {
		var r rec
		f.Fuzz(&r.opID)
		f.Fuzz(&r.payload)
		if !q.Push(r.opID, r.payload) {
			break
		}
		want = append(want, r)
	}
	require.NotEmpty(t, want)

	for _, r := range want {
		opID, payload, ok := q.Shift()
		require.True(t, ok)
		assert.Equal(t, r.opID, opID)
		assert.Equal(t, r.payload, payload)
	}
	assert.Equal(t, 0, q.Size())
}

func TestPushCapacityOverflowPreservesPriorRecords(t *testing.T) {
	// A small queue whose record area can hold exactly one big record.
	q := New(headerBytes + 16)

	require.True(t, q.Push(7, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	// Second push doesn't fit in the remaining 4 bytes of record area.
	require.False(t, q.Push(8, []byte{9, 9, 9, 9, 9, 9, 9, 9, 9}))

	opID, payload, ok := q.Shift()
	require.True(t, ok)
	assert.Equal(t, uint32(7), opID)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, payload)
	assert.Equal(t, 0, q.Size())
}

func TestPushMaxRecordsOverflow(t *testing.T) {
	q := New(RecommendedSize)
	for i := 0; i < MaxRecords; i++ {
		require.True(t, q.Push(uint32(i), []byte{byte(i)}))
	}
	assert.False(t, q.Push(uint32(MaxRecords), []byte{1}))
	assert.Equal(t, MaxRecords, q.Size())
}

func TestAlignment(t *testing.T) {
	q := New(RecommendedSize)
	require.True(t, q.Push(1, []byte{1, 2, 3})) // 3 bytes -> padded record len 8
	require.True(t, q.Push(2, []byte{1}))        // 1 byte -> padded record len 8

	require.Equal(t, uint32(8), q.u32(idxOffsets+0))
	require.Equal(t, uint32(16), q.u32(idxOffsets+1))
}

func TestResetClearsState(t *testing.T) {
	q := New(RecommendedSize)
	require.True(t, q.Push(1, []byte{1}))
	q.Reset()
	assert.Equal(t, 0, q.Size())
	_, _, ok := q.Shift()
	assert.False(t, ok)
}
