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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMmapPushShiftRoundTrip(t *testing.T) {
	q, err := NewMmap(RecommendedSize)
	require.NoError(t, err)
	defer q.Close()

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

// TestMmapPushAtCapacityBoundary pushes an unaligned 5-byte payload into a
// region sized to hold exactly one 12-byte record (4-byte op id plus the
// payload padded to 8), exercising the align4 padding write against the
// mmap'd region's own capacity boundary rather than a Go-heap slice.
func TestMmapPushAtCapacityBoundary(t *testing.T) {
	q, err := NewMmap(headerBytes + 12)
	require.NoError(t, err)
	defer q.Close()

	require.True(t, q.Push(9, []byte{1, 2, 3, 4, 5}))
	require.False(t, q.Push(10, []byte{1}))

	opID, payload, ok := q.Shift()
	require.True(t, ok)
	assert.Equal(t, uint32(9), opID)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, payload)
	assert.Equal(t, 0, q.Size())
}

func TestMmapCloseUnmapsRegion(t *testing.T) {
	q, err := NewMmap(RecommendedSize)
	require.NoError(t, err)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close()) // idempotent
}

func TestMmapSatisfiesBackend(t *testing.T) {
	var _ Backend = (*Queue)(nil)
	var _ Backend = (*MmapQueue)(nil)
}
