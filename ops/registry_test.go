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

package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/corejs/zerocopy"
)

func echoHandler(control []byte, zc *zerocopy.Buf) Op {
	out := make([]byte, len(control))
	copy(out, control)
	return Sync(out)
}

func TestRegisterAssignsStableIncreasingIDs(t *testing.T) {
	r := NewRegistry()

	id1, err := r.Register("test", echoHandler)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id1)

	id2, err := r.Register("other", echoHandler)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id2)

	snap := r.Snapshot()
	assert.Equal(t, id1, snap["test"])
	assert.Equal(t, id2, snap["other"])
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("test", echoHandler)
	require.NoError(t, err)

	_, err = r.Register("test", echoHandler)
	assert.Error(t, err)
}

func TestCallUnknownIDNotOK(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("test", echoHandler)
	require.NoError(t, err)

	_, ok := r.Call(100, nil, nil)
	assert.False(t, ok)
}

func TestCallSync(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register("test", echoHandler)
	require.NoError(t, err)

	op, ok := r.Call(id, []byte{42}, nil)
	require.True(t, ok)
	assert.Equal(t, KindSync, op.Kind)
	assert.Equal(t, []byte{42}, op.Payload)
}

func TestPendingBookkeeping(t *testing.T) {
	r := NewRegistry()
	r.MarkPending(5)
	r.MarkPending(6)
	assert.ElementsMatch(t, []uint32{5, 6}, r.PendingIDs())

	r.ClearPending(5)
	assert.ElementsMatch(t, []uint32{6}, r.PendingIDs())
}
