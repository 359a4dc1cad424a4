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

// Package zerocopy implements a borrowed view into engine-owned ArrayBuffer
// storage, passed to op handlers as the optional second dispatch argument.
package zerocopy

import "sync/atomic"

// Buf is a read/write view into byte storage owned by the JS engine. It does
// not copy: Bytes() returns a slice that aliases the engine's own backing
// array for as long as the Buf is alive. Concurrent mutation from JS while an
// async op holds a Buf is the caller's contract to manage, not this package's.
type Buf struct {
	data []byte

	// keepAlive anchors a reference to whatever engine-side value backs
	// data (e.g. a goja.ArrayBuffer), so the engine cannot reclaim the
	// storage while this Buf is reachable. It is never read.
	keepAlive interface{}

	released int32
}

// FromBytes wraps a native Go slice that is not backed by any engine value
// (e.g. a snapshot blob, or a buffer constructed for a test).
func FromBytes(data []byte) *Buf {
	return &Buf{data: data}
}

// FromEngineBacked wraps a slice that aliases storage owned by ref, keeping
// ref alive for the lifetime of the returned Buf.
func FromEngineBacked(data []byte, ref interface{}) *Buf {
	return &Buf{data: data, keepAlive: ref}
}

// Bytes returns the current view. It returns nil once Release has been
// called; callers must not retain the slice past Release.
func (b *Buf) Bytes() []byte {
	if b == nil || atomic.LoadInt32(&b.released) != 0 {
		return nil
	}
	return b.data
}

// Len reports the view's length, or 0 if nil or released.
func (b *Buf) Len() int {
	return len(b.Bytes())
}

// Release drops the lifetime-extending reference to the engine storage. The
// handler must not touch the Buf afterwards.
func (b *Buf) Release() {
	if b == nil {
		return
	}
	atomic.StoreInt32(&b.released, 1)
	b.data = nil
	b.keepAlive = nil
}
