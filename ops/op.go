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

// Package ops implements the op registry and the Op result model: the
// classification of a dispatched call as synchronous, asynchronous, or
// asynchronous-but-unref'd.
package ops

// Future is the payload an async op eventually resolves to. It is modeled
// as a channel so the isolate driver can poll it without blocking: a
// non-blocking receive that succeeds means the op is ready.
type Future <-chan []byte

// Kind discriminates the three Op variants.
type Kind int

const (
	// KindSync carries its payload immediately.
	KindSync Kind = iota
	// KindAsync carries a Future; its pendency keeps the isolate alive.
	KindAsync
	// KindAsyncUnref carries a Future that does not keep the isolate alive.
	KindAsyncUnref
)

// Op is the tagged result a Handler returns. The variant, once returned, is
// final.
type Op struct {
	Kind    Kind
	Payload []byte // valid when Kind == KindSync
	Future  Future // valid when Kind == KindAsync or KindAsyncUnref
}

// Sync constructs a synchronous Op.
func Sync(payload []byte) Op {
	return Op{Kind: KindSync, Payload: payload}
}

// Async constructs an asynchronous Op whose pendency keeps the isolate
// alive.
func Async(f Future) Op {
	return Op{Kind: KindAsync, Future: f}
}

// AsyncUnref constructs an asynchronous Op that does not keep the isolate
// alive while pending.
func AsyncUnref(f Future) Op {
	return Op{Kind: KindAsyncUnref, Future: f}
}

// Resolved returns a Future that is already ready with payload, useful for
// ops whose "async" shape is a formality (e.g. already-available data
// delivered through the batching path instead of the sync return value).
func Resolved(payload []byte) Future {
	ch := make(chan []byte, 1)
	ch <- payload
	close(ch)
	return ch
}
