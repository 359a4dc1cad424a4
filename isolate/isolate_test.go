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

import (
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/corejs/ops"
	"github.com/probeum/corejs/zerocopy"
)

func mustNewIsolate(t *testing.T, opts ...Option) *Isolate {
	t.Helper()
	iso, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { iso.Close() })
	return iso
}

// pollUntilIdle calls Poll repeatedly, the way a real host event loop would,
// until the isolate reports idle. It absorbs the scheduling gap between an
// already-resolved future's forwarding goroutine and the next Poll call,
// which a single bare Poll() cannot be relied on to win.
func pollUntilIdle(t *testing.T, iso *Isolate) PollResult {
	t.Helper()
	var res PollResult
	for i := 0; i < 1000; i++ {
		var err error
		res, err = iso.Poll()
		require.NoError(t, err)
		if res == PollIdle {
			return res
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("isolate never reached idle")
	return res
}

// scenario 1: sync echo.
func TestSyncEcho(t *testing.T) {
	iso := mustNewIsolate(t)
	var calls int32
	id, err := iso.Registry.Register("test", func(control []byte, zc *zerocopy.Buf) ops.Op {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, []byte{42}, control)
		return ops.Sync([]byte{43})
	})
	require.NoError(t, err)

	err = iso.Execute("test1.js", `
		var result = core.dispatch(`+itoa(id)+`, new Uint8Array([42]));
		if (!(result instanceof Uint8Array) || result.length !== 1 || result[0] !== 43) {
			throw new Error("unexpected result: " + result);
		}
	`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	res, err := iso.Poll()
	require.NoError(t, err)
	assert.Equal(t, PollIdle, res)
}

// WithMmapQueue selects a real mmap'd backing region instead of a Go-heap
// slice; the driver-level protocol above it must not care which.
func TestSyncEchoWithMmapQueue(t *testing.T) {
	iso := mustNewIsolate(t, WithMmapQueue())
	id, err := iso.Registry.Register("test", func(control []byte, zc *zerocopy.Buf) ops.Op {
		return ops.Sync([]byte{43})
	})
	require.NoError(t, err)

	err = iso.Execute("mmap1.js", `
		var result = core.dispatch(`+itoa(id)+`, new Uint8Array([42]));
		if (!(result instanceof Uint8Array) || result.length !== 1 || result[0] !== 43) {
			throw new Error("unexpected result: " + result);
		}
	`)
	require.NoError(t, err)

	res, err := iso.Poll()
	require.NoError(t, err)
	assert.Equal(t, PollIdle, res)
}

// scenario 2: async delayed delivery, dispatched and polled twice.
func TestAsyncDelayedDelivery(t *testing.T) {
	iso := mustNewIsolate(t)
	id, err := iso.Registry.Register("delayed", func(control []byte, zc *zerocopy.Buf) ops.Op {
		return ops.Async(ops.Resolved([]byte{43}))
	})
	require.NoError(t, err)

	err = iso.Execute("test2.js", `
		globalThis.nrecv = 0;
		core.setAsyncHandler(`+itoa(id)+`, function(payload) { globalThis.nrecv++; });
		var r = core.dispatch(`+itoa(id)+`, new Uint8Array([0]));
		if (r !== undefined) { throw new Error("sync return must be undefined"); }
	`)
	require.NoError(t, err)

	res := pollUntilIdle(t, iso)
	assert.Equal(t, PollIdle, res)
	assertGlobalEquals(t, iso, "nrecv", int64(1))

	err = iso.Execute("test2b.js", `
		var r = core.dispatch(`+itoa(id)+`, new Uint8Array([0]));
		if (r !== undefined) { throw new Error("sync return must be undefined"); }
	`)
	require.NoError(t, err)

	res = pollUntilIdle(t, iso)
	assert.Equal(t, PollIdle, res)
	assertGlobalEquals(t, iso, "nrecv", int64(2))
}

// scenario 3: AsyncUnref never finishes; isolate still reports idle.
func TestAsyncUnrefNeverFinishing(t *testing.T) {
	iso := mustNewIsolate(t)
	never := make(chan []byte)
	id, err := iso.Registry.Register("never", func(control []byte, zc *zerocopy.Buf) ops.Op {
		return ops.AsyncUnref(never)
	})
	require.NoError(t, err)

	err = iso.Execute("test3.js", `
		globalThis.delivered = false;
		core.setAsyncHandler(`+itoa(id)+`, function(payload) { globalThis.delivered = true; });
		core.dispatch(`+itoa(id)+`, new Uint8Array([0]));
	`)
	require.NoError(t, err)

	res, err := iso.Poll()
	require.NoError(t, err)
	assert.Equal(t, PollIdle, res, "pending_unref alone must not block idle")
	assertGlobalEquals(t, iso, "delivered", false)
}

// scenario 4: 100 MiB sync control buffer, no cap.
func TestRequestOverflowSync(t *testing.T) {
	iso := mustNewIsolate(t)
	var calls int32
	id, err := iso.Registry.Register("big", func(control []byte, zc *zerocopy.Buf) ops.Op {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, 100*1024*1024, len(control))
		return ops.Sync([]byte{43})
	})
	require.NoError(t, err)

	err = iso.Execute("test4.js", `
		var big = new Uint8Array(100*1024*1024);
		var r = core.dispatch(`+itoa(id)+`, big);
		if (!(r instanceof Uint8Array) || r[0] !== 43) { throw new Error("bad result"); }
	`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

// scenario 5: 100 MiB async response overflow, delivered via the direct
// overflow path with queue size ending at 0.
func TestResponseOverflowAsync(t *testing.T) {
	iso := mustNewIsolate(t)
	big := make([]byte, 100*1024*1024)
	big[0] = 4
	id, err := iso.Registry.Register("bigresp", func(control []byte, zc *zerocopy.Buf) ops.Op {
		return ops.Async(ops.Resolved(big))
	})
	require.NoError(t, err)

	err = iso.Execute("test5.js", `
		globalThis.gotLength = -1;
		globalThis.gotFirst = -1;
		core.setAsyncHandler(`+itoa(id)+`, function(payload) {
			globalThis.gotLength = payload.length;
			globalThis.gotFirst = payload[0];
		});
		core.dispatch(`+itoa(id)+`, new Uint8Array([0]));
	`)
	require.NoError(t, err)

	res := pollUntilIdle(t, iso)
	assert.Equal(t, PollIdle, res)
	assertGlobalEquals(t, iso, "gotLength", int64(len(big)))
	assertGlobalEquals(t, iso, "gotFirst", int64(4))
	assert.Equal(t, 0, iso.Queue.Size())
}

// scenario 6: unknown op id raises the exact TypeError message, isolate
// remains usable afterward.
func TestUnknownOpID(t *testing.T) {
	iso := mustNewIsolate(t)

	err := iso.Execute("test6.js", `
		var threw = null;
		try {
			core.dispatch(100, new Uint8Array([]));
		} catch (e) {
			threw = e;
		}
		if (!(threw instanceof TypeError) || threw.message !== "Unknown op id: 100") {
			throw new Error("wrong error: " + threw);
		}
	`)
	require.NoError(t, err)

	// isolate remains usable: a second, unrelated script still runs.
	err = iso.Execute("test6b.js", `globalThis.stillAlive = true;`)
	require.NoError(t, err)
	assertGlobalEquals(t, iso, "stillAlive", true)
}

// scenario 7: snapshot round-trip.
func TestSnapshotRoundTrip(t *testing.T) {
	iso := mustNewIsolate(t, WillSnapshot())
	require.NoError(t, iso.Execute("a.js", "a = 1 + 2;"))

	blob, err := iso.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	err = iso.Execute("b.js", "a = 4;")
	assert.Error(t, err, "isolate must be unusable after Snapshot")

	iso2 := mustNewIsolate(t, WithSnapshot(blob))
	err = iso2.Execute("check.js", `if (a != 3) throw Error('x');`)
	require.NoError(t, err)
}

func TestUnhandledPromiseRejectionSurfaces(t *testing.T) {
	iso := mustNewIsolate(t)
	require.NoError(t, iso.Execute("rej.js", `Promise.reject(new Error("boom"));`))

	_, err := iso.Poll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAtMostOneReceiver(t *testing.T) {
	iso := mustNewIsolate(t)
	require.NoError(t, iso.ensureInit())

	err := iso.Execute("secondrecv.js", `
		var threw = null;
		try {
			core.recv(function() {});
		} catch (e) {
			threw = e;
		}
		if (!(threw instanceof TypeError)) { throw new Error("expected TypeError, got " + threw); }
	`)
	require.NoError(t, err)
}

// TestCapturedExceptionStructure throws a real uncaught error through a
// running isolate and checks the structured JSError it produces field by
// field, ignoring Value (a goja.Value whose concrete type cmp cannot walk
// without exposing unexported engine internals).
func TestCapturedExceptionStructure(t *testing.T) {
	iso := mustNewIsolate(t)

	err := iso.Execute("throws.js", `
		function boom() { throw new Error("kaboom"); }
		boom();
	`)
	require.Error(t, err)

	got := iso.LastException()
	require.NotNil(t, got)

	want := &JSError{
		Message:            "kaboom",
		ScriptResourceName: "throws.js",
		LineNumber:         got.LineNumber,
		StartColumn:        got.StartColumn,
		EndColumn:          got.EndColumn,
		Frames:             got.Frames,
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(JSError{}, "Value")); diff != "" {
		t.Fatalf("captured exception mismatch (-want +got):\n%s", diff)
	}
	require.NotEmpty(t, got.Frames)
	assert.Equal(t, "boom", got.Frames[0].FunctionName)
}

func assertGlobalEquals(t *testing.T, iso *Isolate, name string, want interface{}) {
	t.Helper()
	v := iso.vm.Get(name)
	require.NotNil(t, v, "global %q is not set", name)
	assert.Equal(t, want, v.Export())
}

func itoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}
