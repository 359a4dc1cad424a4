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
	"fmt"
	"io"

	"github.com/dop251/goja"

	"github.com/probeum/corejs/ops"
	"github.com/probeum/corejs/zerocopy"
)

// installBindings installs the core.* surface named in spec.md 4.5/6:
// send, dispatch (alias), recv, print, setMacrotaskCallback, shared, ops.
// core.setAsyncHandler is a JS-side table populated by the bootstrap
// script, never by native code.
func (iso *Isolate) installBindings() error {
	vm := iso.vm
	coreObj := vm.NewObject()

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(coreObj.Set("send", iso.jsDispatch))
	must(coreObj.Set("dispatch", iso.jsDispatch))
	must(coreObj.Set("recv", iso.jsRecv))
	must(coreObj.Set("print", iso.jsPrint))
	must(coreObj.Set("setMacrotaskCallback", iso.jsSetMacrotaskCallback))
	must(coreObj.Set("shared", vm.NewArrayBuffer(iso.Queue.Bytes())))
	must(coreObj.Set("ops", iso.jsOps))

	return vm.Set("core", coreObj)
}

// jsDispatch implements spec.md 4.6 step 3 (the dispatch path) and backs
// both core.send and core.dispatch.
func (iso *Isolate) jsDispatch(call goja.FunctionCall) goja.Value {
	vm := iso.vm
	if iso.Queue.Size() != 0 {
		panic(vm.NewTypeError("core.dispatch called while the shared queue is not drained"))
	}
	if len(call.Arguments) < 2 {
		panic(vm.NewTypeError("core.dispatch requires (op_id, control[, zero_copy])"))
	}

	opID := uint32(call.Arguments[0].ToInteger())
	control, err := bytesFromArg(vm, call.Arguments[1])
	if err != nil {
		panic(vm.NewTypeError(err.Error()))
	}

	var zc *zerocopy.Buf
	if len(call.Arguments) > 2 && !goja.IsUndefined(call.Arguments[2]) {
		buf, ab, err := zeroCopyFromArg(vm, call.Arguments[2])
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		zc = zerocopy.FromEngineBacked(buf, ab)
	}

	op, ok := iso.Registry.Call(opID, control, zc)
	if !ok {
		panic(vm.NewTypeError(fmt.Sprintf("Unknown op id: %d", opID)))
	}

	defer func() {
		if iso.Queue.Size() != 0 {
			panic(vm.NewTypeError("core.dispatch: op handler left records queued"))
		}
	}()

	switch op.Kind {
	case ops.KindSync:
		return bytesToUint8Array(vm, op.Payload)
	case ops.KindAsync:
		iso.enqueueAsync(opID, op.Future, false)
		return goja.Undefined()
	case ops.KindAsyncUnref:
		iso.enqueueAsync(opID, op.Future, true)
		return goja.Undefined()
	default:
		return goja.Undefined()
	}
}

// jsRecv implements core.recv: at most one receiver for the isolate's
// lifetime.
func (iso *Isolate) jsRecv(call goja.FunctionCall) goja.Value {
	vm := iso.vm
	if len(call.Arguments) < 1 {
		panic(vm.NewTypeError("core.recv requires a callback"))
	}
	fn, ok := goja.AssertFunction(call.Arguments[0])
	if !ok {
		panic(vm.NewTypeError("core.recv argument must be a function"))
	}

	iso.mu.Lock()
	defer iso.mu.Unlock()
	if iso.recvCallback != nil {
		panic(vm.NewTypeError("core.recv: a receiver is already registered"))
	}
	iso.recvCallback = fn
	return goja.Undefined()
}

// jsPrint implements core.print(str[, isErr]).
func (iso *Isolate) jsPrint(call goja.FunctionCall) goja.Value {
	str := call.Argument(0).String()
	var w io.Writer = iso.stdout
	if len(call.Arguments) > 1 && call.Arguments[1].ToBoolean() {
		w = iso.stderr
	}
	fmt.Fprint(w, str)
	return goja.Undefined()
}

// jsSetMacrotaskCallback implements the optional core.setMacrotaskCallback
// helper named in spec.md 4.5.
func (iso *Isolate) jsSetMacrotaskCallback(call goja.FunctionCall) goja.Value {
	vm := iso.vm
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(vm.NewTypeError("core.setMacrotaskCallback requires a function"))
	}
	iso.mu.Lock()
	iso.macrotaskCallback = fn
	iso.mu.Unlock()
	return goja.Undefined()
}

// jsOps implements core.ops(): a snapshot of the registry's name->id table.
func (iso *Isolate) jsOps(call goja.FunctionCall) goja.Value {
	return iso.vm.ToValue(iso.Registry.Snapshot())
}

// bytesFromArg extracts the backing bytes of an ArrayBuffer or typed-array
// argument without copying.
func bytesFromArg(vm *goja.Runtime, v goja.Value) ([]byte, error) {
	data, _, err := zeroCopyFromArg(vm, v)
	return data, err
}

// zeroCopyFromArg is like bytesFromArg but also returns the ArrayBuffer
// value itself, so callers that build a zerocopy.Buf can anchor a
// lifetime-extending reference to it.
func zeroCopyFromArg(vm *goja.Runtime, v goja.Value) ([]byte, goja.ArrayBuffer, error) {
	if ab, ok := v.Export().(goja.ArrayBuffer); ok {
		return ab.Bytes(), ab, nil
	}
	obj := v.ToObject(vm)
	if obj == nil {
		return nil, goja.ArrayBuffer{}, fmt.Errorf("expected an ArrayBuffer or typed array")
	}
	bufVal := obj.Get("buffer")
	if bufVal == nil || goja.IsUndefined(bufVal) {
		return nil, goja.ArrayBuffer{}, fmt.Errorf("expected an ArrayBuffer or typed array")
	}
	ab, ok := bufVal.Export().(goja.ArrayBuffer)
	if !ok {
		return nil, goja.ArrayBuffer{}, fmt.Errorf("expected an ArrayBuffer or typed array")
	}
	offset := int(obj.Get("byteOffset").ToInteger())
	length := int(obj.Get("byteLength").ToInteger())
	full := ab.Bytes()
	if offset < 0 || length < 0 || offset+length > len(full) {
		return nil, goja.ArrayBuffer{}, fmt.Errorf("typed array view out of bounds")
	}
	return full[offset : offset+length], ab, nil
}

// bytesToUint8Array wraps data in a new ArrayBuffer-backed Uint8Array,
// shared (not copied) with the Go slice.
func bytesToUint8Array(vm *goja.Runtime, data []byte) goja.Value {
	ab := vm.NewArrayBuffer(data)
	ctor := vm.Get("Uint8Array")
	obj, err := vm.New(ctor, vm.ToValue(ab))
	if err != nil {
		panic(vm.NewGoError(err))
	}
	return obj
}
