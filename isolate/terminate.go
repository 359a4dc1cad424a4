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

import "github.com/dop251/goja"

// TerminateHandle is safe to hold and call from any goroutine, independent
// of the isolate's own owning goroutine, per spec.md 7.4's cross-thread
// termination requirement. It wraps goja.Runtime.Interrupt, which is
// documented thread-safe.
type TerminateHandle struct {
	vm *goja.Runtime
}

// Terminate interrupts any JS currently executing in the isolate. The
// interrupted call returns a *goja.InterruptedError, which captureException
// turns into a JSError whose Message is the distinguishable
// "execution terminated" string.
func (h *TerminateHandle) Terminate() {
	h.vm.Interrupt(terminatedMessage)
}

// CancelTerminate clears a pending interrupt request that has not yet been
// observed by running JS, allowing the isolate to keep executing. It has no
// effect if no interrupt is pending.
func (h *TerminateHandle) CancelTerminate() {
	h.vm.ClearInterrupt()
}
