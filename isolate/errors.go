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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Frame is one entry of a JSError's stack trace.
type Frame struct {
	TypeName      string `json:"typeName"`
	FunctionName  string `json:"functionName"`
	ScriptName    string `json:"scriptName"`
	LineNumber    int    `json:"lineNumber"`
	Column        int    `json:"column"`
	IsEval        bool   `json:"isEval"`
	IsConstructor bool   `json:"isConstructor"`
}

// JSError is the stable JSON shape spec.md 6 defines for every captured JS
// runtime exception: uncaught throws, unhandled promise rejections, and
// compile errors all funnel through here.
type JSError struct {
	Message            string  `json:"message"`
	SourceLine         string  `json:"sourceLine"`
	ScriptResourceName string  `json:"scriptResourceName"`
	LineNumber         int     `json:"lineNumber"`
	StartColumn        int     `json:"startColumn"`
	EndColumn          int     `json:"endColumn"`
	Frames             []Frame `json:"frames"`

	// Value holds the offending JS value when the error originated from
	// one (e.g. a rejected promise's reason), so host code can inspect it
	// later. A Go-held goja.Value is itself the "persistent handle" spec.md
	// 4.7 describes: ordinary GC keeps it alive without a manual
	// Persistent<> wrapper.
	Value goja.Value `json:"-"`
}

// Error implements the error interface.
func (e *JSError) Error() string {
	if e.ScriptResourceName != "" {
		return fmt.Sprintf("%s (%s:%d:%d)", e.Message, e.ScriptResourceName, e.LineNumber, e.StartColumn)
	}
	return e.Message
}

// JSON renders the structured exception as the canonical JSON form.
func (e *JSError) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// unhandledRejectionError wraps a rejected-and-unhandled promise's reason so
// captureException can turn it into a JSError carrying that value.
type unhandledRejectionError struct {
	value goja.Value
}

func (e *unhandledRejectionError) Error() string {
	if e.value == nil {
		return "unhandled promise rejection"
	}
	return "unhandled promise rejection: " + e.value.String()
}

// terminatedMessage is the distinguishable message a caller sees after
// cross-thread termination, per spec.md 7.4.
const terminatedMessage = "execution terminated"

// newJSError builds the structured exception from whatever error goja
// returned out of RunProgram/RunString/Compile. It never panics: a failure
// to extract detail degrades to a best-effort message rather than losing
// the original error.
func newJSError(err error) *JSError {
	je := &JSError{Message: err.Error()}

	var rejected *unhandledRejectionError
	if errors.As(err, &rejected) {
		je.Value = rejected.value
		if rejected.value != nil {
			je.Message = rejected.value.String()
		}
		return je
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		je.Message = terminatedMessage
		return je
	}

	var jsExc *goja.Exception
	if errors.As(err, &jsExc) {
		je.Value = jsExc.Value()
		if obj, ok := je.Value.(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				je.Message = msg.String()
			}
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				frames, scriptName, line, col := parseStack(stack.String())
				je.Frames = frames
				je.ScriptResourceName = scriptName
				je.LineNumber = line
				je.StartColumn = col
				je.EndColumn = col
			}
		} else {
			je.Message = je.Value.String()
		}
		return je
	}

	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		je.Message = syntaxErr.Error()
	}

	return je
}

// parseStack best-effort parses a V8/goja-style "at fn (file:line:col)"
// stack string into the frames[] shape spec.md 6 names, dropping the
// "(pc)" program-counter suffix goja appends to each location. Source maps and
// exact column fidelity across engines are explicitly out of scope
// (spec.md 1); this is a readable approximation, not a byte-for-byte port
// of V8's StackTrace API.
func parseStack(stack string) (frames []Frame, scriptName string, line, col int) {
	lines := strings.Split(stack, "\n")
	for _, raw := range lines[1:] {
		l := strings.TrimSpace(raw)
		if !strings.HasPrefix(l, "at ") {
			continue
		}
		l = strings.TrimPrefix(l, "at ")
		fn := "<anonymous>"
		loc := l
		if idx := strings.Index(l, " ("); idx >= 0 && strings.HasSuffix(l, ")") {
			fn = strings.TrimSpace(l[:idx])
			loc = l[idx+2 : len(l)-1]
		}
		if idx := strings.LastIndex(loc, "("); idx >= 0 && strings.HasSuffix(loc, ")") {
			loc = loc[:idx]
		}
		parts := strings.Split(loc, ":")
		f := Frame{FunctionName: fn, TypeName: "Object", ScriptName: loc}
		if len(parts) >= 3 {
			f.ScriptName = strings.Join(parts[:len(parts)-2], ":")
			f.LineNumber, _ = strconv.Atoi(parts[len(parts)-2])
			f.Column, _ = strconv.Atoi(parts[len(parts)-1])
		}
		frames = append(frames, f)
	}
	if len(frames) > 0 {
		return frames, frames[0].ScriptName, frames[0].LineNumber, frames[0].Column
	}
	return nil, "", 0, 0
}
