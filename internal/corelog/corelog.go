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

// Package corelog is the structured, leveled logger used throughout corejs.
// Call sites follow the same shape as the rest of the corpus: a message
// followed by alternating key/value pairs, e.g.
//
//	corelog.Info("isolate created", "id", iso.ID, "queueSize", n)
//
// Output is colorized key=value text on a terminal and plain text
// otherwise, decided once at init via mattn/go-isatty, with ANSI color
// applied through fatih/color and mattn/go-colorable so it also works on
// legacy Windows consoles.
package corelog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a log severity, ordered least to most severe.
type Level int

const (
	// LevelDump is noisier than Debug: it renders a value's full structure
	// via go-spew rather than its %v form, for test helpers and one-off
	// diagnosis that want to see a struct's guts, not a log line about it.
	LevelDump Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

func (l Level) String() string {
	switch l {
	case LevelDump:
		return "DUMP"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRIT"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDump:  color.New(color.FgHiBlack),
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
	LevelCrit:  color.New(color.FgHiRed, color.Bold),
}

// Logger is a leveled logger carrying a fixed set of context key/values,
// attached with New.
type Logger struct {
	ctx []interface{}
}

var (
	mu          sync.Mutex
	out         io.Writer
	useColor    bool
	minLevel    = int32(LevelInfo)
	callerDepth = 3
	root        = &Logger{}
)

func init() {
	if f, ok := any(os.Stderr).(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorableStderr()
		useColor = true
	} else {
		out = os.Stderr
	}
}

// SetOutput redirects all logging to w, disabling color (callers that want
// color on a non-*os.File writer should wrap it themselves).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	useColor = false
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	atomic.StoreInt32(&minLevel, int32(l))
}

// New returns a Logger that prefixes every record with ctx, a sequence of
// alternating keys and values, in addition to the call site's own pairs.
func New(ctx ...interface{}) *Logger {
	return &Logger{ctx: append([]interface{}{}, ctx...)}
}

func (l *Logger) log(level Level, msg string, kv []interface{}) {
	if Level(atomic.LoadInt32(&minLevel)) > level {
		return
	}
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000")

	mu.Lock()
	defer mu.Unlock()

	if useColor {
		c := levelColor[level]
		b.WriteString(c.Sprintf("%-5s", level.String()))
	} else {
		fmt.Fprintf(&b, "%-5s", level.String())
	}
	fmt.Fprintf(&b, "[%s] %s", ts, msg)

	all := make([]interface{}, 0, len(l.ctx)+len(kv))
	all = append(all, l.ctx...)
	all = append(all, kv...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if len(all)%2 == 1 {
		fmt.Fprintf(&b, " %v=MISSING", all[len(all)-1])
	}
	if level >= LevelError {
		fmt.Fprintf(&b, " caller=%v", stack.Caller(callerDepth))
	}
	b.WriteByte('\n')
	io.WriteString(out, b.String())
}

// Dump logs msg followed by go-spew's full recursive rendering of v, at
// LevelDump. Intended for test failures and ad hoc debugging, not for
// routine operation: spew.Sdump walks the whole value graph and is far
// louder than a normal key=value line.
func (l *Logger) Dump(msg string, v interface{}) {
	l.log(LevelDump, msg+"\n"+spew.Sdump(v), nil)
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(LevelError, msg, kv) }
func (l *Logger) Crit(msg string, kv ...interface{})  { l.log(LevelCrit, msg, kv); os.Exit(1) }

// New returns a child Logger with additional fixed context.
func (l *Logger) New(ctx ...interface{}) *Logger {
	return &Logger{ctx: append(append([]interface{}{}, l.ctx...), ctx...)}
}

// Package-level convenience functions logging through root, mirroring the
// bare log.Info(...) call style used throughout the corpus.
func Dump(msg string, v interface{})      { root.Dump(msg, v) }
func Debug(msg string, kv ...interface{}) { root.log(LevelDebug, msg, kv) }
func Info(msg string, kv ...interface{})  { root.log(LevelInfo, msg, kv) }
func Warn(msg string, kv ...interface{})  { root.log(LevelWarn, msg, kv) }
func Error(msg string, kv ...interface{}) { root.log(LevelError, msg, kv) }
func Crit(msg string, kv ...interface{})  { root.log(LevelCrit, msg, kv); os.Exit(1) }
