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

// Package isolate implements the isolate driver: it owns a goja.Runtime
// standing in for spec.md's "V8 isolate", drives the two pending-op future
// sets, and re-enters JS to deliver async results.
//
// Driver state lives in a single struct guarded by one mutex (the
// "interior-mutable cell" of spec.md 9), and the mutex is never held across
// a call into the engine: the engine can re-enter native code (a dispatch)
// from inside that call, and a held lock there would deadlock against the
// very state the call needs to read.
package isolate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/probeum/corejs/internal/corelog"
	"github.com/probeum/corejs/isolate/scriptcache"
	"github.com/probeum/corejs/ops"
	"github.com/probeum/corejs/queue"
)

// PollResult reports the outcome of a single Poll call.
type PollResult int

const (
	// PollIdle means the pending set is empty; the isolate needs no
	// further driving until a new dispatch occurs.
	PollIdle PollResult = iota
	// PollPending means at least one async op is still outstanding.
	PollPending
)

type readyMsg struct {
	opID    uint32
	payload []byte
}

type rejection struct {
	promise *goja.Promise
	value   goja.Value
}

// Isolate owns one goja.Runtime and the bookkeeping spec.md 3 assigns to
// "Isolate": the op registry, the shared queue, the two pending sets, the
// promise-rejection table, and the one-shot init / snapshot state machine.
type Isolate struct {
	ID uuid.UUID

	vm       *goja.Runtime
	Registry *ops.Registry
	Queue    queue.Backend

	stdout, stderr io.Writer
	scriptCache    *scriptcache.Cache

	mu                sync.Mutex
	needsInit         bool
	recvCallback      goja.Callable
	macrotaskCallback goja.Callable
	pendingCount      int
	pendingUnrefCount int
	rejections        map[uuid.UUID]rejection
	rejectionKeys     map[*goja.Promise]uuid.UUID
	lastException     *JSError
	errorConstructor  func(*JSError) error
	usable            bool

	startupSource   string
	startupFilename string
	willSnapshot    bool
	snapshotCreator *snapshotManifest

	ready  chan readyMsg
	wake   chan struct{}
	closed chan struct{}

	// fwd bounds the lifetime of every future-forwarding goroutine spawned
	// by enqueueAsync: Close waits on it so a dropped isolate never leaves
	// forwarders running past its own lifetime, the same guarantee
	// spec.md §5 asks of "dropping the isolate drops its pending sets".
	fwd errgroup.Group
}

type config struct {
	queueSize       int
	useMmapQueue    bool
	startupSource   string
	startupFilename string
	snapshotBlob    []byte
	willSnapshot    bool
	stdout, stderr  io.Writer
	scriptCacheSize int
}

// Option configures a new Isolate.
type Option func(*config)

// WithQueueSize overrides the default 2 MiB SharedQueue allocation.
func WithQueueSize(n int) Option { return func(c *config) { c.queueSize = n } }

// WithMmapQueue backs the SharedQueue with a real anonymous memory mapping
// (queue.NewMmap) instead of a Go-heap slice, so a host that needs to share
// the queue with a second OS process can map it directly.
func WithMmapQueue() Option { return func(c *config) { c.useMmapQueue = true } }

// WithStartupScript runs source (named filename) once, immediately after
// the bootstrap script, during the isolate's one-shot init.
func WithStartupScript(source, filename string) Option {
	return func(c *config) { c.startupSource, c.startupFilename = source, filename }
}

// WithSnapshot constructs the isolate by replaying a blob produced by a
// prior Snapshot() call, instead of running the bootstrap script fresh.
func WithSnapshot(blob []byte) Option { return func(c *config) { c.snapshotBlob = blob } }

// WillSnapshot marks the isolate for snapshotting: every top-level script it
// runs is recorded so a later Snapshot() call can produce a replayable blob.
func WillSnapshot() Option { return func(c *config) { c.willSnapshot = true } }

// WithStdio overrides core.print's destinations (default os.Stdout/Stderr).
func WithStdio(stdout, stderr io.Writer) Option {
	return func(c *config) { c.stdout, c.stderr = stdout, stderr }
}

// WithScriptCacheSize overrides the compiled-program LRU cache capacity
// (default 64).
func WithScriptCacheSize(n int) Option { return func(c *config) { c.scriptCacheSize = n } }

// New constructs an isolate in one of three startup modes: no startup data,
// a startup script (WithStartupScript), or a snapshot (WithSnapshot).
// WillSnapshot and WithSnapshot are mutually exclusive, per spec.md 4.6
// step 6 ("forbids loading any pre-existing snapshot").
func New(opts ...Option) (*Isolate, error) {
	cfg := config{
		queueSize:       queue.RecommendedSize,
		stdout:          os.Stdout,
		stderr:          os.Stderr,
		scriptCacheSize: 64,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.snapshotBlob != nil && cfg.willSnapshot {
		return nil, errors.New("isolate: cannot combine WithSnapshot and WillSnapshot")
	}

	cache, err := scriptcache.New(cfg.scriptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("isolate: script cache: %w", err)
	}

	var q queue.Backend
	if cfg.useMmapQueue {
		mq, err := queue.NewMmap(cfg.queueSize)
		if err != nil {
			return nil, fmt.Errorf("isolate: mmap queue: %w", err)
		}
		q = mq
	} else {
		q = queue.New(cfg.queueSize)
	}

	iso := &Isolate{
		ID:              uuid.New(),
		vm:              goja.New(),
		Registry:        ops.NewRegistry(),
		Queue:           q,
		stdout:          cfg.stdout,
		stderr:          cfg.stderr,
		scriptCache:     cache,
		needsInit:       true,
		usable:          true,
		rejections:      make(map[uuid.UUID]rejection),
		rejectionKeys:   make(map[*goja.Promise]uuid.UUID),
		startupSource:   cfg.startupSource,
		startupFilename: cfg.startupFilename,
		willSnapshot:    cfg.willSnapshot,
		ready:           make(chan readyMsg, queue.MaxRecords),
		wake:            make(chan struct{}, 1),
		closed:          make(chan struct{}),
	}
	if cfg.willSnapshot {
		iso.snapshotCreator = newSnapshotManifest()
	}

	iso.vm.SetPromiseRejectionTracker(iso.onPromiseRejection)
	if err := iso.installBindings(); err != nil {
		return nil, fmt.Errorf("isolate: install bindings: %w", err)
	}

	if cfg.snapshotBlob != nil {
		if err := iso.replaySnapshot(cfg.snapshotBlob); err != nil {
			return nil, err
		}
		iso.needsInit = false
	}

	corelog.Debug("isolate created", "id", iso.ID, "queueSize", cfg.queueSize)
	return iso, nil
}

// Close releases the isolate. Futures belonging to never-resolving
// AsyncUnref ops are abandoned rather than leaked forever: their forwarding
// goroutines observe closed and exit without delivering a result, matching
// spec.md 5's "dropping the isolate drops its pending sets and their
// futures".
func (iso *Isolate) Close() error {
	select {
	case <-iso.closed:
	default:
		close(iso.closed)
	}
	iso.fwd.Wait()
	if c, ok := iso.Queue.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (iso *Isolate) ensureInit() error {
	if !iso.needsInit {
		return nil
	}
	if err := iso.runSource(bootstrapFilename, bootstrapSource, true); err != nil {
		return fmt.Errorf("isolate: bootstrap: %w", err)
	}
	if iso.startupSource != "" {
		if err := iso.runSource(iso.startupFilename, iso.startupSource, true); err != nil {
			return err
		}
	}
	iso.needsInit = false
	return nil
}

func (iso *Isolate) runSource(filename, source string, record bool) error {
	prog, err := iso.scriptCache.Compile(filename, source, false)
	if err != nil {
		return iso.captureException(err)
	}
	if _, err := iso.vm.RunProgram(prog); err != nil {
		return iso.captureException(err)
	}
	if record && iso.snapshotCreator != nil {
		iso.snapshotCreator.record(filename, source)
	}
	return nil
}

// Execute compiles and runs source under filename in the isolate's global
// context, per spec.md 4.6 step 2.
func (iso *Isolate) Execute(filename, source string) error {
	if !iso.usable {
		return errors.New("isolate: used after snapshot")
	}
	if err := iso.ensureInit(); err != nil {
		return err
	}
	return iso.runSource(filename, source, true)
}

// SetErrorConstructor installs a hook that transforms the structured
// exception JSON into the host's own error type before it reaches the host,
// per spec.md 9.
func (iso *Isolate) SetErrorConstructor(fn func(*JSError) error) {
	iso.mu.Lock()
	iso.errorConstructor = fn
	iso.mu.Unlock()
}

// LastException returns the most recently captured structured exception, if
// any.
func (iso *Isolate) LastException() *JSError {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	return iso.lastException
}

func (iso *Isolate) captureException(err error) error {
	je := newJSError(err)
	iso.mu.Lock()
	iso.lastException = je
	ctor := iso.errorConstructor
	iso.mu.Unlock()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		iso.vm.ClearInterrupt()
	}

	corelog.Warn("isolate exception", "id", iso.ID, "message", je.Message)
	if ctor != nil {
		return ctor(je)
	}
	return je
}

// TerminateHandle returns a thread-safe handle that can request termination
// of any JS currently executing in this isolate from another goroutine.
func (iso *Isolate) TerminateHandle() *TerminateHandle {
	return &TerminateHandle{vm: iso.vm}
}

// enqueueAsync records a dispatched async/async-unref op and spawns the
// goroutine that forwards its eventual result into the ready channel Poll
// drains. The future itself may be composed of arbitrary cross-thread
// primitives (spec.md 5); the isolate only ever polls the forwarding
// channel from its own owning goroutine.
func (iso *Isolate) enqueueAsync(opID uint32, fut ops.Future, unref bool) {
	iso.Registry.MarkPending(opID)
	iso.mu.Lock()
	if unref {
		iso.pendingUnrefCount++
	} else {
		iso.pendingCount++
	}
	iso.mu.Unlock()

	iso.fwd.Go(func() error {
		defer iso.Registry.ClearPending(opID)
		select {
		case payload, ok := <-fut:
			iso.mu.Lock()
			if unref {
				iso.pendingUnrefCount--
			} else {
				iso.pendingCount--
			}
			iso.mu.Unlock()
			if !ok {
				return nil
			}
			select {
			case iso.ready <- readyMsg{opID: opID, payload: payload}:
			case <-iso.closed:
				return nil
			}
			select {
			case iso.wake <- struct{}{}:
			default:
			}
		case <-iso.closed:
			iso.mu.Lock()
			if unref {
				iso.pendingUnrefCount--
			} else {
				iso.pendingCount--
			}
			iso.mu.Unlock()
		}
		return nil
	})
}

func (iso *Isolate) onPromiseRejection(p *goja.Promise, operation goja.PromiseRejectionOperation) {
	iso.mu.Lock()
	defer iso.mu.Unlock()
	switch operation {
	case goja.PromiseRejectionReject:
		id := uuid.New()
		iso.rejectionKeys[p] = id
		iso.rejections[id] = rejection{promise: p, value: p.Result()}
	case goja.PromiseRejectionHandle:
		if id, ok := iso.rejectionKeys[p]; ok {
			delete(iso.rejections, id)
			delete(iso.rejectionKeys, p)
		}
	}
}

// checkRejections implements spec.md 4.6 steps c/g: if the promise
// rejection table is non-empty, drain exactly one entry and surface it as
// an error.
func (iso *Isolate) checkRejections() error {
	iso.mu.Lock()
	var id uuid.UUID
	var rej rejection
	found := false
	for k, r := range iso.rejections {
		id, rej, found = k, r, true
		break
	}
	if !found {
		iso.mu.Unlock()
		return nil
	}
	delete(iso.rejections, id)
	delete(iso.rejectionKeys, rej.promise)
	iso.mu.Unlock()

	return iso.captureException(&unhandledRejectionError{value: rej.value})
}

func (iso *Isolate) callRecv() error {
	iso.mu.Lock()
	cb := iso.recvCallback
	iso.mu.Unlock()
	if cb == nil {
		return errors.New("isolate: async op completed but no receiver is registered")
	}
	_, err := cb(goja.Undefined())
	if err != nil {
		return iso.captureException(err)
	}
	return nil
}

func (iso *Isolate) callRecvOverflow(opID uint32, payload []byte) error {
	iso.mu.Lock()
	cb := iso.recvCallback
	iso.mu.Unlock()
	if cb == nil {
		return errors.New("isolate: overflow delivery but no receiver is registered")
	}
	_, err := cb(goja.Undefined(), iso.vm.ToValue(float64(opID)), bytesToUint8Array(iso.vm, payload))
	if err != nil {
		return iso.captureException(err)
	}
	return nil
}

// Poll advances the isolate exactly as spec.md 4.6 step 4 describes:
// drains ready futures into the shared queue (remembering the first
// overflow as a single direct delivery), flushes the queue to JS, delivers
// any overflow record, and reports idle iff the ref-counted pending set is
// empty.
func (iso *Isolate) Poll() (PollResult, error) {
	if !iso.usable {
		return PollIdle, errors.New("isolate: used after snapshot")
	}
	if err := iso.ensureInit(); err != nil {
		return PollIdle, err
	}

	// (a) consume any pending self-wake so a completion that races with
	// this poll is picked up on the very next call instead of being lost.
	select {
	case <-iso.wake:
	default:
	}

	if err := iso.checkRejections(); err != nil { // (c)
		return PollIdle, err
	}

	var overflow *readyMsg
drain: // (d)
	for {
		select {
		case msg := <-iso.ready:
			m := msg
			if iso.Queue.Push(m.opID, m.payload) {
				continue
			}
			overflow = &m
			break drain
		default:
			break drain
		}
	}

	if iso.Queue.Size() > 0 { // (e)
		if err := iso.callRecv(); err != nil {
			return PollIdle, err
		}
		if iso.Queue.Size() != 0 {
			return PollIdle, errors.New("isolate: protocol violation: receiver did not drain the shared queue")
		}
	}

	if overflow != nil { // (f)
		if err := iso.callRecvOverflow(overflow.opID, overflow.payload); err != nil {
			return PollIdle, err
		}
	}

	if err := iso.checkRejections(); err != nil { // (g)
		return PollIdle, err
	}

	iso.mu.Lock() // (h)
	pending := iso.pendingCount
	iso.mu.Unlock()
	if pending == 0 {
		return PollIdle, nil
	}

	select {
	case <-iso.wake:
		iso.wake <- struct{}{}
	default:
	}
	return PollPending, nil
}

// RunToIdle drives Poll until the isolate reports idle, an error occurs, or
// ctx is canceled. It is a host convenience, not part of the core state
// machine: a real embedder typically drives Poll from its own event loop
// instead.
func (iso *Isolate) RunToIdle(ctx context.Context) error {
	for {
		res, err := iso.Poll()
		if err != nil {
			return err
		}
		if res == PollIdle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-iso.wake:
			iso.wake <- struct{}{}
		case <-time.After(time.Millisecond):
		}
	}
}
