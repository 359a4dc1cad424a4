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
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/probeum/corejs/zerocopy"
)

// Handler is a native op implementation. It runs synchronously on the
// isolate's owning worker, regardless of which Op variant it returns.
type Handler func(control []byte, zc *zerocopy.Buf) Op

type entry struct {
	name    string
	id      uint32
	handler Handler
}

// Registry maps op names to stable positive ids and dispatches by id. Id 0
// is reserved and never assigned; it denotes "sync reply" in protocols
// layered on top of the core. The registry is read-only after startup-time
// registration, so lookups need no locking beyond what protects
// registration itself.
type Registry struct {
	mu      sync.RWMutex
	byID    map[uint32]*entry
	byName  map[string]*entry
	nextID  uint32
	pending mapset.Set // op ids currently dispatched and not yet resolved
}

// NewRegistry returns an empty registry. Ids are assigned starting at 1.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[uint32]*entry),
		byName:  make(map[string]*entry),
		nextID:  1,
		pending: mapset.NewSet(),
	}
}

// Register assigns the next id to name and stores handler. Re-registering
// an already-registered name is forbidden.
func (r *Registry) Register(name string, handler Handler) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("ops: op %q already registered", name)
	}
	e := &entry{name: name, id: r.nextID, handler: handler}
	r.byID[e.id] = e
	r.byName[name] = e
	r.nextID++
	return e.id, nil
}

// Call looks up the handler for id and invokes it. ok is false if no such
// id was ever registered; the caller raises a type error into JS in that
// case.
func (r *Registry) Call(id uint32, control []byte, zc *zerocopy.Buf) (op Op, ok bool) {
	r.mu.RLock()
	e, found := r.byID[id]
	r.mu.RUnlock()
	if !found {
		return Op{}, false
	}
	return e.handler(control, zc), true
}

// Snapshot returns the current name->id table, for core.ops().
func (r *Registry) Snapshot() map[string]uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint32, len(r.byName))
	for name, e := range r.byName {
		out[name] = e.id
	}
	return out
}

// MarkPending records that op id is outstanding (dispatched but not yet
// resolved), as reported by PendingIDs.
func (r *Registry) MarkPending(id uint32) {
	r.pending.Add(id)
}

// ClearPending records that op id has resolved.
func (r *Registry) ClearPending(id uint32) {
	r.pending.Remove(id)
}

// PendingIDs reports the op ids currently outstanding.
func (r *Registry) PendingIDs() []uint32 {
	ids := make([]uint32, 0, r.pending.Cardinality())
	for v := range r.pending.Iter() {
		ids = append(ids, v.(uint32))
	}
	return ids
}
