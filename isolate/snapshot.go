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
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
)

// goja has no counterpart to V8's binary heap snapshot, so a corejs
// snapshot is instead a manifest of every top-level script the isolate ran
// while WillSnapshot was set, in order. Replaying the manifest into a fresh
// Runtime reconstructs the same global state for the scripts spec.md 8
// exercises (e.g. "a = 1+2" surviving a save/restore round trip), at the
// cost of paying compile-and-execute time again on load rather than
// restoring a heap image directly.
type scriptRecord struct {
	Filename string
	Source   string
}

type snapshotManifest struct {
	mu      sync.Mutex
	scripts []scriptRecord
}

func newSnapshotManifest() *snapshotManifest {
	return &snapshotManifest{}
}

func (m *snapshotManifest) record(filename, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, scriptRecord{Filename: filename, Source: source})
}

func (m *snapshotManifest) encode() ([]byte, error) {
	m.mu.Lock()
	scripts := append([]scriptRecord(nil), m.scripts...)
	m.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(scripts); err != nil {
		return nil, fmt.Errorf("isolate: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshotManifest(blob []byte) ([]scriptRecord, error) {
	var scripts []scriptRecord
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&scripts); err != nil {
		return nil, fmt.Errorf("isolate: decode snapshot: %w", err)
	}
	return scripts, nil
}

// Snapshot finalizes the isolate: it marks the isolate unusable (spec.md
// 4.6 step 6 forbids further execution on an isolate once snapshotted) and
// returns the replayable manifest blob. Snapshot requires WillSnapshot to
// have been set at construction.
func (iso *Isolate) Snapshot() ([]byte, error) {
	if iso.snapshotCreator == nil {
		return nil, errors.New("isolate: Snapshot called without WillSnapshot")
	}
	if err := iso.ensureInit(); err != nil {
		return nil, err
	}
	blob, err := iso.snapshotCreator.encode()
	if err != nil {
		return nil, err
	}
	iso.mu.Lock()
	iso.usable = false
	iso.mu.Unlock()
	return blob, nil
}

// replaySnapshot replays a previously captured manifest's scripts, in
// order, against the freshly constructed runtime. It runs before
// needsInit's bootstrap distinction matters to callers: the bootstrap
// script itself is always the manifest's first entry, since it is run
// through runSource with record=true during the original isolate's init.
func (iso *Isolate) replaySnapshot(blob []byte) error {
	scripts, err := decodeSnapshotManifest(blob)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if err := iso.runSource(s.Filename, s.Source, false); err != nil {
			return fmt.Errorf("isolate: replay %s: %w", s.Filename, err)
		}
	}
	return nil
}
