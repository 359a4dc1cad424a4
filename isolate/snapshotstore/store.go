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

// Package snapshotstore persists named isolate snapshot blobs on disk. It is
// purely a host convenience for cmd/gocore's "snapshot save/load"
// subcommands; the isolate driver itself never consults it.
package snapshotstore

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
)

// Store is a snappy-compressed, leveldb-backed key/value store of snapshot
// blobs keyed by name.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if needed) a store rooted at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Save compresses and stores blob under name, overwriting any prior entry.
func (s *Store) Save(name string, blob []byte) error {
	return s.db.Put([]byte(name), snappy.Encode(nil, blob), nil)
}

// Load returns the decompressed blob stored under name.
func (s *Store) Load(name string) ([]byte, error) {
	compressed, err := s.db.Get([]byte(name), nil)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: load %s: %w", name, err)
	}
	return snappy.Decode(nil, compressed)
}

// Names lists the snapshot names currently stored.
func (s *Store) Names() ([]string, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	var names []string
	for iter.Next() {
		names = append(names, string(iter.Key()))
	}
	return names, iter.Error()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
