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

// Package scriptcache caches compiled goja programs keyed by the blake2b
// hash of (filename, source), so re-running an identical script (a REPL
// re-entering the same line, a host hot-reloading a file with unchanged
// contents) skips recompilation.
package scriptcache

import (
	"hash"

	"github.com/dop251/goja"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"
)

// Cache is a bounded LRU of compiled programs.
type Cache struct {
	lru *lru.Cache
}

// New returns a cache holding at most size compiled programs.
func New(size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

func hashKey(filename, source string) (key [32]byte) {
	var h hash.Hash
	h, _ = blake2b.New256(nil)
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write([]byte(source))
	copy(key[:], h.Sum(nil))
	return key
}

// Compile returns a cached *goja.Program for (filename, source), compiling
// and caching it on a miss.
func (c *Cache) Compile(filename, source string, strict bool) (*goja.Program, error) {
	key := hashKey(filename, source)
	if v, ok := c.lru.Get(key); ok {
		return v.(*goja.Program), nil
	}
	prog, err := goja.Compile(filename, source, strict)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, prog)
	return prog, nil
}
