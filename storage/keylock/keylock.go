// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package keylock implements the per-key advisory mutex the storage
// contract uses to serialize concurrent partial updates of the same
// chunk key. Rather than one sync.Mutex per distinct key (an
// unbounded map that never shrinks), keys are hashed into a fixed-size
// table of stripes, trading a small amount of false contention between
// unrelated keys for a constant-size lock table.
package keylock

import (
	"sync"

	"github.com/dchest/siphash"
)

// numStripes is the size of the striped lock table. A power of two so
// the stripe index can be taken with a mask instead of a modulo.
const numStripes = 256

// siphash key used purely to spread keys across stripes; it has no
// security role here, so it is a fixed constant rather than randomized
// per process.
const (
	hashK0 = 0x5a827999c2b3e0ab
	hashK1 = 0x6ed9eba1d97c3179
)

// Table is a fixed-size striped lock table keyed by store key.
type Table struct {
	stripes [numStripes]sync.Mutex
}

// NewTable returns a ready-to-use Table.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) stripe(key string) *sync.Mutex {
	h := siphash.Hash(hashK0, hashK1, []byte(key))
	return &t.stripes[h%numStripes]
}

// Lock acquires the advisory lock for key and returns a Handle that
// must be unlocked exactly once.
func (t *Table) Lock(key string) *Handle {
	m := t.stripe(key)
	m.Lock()
	return &Handle{mu: m}
}

// Handle is a held advisory lock. It satisfies storage.Handle.
type Handle struct {
	mu   *sync.Mutex
	once sync.Once
}

// Unlock releases the lock. Safe to call at most effectively once;
// subsequent calls are no-ops.
func (h *Handle) Unlock() {
	h.once.Do(h.mu.Unlock)
}
