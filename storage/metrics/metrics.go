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

// Package metrics wraps a storage.Store with read/write/erase/byte
// counters, kept in unexported atomic fields and read through the
// Reads, Writes, Erases and BytesRead accessor methods.
package metrics

import (
	"context"
	"sync/atomic"

	"github.com/ndarray/zarrs/byterange"
	"github.com/ndarray/zarrs/storage"
)

// Store decorates an underlying storage.Store, counting one read per
// ranged-read batch and one write per store write call, matching the
// granularity the sharding partial-encode tests assert on. Erases are
// tracked separately from writes: the end-to-end scenarios in §8 count
// "the chunk key is erased" as distinct from "a write happened".
type Store struct {
	storage.Store
	reads     int64
	writes    int64
	erases    int64
	bytesRead int64
}

// Wrap returns a metrics.Store decorating inner.
func Wrap(inner storage.Store) *Store {
	return &Store{Store: inner}
}

// Reads returns the number of ranged-read batches performed since the
// last Reset.
func (s *Store) Reads() int64 { return atomic.LoadInt64(&s.reads) }

// Writes returns the number of store write calls performed since the
// last Reset. Erases are not counted here; see Erases.
func (s *Store) Writes() int64 { return atomic.LoadInt64(&s.writes) }

// Erases returns the number of store erase calls performed since the
// last Reset.
func (s *Store) Erases() int64 { return atomic.LoadInt64(&s.erases) }

// BytesRead returns the total bytes returned by read calls since the
// last Reset.
func (s *Store) BytesRead() int64 { return atomic.LoadInt64(&s.bytesRead) }

// Reset zeroes all counters.
func (s *Store) Reset() {
	atomic.StoreInt64(&s.reads, 0)
	atomic.StoreInt64(&s.writes, 0)
	atomic.StoreInt64(&s.erases, 0)
	atomic.StoreInt64(&s.bytesRead, 0)
}

func (s *Store) countBytes(bs [][]byte) {
	var n int64
	for _, b := range bs {
		n += int64(len(b))
	}
	atomic.AddInt64(&s.bytesRead, n)
}

func (s *Store) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	atomic.AddInt64(&s.reads, 1)
	b, err := s.Store.Get(ctx, key)
	if err == nil {
		atomic.AddInt64(&s.bytesRead, int64(len(b)))
	}
	return b, err
}

func (s *Store) GetPartialValuesKey(ctx context.Context, key storage.Key, ranges []byterange.Range) ([][]byte, error) {
	atomic.AddInt64(&s.reads, 1)
	bs, err := s.Store.GetPartialValuesKey(ctx, key, ranges)
	if err == nil {
		s.countBytes(bs)
	}
	return bs, err
}

func (s *Store) GetPartialValues(ctx context.Context, keyRanges []storage.KeyRange) ([][]byte, []error) {
	atomic.AddInt64(&s.reads, 1)
	bs, errs := s.Store.GetPartialValues(ctx, keyRanges)
	s.countBytes(bs)
	return bs, errs
}

func (s *Store) Set(ctx context.Context, key storage.Key, data []byte) error {
	atomic.AddInt64(&s.writes, 1)
	return s.Store.Set(ctx, key, data)
}

func (s *Store) SetPartialValues(ctx context.Context, key storage.Key, values []storage.PartialValue) error {
	atomic.AddInt64(&s.writes, 1)
	return s.Store.SetPartialValues(ctx, key, values)
}

func (s *Store) Erase(ctx context.Context, key storage.Key) error {
	atomic.AddInt64(&s.erases, 1)
	return s.Store.Erase(ctx, key)
}

func (s *Store) EraseValues(ctx context.Context, keys []storage.Key) error {
	atomic.AddInt64(&s.erases, 1)
	return s.Store.EraseValues(ctx, keys)
}

func (s *Store) ErasePrefix(ctx context.Context, prefix storage.Prefix) error {
	atomic.AddInt64(&s.erases, 1)
	return s.Store.ErasePrefix(ctx, prefix)
}
