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

// Package memstore implements an in-memory reference Store used for
// tests and as the simplest possible backend for development.
package memstore

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/ndarray/zarrs/byterange"
	"github.com/ndarray/zarrs/storage"
	"github.com/ndarray/zarrs/storage/keylock"
)

// Store is a map-backed storage.Store. The zero value is not usable;
// construct with New.
type Store struct {
	mu    sync.RWMutex
	data  map[string][]byte
	locks *keylock.Table
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		data:  make(map[string][]byte),
		locks: keylock.NewTable(),
	}
}

func (s *Store) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[string(key)]
	if !ok {
		return nil, storage.NotFound("get", string(key))
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *Store) GetPartialValuesKey(ctx context.Context, key storage.Key, ranges []byterange.Range) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[string(key)]
	if !ok {
		return nil, storage.NotFound("get_partial_values_key", string(key))
	}
	n := uint64(len(b))
	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		start, err := r.Start(n)
		if err != nil {
			return nil, err
		}
		end, err := r.End(n)
		if err != nil {
			return nil, err
		}
		chunk := make([]byte, end-start)
		copy(chunk, b[start:end])
		out[i] = chunk
	}
	return out, nil
}

func (s *Store) GetPartialValues(ctx context.Context, keyRanges []storage.KeyRange) ([][]byte, []error) {
	out := make([][]byte, len(keyRanges))
	errs := make([]error, len(keyRanges))
	for i, kr := range keyRanges {
		vs, err := s.GetPartialValuesKey(ctx, kr.Key, []byterange.Range{kr.Range})
		if err != nil {
			errs[i] = err
			continue
		}
		out[i] = vs[0]
	}
	return out, errs
}

func (s *Store) Size(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, b := range s.data {
		total += uint64(len(b))
	}
	return total, nil
}

func (s *Store) SizePrefix(ctx context.Context, prefix storage.Prefix) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for k, b := range s.data {
		if strings.HasPrefix(k, string(prefix)) {
			total += uint64(len(b))
		}
	}
	return total, nil
}

func (s *Store) SizeKey(ctx context.Context, key storage.Key) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[string(key)]
	if !ok {
		return 0, storage.NotFound("size_key", string(key))
	}
	return uint64(len(b)), nil
}

func (s *Store) List(ctx context.Context) ([]storage.Key, error) {
	return s.ListPrefix(ctx, "")
}

func (s *Store) ListPrefix(ctx context.Context, prefix storage.Prefix) ([]storage.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Key
	for k := range s.data {
		if strings.HasPrefix(k, string(prefix)) {
			out = append(out, storage.Key(k))
		}
	}
	slices.SortFunc(out, func(a, b storage.Key) bool { return a < b })
	return out, nil
}

func (s *Store) ListDir(ctx context.Context, prefix storage.Prefix) (storage.ListDirResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keySet := map[string]struct{}{}
	prefixSet := map[string]struct{}{}
	for k := range s.data {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		rest := k[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			prefixSet[string(prefix)+rest[:i+1]] = struct{}{}
		} else if rest != "" {
			keySet[k] = struct{}{}
		}
	}
	var res storage.ListDirResult
	for k := range keySet {
		res.Keys = append(res.Keys, storage.Key(k))
	}
	for p := range prefixSet {
		res.SubPrefixes = append(res.SubPrefixes, storage.Prefix(p))
	}
	slices.SortFunc(res.Keys, func(a, b storage.Key) bool { return a < b })
	slices.SortFunc(res.SubPrefixes, func(a, b storage.Prefix) bool { return a < b })
	return res, nil
}

func (s *Store) Set(ctx context.Context, key storage.Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(data))
	copy(out, data)
	s.data[string(key)] = out
	return nil
}

func (s *Store) SetPartialValues(ctx context.Context, key storage.Key, values []storage.PartialValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.data[string(key)]
	need := uint64(len(b))
	for _, v := range values {
		if end := v.Offset + uint64(len(v.Data)); end > need {
			need = end
		}
	}
	if need > uint64(len(b)) {
		grown := make([]byte, need)
		copy(grown, b)
		b = grown
	}
	for _, v := range values {
		copy(b[v.Offset:], v.Data)
	}
	s.data[string(key)] = b
	return nil
}

func (s *Store) Erase(ctx context.Context, key storage.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

func (s *Store) EraseValues(ctx context.Context, keys []storage.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, string(k))
	}
	return nil
}

func (s *Store) ErasePrefix(ctx context.Context, prefix storage.Prefix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		if strings.HasPrefix(k, string(prefix)) {
			delete(s.data, k)
		}
	}
	return nil
}

func (s *Store) Mutex(key storage.Key) storage.Handle {
	return s.locks.Lock(string(key))
}
