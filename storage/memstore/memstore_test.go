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

package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ndarray/zarrs/byterange"
	"github.com/ndarray/zarrs/storage"
)

func TestGetMissingKey(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), storage.Key("missing"))
	if !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := storage.Key("c/0/0")
	if err := s.Set(ctx, key, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestGetPartialValuesKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := storage.Key("a")
	s.Set(ctx, key, []byte("0123456789"))
	out, err := s.GetPartialValuesKey(ctx, key, []byterange.Range{
		byterange.FromStartLength(0, 3),
		byterange.FromEnd(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(out[0]) != "012" || string(out[1]) != "89" {
		t.Fatalf("got %q %q", out[0], out[1])
	}
}

func TestSetPartialValuesExtends(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := storage.Key("a")
	s.Set(ctx, key, []byte("abc"))
	err := s.SetPartialValues(ctx, key, []storage.PartialValue{
		{Offset: 2, Data: []byte("XYZ")},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, key)
	if string(got) != "abXYZ" {
		t.Fatalf("got %q", got)
	}
}

func TestEraseIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := storage.Key("a")
	if err := s.Erase(ctx, key); err != nil {
		t.Fatal(err)
	}
	s.Set(ctx, key, []byte("x"))
	if err := s.Erase(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := s.Erase(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("expected erased key to be gone, got %v", err)
	}
}

func TestListDir(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Set(ctx, storage.Key("a/b/c"), []byte("1"))
	s.Set(ctx, storage.Key("a/d"), []byte("2"))
	res, err := s.ListDir(ctx, storage.Prefix("a/"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Keys) != 1 || res.Keys[0] != "a/d" {
		t.Fatalf("keys: %v", res.Keys)
	}
	if len(res.SubPrefixes) != 1 || res.SubPrefixes[0] != "a/b/" {
		t.Fatalf("subprefixes: %v", res.SubPrefixes)
	}
}

func TestMutexExcludesConcurrentHolders(t *testing.T) {
	s := New()
	h1 := s.Mutex(storage.Key("x"))
	locked := make(chan struct{})
	go func() {
		h2 := s.Mutex(storage.Key("x"))
		close(locked)
		h2.Unlock()
	}()
	select {
	case <-locked:
		t.Fatal("second holder acquired the mutex while the first still held it")
	case <-time.After(20 * time.Millisecond):
	}
	h1.Unlock()
	<-locked
}
