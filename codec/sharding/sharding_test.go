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

package sharding

import (
	"fmt"
	"testing"

	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/codec/codecs"
	"github.com/ndarray/zarrs/codec/pipeline"
	"github.com/ndarray/zarrs/zarr"
)

func newInnerPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(nil, codecs.NewBytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func u16bytes(vals ...uint16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// TestShardRoundTripAllOccupied encodes a [2,2] shard of [1,1] inner
// chunks (matching array_partial_encode_sharding's 4x4 array / 2x2
// outer chunk / 1x1 inner chunk geometry) where every inner chunk
// holds a nonzero value, then decodes it back.
func TestShardRoundTripAllOccupied(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexStart, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	input := u16bytes(99, 2, 4, 7)

	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v, want %v", decoded, input)
	}
}

// TestShardRoundTripSomeEmpty exercises the empty-sentinel path: inner
// chunks equal to the fill value are recorded as empty and occupy no
// body bytes, directly mirroring array_partial_encode_sharding's
// store_array_subset_elements_opt([1, 0, 0, 0]) step.
func TestShardRoundTripSomeEmpty(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexStart, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	input := u16bytes(1, 0, 0, 0)

	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	// index (4 entries * 16 bytes) + exactly one inner chunk's worth of
	// bytes (2 bytes), since three of the four inner chunks are empty.
	wantIndexSize, err := c.indexEncodedSize(4)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(encoded)) != wantIndexSize+2 {
		t.Fatalf("got encoded len %d, want %d", len(encoded), wantIndexSize+2)
	}

	decoded, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v, want %v", decoded, input)
	}
}

// TestShardIndexEndRoundTrip checks the End index location lays out
// body before index and still decodes correctly.
func TestShardIndexEndRoundTrip(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexEnd, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	input := u16bytes(1, 2, 4, 0)

	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v, want %v", decoded, input)
	}
}

// TestShardAllEmptyRoundTrip mirrors the initial all-fill-value state
// of array_partial_encode_sharding's chunk [0,0] before any writes.
func TestShardAllEmptyRoundTrip(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexStart, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	input := u16bytes(0, 0, 0, 0)

	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	wantIndexSize, err := c.indexEncodedSize(4)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(encoded)) != wantIndexSize {
		t.Fatalf("all-empty shard should be index-only, got len %d, want %d", len(encoded), wantIndexSize)
	}

	decoded, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v, want %v", decoded, input)
	}
}

// TestShardWithChecksummedIndex runs the index sub-pipeline through a
// crc32c codec, matching the shape of
// array_partial_encode_sharding_index_compressed's crc32c stage.
func TestShardWithChecksummedIndex(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), []codec.BytesToBytesCodec{codecs.NewCrc32c()}, IndexStart, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	input := u16bytes(1, 2, 3, 4)

	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v, want %v", decoded, input)
	}
}

// memTarget is a minimal in-memory codec.PartialEncodeTarget, standing
// in for a store key the way the array package's storeTarget adapts a
// real storage.Store, so DecodeSubset and PartialEncode can be
// exercised directly without pulling in the storage package.
type memTarget struct {
	buf    []byte
	exists bool
}

func (m *memTarget) Size() (uint64, bool, error) {
	return uint64(len(m.buf)), m.exists, nil
}

func (m *memTarget) ReadRange(offset, length uint64) ([]byte, error) {
	if !m.exists {
		return nil, codec.ErrChunkAbsent
	}
	if offset+length > uint64(len(m.buf)) {
		return nil, fmt.Errorf("memTarget: range [%d,%d) out of bounds (len %d)", offset, offset+length, len(m.buf))
	}
	out := make([]byte, length)
	copy(out, m.buf[offset:offset+length])
	return out, nil
}

func (m *memTarget) WriteRange(offset uint64, data []byte) error {
	need := offset + uint64(len(data))
	if uint64(len(m.buf)) < need {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[offset:], data)
	m.exists = true
	return nil
}

// TestDecodeSubsetMatchesFullDecodeSlice checks that DecodeSubset,
// which reads only the index and the overlapping inner chunks, yields
// exactly the same elements as decoding the whole shard and slicing
// it in memory.
func TestDecodeSubsetMatchesFullDecodeSlice(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexStart, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	input := u16bytes(1, 2, 0, 4)

	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	target := &memTarget{buf: encoded, exists: true}

	sub, err := zarr.NewSubset([]uint64{1, 0}, []uint64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.DecodeSubset(target, repr, sub, true)
	if err != nil {
		t.Fatal(err)
	}

	whole, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	want := zarr.ExtractSubset(whole, zarr.Shape{2, 2}, 2, sub)
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestDecodeSubsetAbsentShardReturnsFillValue checks that requesting a
// subset of a shard key that does not exist yet costs no store
// traffic and returns fill value throughout, per §4.5 "Partial
// decode".
func TestDecodeSubsetAbsentShardReturnsFillValue(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexStart, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	target := &memTarget{}

	sub, err := zarr.NewSubset([]uint64{0, 0}, []uint64{2, 2})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.DecodeSubset(target, repr, sub, true)
	if err != nil {
		t.Fatal(err)
	}
	want := u16bytes(0, 0, 0, 0)
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestPartialEncodeIntoFreshShard exercises §8 scenario S1 directly
// against the codec: writing one element into a shard key that does
// not exist yet produces one occupied inner chunk and an index
// recording it, with no erase.
func TestPartialEncodeIntoFreshShard(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexEnd, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	target := &memTarget{}

	sub, err := zarr.NewSubset([]uint64{0, 0}, []uint64{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	erase, err := c.PartialEncode(target, repr, sub, u16bytes(1), zarr.FillValue{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if erase {
		t.Fatal("expected no erase")
	}

	indexSize, err := c.indexEncodedSize(4)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(target.buf)) != indexSize+2 {
		t.Fatalf("got shard size %d, want %d", len(target.buf), indexSize+2)
	}

	decoded, err := c.Decode(target.buf, repr)
	if err != nil {
		t.Fatal(err)
	}
	want := u16bytes(1, 0, 0, 0)
	if string(decoded) != string(want) {
		t.Fatalf("got %v, want %v", decoded, want)
	}
}

// TestPartialEncodeBackToFillErases exercises §8 scenario S2 directly
// against the codec: overwriting the only occupied inner chunk with
// the fill value erases the whole shard (erase=true, no bytes
// written).
func TestPartialEncodeBackToFillErases(t *testing.T) {
	c := New(zarr.Shape{1, 1}, newInnerPipeline(t), nil, IndexEnd, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	target := &memTarget{}

	sub, err := zarr.NewSubset([]uint64{0, 0}, []uint64{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.PartialEncode(target, repr, sub, u16bytes(1), zarr.FillValue{0, 0}); err != nil {
		t.Fatal(err)
	}

	erase, err := c.PartialEncode(target, repr, sub, u16bytes(0), zarr.FillValue{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if !erase {
		t.Fatal("expected erase=true once every inner chunk is back to fill value")
	}
}

// TestShardWithInnerGzip composes the sharding codec with a real
// bytes->bytes inner codec, checking the inner pipeline genuinely
// compresses and decompresses each occupied inner chunk.
func TestShardWithInnerGzip(t *testing.T) {
	inner, err := pipeline.New(nil, codecs.NewBytes(), []codec.BytesToBytesCodec{codecs.NewGzip(5)})
	if err != nil {
		t.Fatal(err)
	}
	c := New(zarr.Shape{1, 1}, inner, nil, IndexStart, zarr.FillValue{0, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 2}, DataType: zarr.Uint16}
	input := u16bytes(7, 0, 0, 9)

	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v, want %v", decoded, input)
	}
}
