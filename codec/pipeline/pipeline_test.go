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

package pipeline

import (
	"testing"

	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/codec/codecs"
	"github.com/ndarray/zarrs/zarr"
)

func TestPipelineRoundTripBytesOnly(t *testing.T) {
	p, err := New(nil, codecs.NewBytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	repr := codec.Representation{Shape: zarr.Shape{3}, DataType: zarr.Uint16}
	input := []byte{1, 0, 2, 0, 3, 0}
	encoded, err := p.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := p.Decode(encoded, repr, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v", decoded)
	}
}

func TestPipelineWithBytesToBytesChain(t *testing.T) {
	p, err := New(nil, codecs.NewBytes(), []codec.BytesToBytesCodec{codecs.NewCrc32c()})
	if err != nil {
		t.Fatal(err)
	}
	repr := codec.Representation{Shape: zarr.Shape{4}, DataType: zarr.Uint8}
	input := []byte{10, 20, 30, 40}
	encoded, err := p.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	if len(encoded) != len(input)+4 {
		t.Fatalf("expected checksum appended, got len %d", len(encoded))
	}
	decoded, err := p.Decode(encoded, repr, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v", decoded)
	}
}

func TestPipelineWithArrayToArrayAndBytesToBytes(t *testing.T) {
	p, err := New(
		[]codec.ArrayToArrayCodec{codecs.NewTranspose([]int{1, 0})},
		codecs.NewBytes(),
		[]codec.BytesToBytesCodec{codecs.NewCrc32c()},
	)
	if err != nil {
		t.Fatal(err)
	}
	repr := codec.Representation{Shape: zarr.Shape{2, 3}, DataType: zarr.Uint8}
	input := []byte{1, 2, 3, 4, 5, 6}
	encoded, err := p.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := p.Decode(encoded, repr, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v, want %v", decoded, input)
	}
}

func TestSplitUnconstrained(t *testing.T) {
	b := Split(10, 0, 4, 2)
	if b.ChunksInFlight != 10 || b.CodecTarget != 0 {
		t.Fatalf("got %+v", b)
	}
}

func TestSplitRespectsMinimum(t *testing.T) {
	b := Split(10, 2, 4, 4)
	if b.ChunksInFlight != 4 {
		t.Fatalf("expected chunk_concurrent_minimum floor of 4, got %d", b.ChunksInFlight)
	}
}

func TestSplitClampsToN(t *testing.T) {
	b := Split(2, 16, 4, 1)
	if b.ChunksInFlight != 2 {
		t.Fatalf("expected clamp to n=2, got %d", b.ChunksInFlight)
	}
	if b.CodecTarget != 8 {
		t.Fatalf("expected codec target 16/2=8, got %d", b.CodecTarget)
	}
}
