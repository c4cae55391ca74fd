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

package codecs

import (
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/zarr"
)

func TestBytesCodecRoundTrip(t *testing.T) {
	c := NewBytes()
	repr := codec.Representation{Shape: zarr.Shape{4}, DataType: zarr.Uint16}
	input := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("got %v", decoded)
	}
}

func TestBytesCodecRejectsWrongLength(t *testing.T) {
	c := NewBytes()
	repr := codec.Representation{Shape: zarr.Shape{4}, DataType: zarr.Uint16}
	_, err := c.Encode([]byte{1, 2, 3}, repr)
	if err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestTransposeRoundTrip2D(t *testing.T) {
	c := NewTranspose([]int{1, 0})
	repr := codec.Representation{Shape: zarr.Shape{2, 3}, DataType: zarr.Uint8}
	input := []byte{1, 2, 3, 4, 5, 6} // row-major 2x3
	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	outRepr, err := c.ComputeEncodedRepresentation(repr)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 4, 2, 5, 3, 6} // 3x2 transposed
	if string(encoded) != string(want) {
		t.Fatalf("got %v, want %v", encoded, want)
	}
	decoded, err := c.Decode(encoded, outRepr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("round-trip got %v, want %v", decoded, input)
	}
}

func TestBitroundReducesKeepBitsLosslessAtFull(t *testing.T) {
	c := NewBitround(23)
	repr := codec.Representation{Shape: zarr.Shape{1}, DataType: zarr.Float32}
	input := []byte{0x00, 0x00, 0x80, 0x3f} // 1.0f
	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) != string(input) {
		t.Fatalf("keeping all mantissa bits should be lossless, got %v", encoded)
	}
}

func TestBitroundLossyWithFewBits(t *testing.T) {
	c := NewBitround(4)
	repr := codec.Representation{Shape: zarr.Shape{1}, DataType: zarr.Float32}
	// About 1.0048f; its low mantissa bits are rounded away at 4 kept bits.
	input := []byte{0xb2, 0x9d, 0x80, 0x3f}
	encoded, err := c.Encode(input, repr)
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded) == string(input) {
		t.Fatal("expected bitround to change the mantissa bits")
	}
}

func TestBitroundCreatesNoMetadata(t *testing.T) {
	c := NewBitround(10)
	_, ok := c.CreateMetadata()
	if ok {
		t.Fatal("bitround must not emit metadata by default")
	}
}

func TestZstdRoundTrip(t *testing.T) {
	c := NewZstd(zstd.SpeedDefault, true)
	input := []byte("the quick brown fox jumps over the lazy dog, repeated: the quick brown fox jumps over the lazy dog")
	encoded, err := c.Encode(input)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatalf("round trip mismatch")
	}
}

func TestS2RoundTrip(t *testing.T) {
	c := NewS2()
	input := []byte("some data to round trip through s2 compression, not very compressible maybe")
	encoded, err := c.Encode(input)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatal("round trip mismatch")
	}
}

func TestGzipRoundTrip(t *testing.T) {
	c := NewGzip(5)
	input := []byte("gzip round trip test data, the quick brown fox jumps over the lazy dog")
	encoded, err := c.Encode(input)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatal("round trip mismatch")
	}
}

func TestCrc32cRoundTrip(t *testing.T) {
	c := NewCrc32c()
	input := []byte("checksum me")
	encoded, err := c.Encode(input)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := c.Decode(encoded, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(input) {
		t.Fatal("round trip mismatch")
	}
}

func TestCrc32cDetectsCorruption(t *testing.T) {
	c := NewCrc32c()
	encoded, err := c.Encode([]byte("checksum me"))
	if err != nil {
		t.Fatal(err)
	}
	encoded[0] ^= 0xff
	if _, err := c.Decode(encoded, true); err == nil {
		t.Fatal("expected checksum mismatch to be detected")
	}
}
