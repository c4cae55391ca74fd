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
	"github.com/ndarray/zarrs/codec"
)

// BytesCodec is the built-in array→bytes codec: it packs an element
// buffer into little-endian bytes with no further transformation.
// Every array pipeline needs exactly one array→bytes codec; this is
// the trivial one (the sharding codec in codec/sharding is the other).
type BytesCodec struct{}

// NewBytes returns the raw little-endian packing codec.
func NewBytes() BytesCodec { return BytesCodec{} }

func (BytesCodec) ID() string { return "bytes" }

func (BytesCodec) Encode(input []byte, inputRepr codec.Representation) ([]byte, error) {
	want := inputRepr.ByteSize()
	if uint64(len(input)) != want {
		return nil, codec.InvalidBytesLength(len(input), int(want))
	}
	// The in-memory element representation used throughout this
	// engine is already little-endian packed bytes, so encode is the
	// identity transform; a host with a different native layout would
	// byte-swap here.
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

func (BytesCodec) Decode(input []byte, outputRepr codec.Representation) ([]byte, error) {
	want := outputRepr.ByteSize()
	if uint64(len(input)) != want {
		return nil, codec.InvalidBytesLength(len(input), int(want))
	}
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

func (BytesCodec) ComputeEncodedSize(inputRepr codec.Representation) codec.EncodedSize {
	return codec.Exactly(inputRepr.ByteSize())
}

func (BytesCodec) CreateMetadata() (codec.Metadata, bool) {
	return codec.Metadata{Name: "bytes", Configuration: map[string]any{"endian": "little"}}, true
}

// PartialDecoder passes through unchanged: raw packing does not alter
// byte offsets, so an element range maps directly to the same byte
// range in the downstream store bytes.
func (BytesCodec) PartialDecoder(downstream codec.PartialDecoder, inputRepr codec.Representation) codec.PartialDecoder {
	return downstream
}
