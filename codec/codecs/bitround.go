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
	"math"

	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/zarr"
	"github.com/ndarray/zarrs/zarrconfig"
)

// BitroundCodec is the built-in lossy array→array codec: it keeps the
// top KeepBits mantissa bits of each float32/float64 element and
// zeroes (with round-to-nearest) the rest, trading precision for
// better downstream compressibility.
type BitroundCodec struct {
	KeepBits uint
}

// NewBitround returns a bit-rounding codec keeping keepBits mantissa
// bits.
func NewBitround(keepBits uint) BitroundCodec {
	return BitroundCodec{KeepBits: keepBits}
}

func (BitroundCodec) ID() string { return "bitround" }

func (BitroundCodec) ComputeEncodedRepresentation(inputRepr codec.Representation) (codec.Representation, error) {
	return inputRepr, nil
}

func (c BitroundCodec) Encode(input []byte, inputRepr codec.Representation) ([]byte, error) {
	switch inputRepr.DataType {
	case zarr.Float32:
		return c.roundFloat32(input)
	case zarr.Float64:
		return c.roundFloat64(input)
	default:
		return nil, codec.UnsupportedDataType(inputRepr.DataType, c.ID())
	}
}

// Decode is the identity: bit-rounding is irreversible, so decode
// simply passes the already-rounded bytes through.
func (BitroundCodec) Decode(input []byte, outputRepr codec.Representation) ([]byte, error) {
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

func (c BitroundCodec) roundFloat32(input []byte) ([]byte, error) {
	if len(input)%4 != 0 {
		return nil, codec.InvalidBytesLength(len(input), (len(input)/4+1)*4)
	}
	if c.KeepBits >= 23 {
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	}
	const mantissaBits = 23
	shift := mantissaBits - c.KeepBits
	half := uint32(1) << (shift - 1)
	out := make([]byte, len(input))
	for i := 0; i < len(input); i += 4 {
		bits := uint32(input[i]) | uint32(input[i+1])<<8 | uint32(input[i+2])<<16 | uint32(input[i+3])<<24
		rounded := roundMantissa32(bits, shift, half)
		out[i] = byte(rounded)
		out[i+1] = byte(rounded >> 8)
		out[i+2] = byte(rounded >> 16)
		out[i+3] = byte(rounded >> 24)
	}
	return out, nil
}

func roundMantissa32(bits uint32, shift, half uint32) uint32 {
	if math.Float32frombits(bits) != math.Float32frombits(bits) { // NaN
		return bits
	}
	mask := ^uint32(0) << shift
	rounded := (bits + half) & mask
	return rounded
}

func (c BitroundCodec) roundFloat64(input []byte) ([]byte, error) {
	if len(input)%8 != 0 {
		return nil, codec.InvalidBytesLength(len(input), (len(input)/8+1)*8)
	}
	if c.KeepBits >= 52 {
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	}
	const mantissaBits = 52
	shift := uint(mantissaBits) - c.KeepBits
	half := uint64(1) << (shift - 1)
	mask := ^uint64(0) << shift
	out := make([]byte, len(input))
	for i := 0; i < len(input); i += 8 {
		var bits uint64
		for b := 0; b < 8; b++ {
			bits |= uint64(input[i+b]) << (8 * b)
		}
		if math.Float64frombits(bits) != math.Float64frombits(bits) { // NaN
			copy(out[i:i+8], input[i:i+8])
			continue
		}
		rounded := (bits + half) & mask
		for b := 0; b < 8; b++ {
			out[i+b] = byte(rounded >> (8 * b))
		}
	}
	return out, nil
}

// CreateMetadata suppresses metadata emission by default: bit-rounding
// is irreversible and not part of the Zarr metadata spec, so it
// returns no metadata unless the caller has opted in via
// experimental_codec_store_metadata_if_encode_only, in which case the
// rounding configuration is recorded for provenance even though
// decode can't use it. (The codec this is grounded on returns None
// unconditionally.)
func (c BitroundCodec) CreateMetadata() (codec.Metadata, bool) {
	if !zarrconfig.Get().ExperimentalCodecStoreMetadataIfEncodeOnly {
		return codec.Metadata{}, false
	}
	return codec.Metadata{Name: "bitround", Configuration: map[string]any{"keepbits": c.KeepBits}}, true
}

func (c BitroundCodec) PartialDecoder(downstream codec.PartialDecoder, inputRepr codec.Representation) codec.PartialDecoder {
	return &wholeChunkThroughDownstream{downstream: downstream}
}
