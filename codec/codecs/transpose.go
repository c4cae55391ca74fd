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
	"fmt"

	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/zarr"
)

// TransposeCodec is the built-in array→array codec that permutes the
// axis order of an element buffer without touching element bytes.
type TransposeCodec struct {
	// Order is a permutation of [0, rank): Order[i] is the source axis
	// that becomes axis i of the encoded representation.
	Order []int
}

// NewTranspose returns a transpose codec with the given axis
// permutation.
func NewTranspose(order []int) TransposeCodec {
	return TransposeCodec{Order: append([]int(nil), order...)}
}

func (TransposeCodec) ID() string { return "transpose" }

func (c TransposeCodec) ComputeEncodedRepresentation(inputRepr codec.Representation) (codec.Representation, error) {
	if len(c.Order) != len(inputRepr.Shape) {
		return codec.Representation{}, fmt.Errorf("codecs: transpose order rank %d does not match input rank %d", len(c.Order), len(inputRepr.Shape))
	}
	shape := make(zarr.Shape, len(inputRepr.Shape))
	for i, axis := range c.Order {
		shape[i] = inputRepr.Shape[axis]
	}
	return codec.Representation{Shape: shape, DataType: inputRepr.DataType}, nil
}

func (c TransposeCodec) Encode(input []byte, inputRepr codec.Representation) ([]byte, error) {
	if _, err := c.ComputeEncodedRepresentation(inputRepr); err != nil {
		return nil, err
	}
	return permute(input, inputRepr.Shape, inputRepr.DataType.Size(), c.Order), nil
}

func (c TransposeCodec) Decode(input []byte, outputRepr codec.Representation) ([]byte, error) {
	inverse := make([]int, len(c.Order))
	for i, axis := range c.Order {
		inverse[axis] = i
	}
	encodedShape := make(zarr.Shape, len(outputRepr.Shape))
	for i, axis := range c.Order {
		encodedShape[axis] = outputRepr.Shape[i]
	}
	return permute(input, encodedShape, outputRepr.DataType.Size(), inverse), nil
}

// permute re-orders the axes of a row-major element buffer of shape
// srcShape (in units of elemSize bytes) according to order, producing
// a row-major buffer whose axis i is srcShape[order[i]].
func permute(input []byte, srcShape zarr.Shape, elemSize int, order []int) []byte {
	rank := len(srcShape)
	if rank == 0 {
		out := make([]byte, len(input))
		copy(out, input)
		return out
	}
	dstShape := make([]uint64, rank)
	for i, axis := range order {
		dstShape[i] = srcShape[axis]
	}

	srcStrides := rowMajorStrides(srcShape)

	total := uint64(1)
	for _, d := range dstShape {
		total *= d
	}

	out := make([]byte, total*uint64(elemSize))
	idx := make([]uint64, rank)
	for linear := uint64(0); linear < total; linear++ {
		rem := linear
		for i := rank - 1; i >= 0; i-- {
			idx[i] = rem % dstShape[i]
			rem /= dstShape[i]
		}
		var srcOffset uint64
		for i := 0; i < rank; i++ {
			srcOffset += idx[i] * srcStrides[order[i]]
		}
		dstOffset := linear * uint64(elemSize)
		copy(out[dstOffset:dstOffset+uint64(elemSize)], input[srcOffset*uint64(elemSize):])
	}
	return out
}

func rowMajorStrides(shape []uint64) []uint64 {
	strides := make([]uint64, len(shape))
	acc := uint64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

func (TransposeCodec) CreateMetadata() (codec.Metadata, bool) {
	return codec.Metadata{Name: "transpose"}, true
}

func (c TransposeCodec) PartialDecoder(downstream codec.PartialDecoder, inputRepr codec.Representation) codec.PartialDecoder {
	// Axis permutation scatters element offsets non-contiguously, so
	// there is no cheap range-to-range mapping; fall back to decoding
	// the whole chunk through downstream and slicing in memory.
	return &wholeStreamDecoder{downstream: downstream, decode: func(b []byte) ([]byte, error) { return c.Decode(b, inputRepr) }}
}
