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

// Package pipeline composes an ordered list of codecs (zero or more
// array→array, exactly one array→bytes, zero or more bytes→bytes)
// into a single chunk↔bytes transform, the way the donor codebase's
// ion/blockfmt.CompressionWriter chains a sequence of named codecs
// into one read/write pipeline over a blob.
package pipeline

import (
	"fmt"

	"github.com/ndarray/zarrs/codec"
)

// Pipeline is the ordered codec list for one array's chunks.
type Pipeline struct {
	ArrayToArray []codec.ArrayToArrayCodec
	ArrayToBytes codec.ArrayToBytesCodec
	BytesToBytes []codec.BytesToBytesCodec
}

// New validates and constructs a Pipeline. Exactly one array→bytes
// codec is required.
func New(arrayToArray []codec.ArrayToArrayCodec, arrayToBytes codec.ArrayToBytesCodec, bytesToBytes []codec.BytesToBytesCodec) (*Pipeline, error) {
	if arrayToBytes == nil {
		return nil, fmt.Errorf("pipeline: exactly one array->bytes codec is required")
	}
	return &Pipeline{ArrayToArray: arrayToArray, ArrayToBytes: arrayToBytes, BytesToBytes: bytesToBytes}, nil
}

// Encode runs the full forward transform: array→array in declared
// order, then array→bytes, then bytes→bytes in declared order.
func (p *Pipeline) Encode(input []byte, inputRepr codec.Representation) ([]byte, error) {
	repr := inputRepr
	buf := input
	for _, c := range p.ArrayToArray {
		out, err := c.Encode(buf, repr)
		if err != nil {
			return nil, fmt.Errorf("pipeline: array->array %s: %w", c.ID(), err)
		}
		repr, err = c.ComputeEncodedRepresentation(repr)
		if err != nil {
			return nil, fmt.Errorf("pipeline: array->array %s: %w", c.ID(), err)
		}
		buf = out
	}
	bytesBuf, err := p.ArrayToBytes.Encode(buf, repr)
	if err != nil {
		return nil, fmt.Errorf("pipeline: array->bytes %s: %w", p.ArrayToBytes.ID(), err)
	}
	for _, c := range p.BytesToBytes {
		bytesBuf, err = c.Encode(bytesBuf)
		if err != nil {
			return nil, fmt.Errorf("pipeline: bytes->bytes %s: %w", c.ID(), err)
		}
	}
	return bytesBuf, nil
}

// decodeReprs walks array->array codecs forward to learn the
// representation each stage expects on decode: reprs[i] is what the
// i-th array->array codec decodes into, and reprs[len(ArrayToArray)]
// is what the array->bytes codec decodes into (outputRepr itself when
// there are no array->array codecs at all).
func (p *Pipeline) decodeReprs(outputRepr codec.Representation) ([]codec.Representation, error) {
	reprs := make([]codec.Representation, len(p.ArrayToArray)+1)
	reprs[0] = outputRepr
	for i, c := range p.ArrayToArray {
		r, err := c.ComputeEncodedRepresentation(reprs[i])
		if err != nil {
			return nil, fmt.Errorf("pipeline: array->array %s: %w", c.ID(), err)
		}
		reprs[i+1] = r
	}
	return reprs, nil
}

// Decode runs the exact reverse of Encode, given the representation
// the caller expects to end up with.
func (p *Pipeline) Decode(input []byte, outputRepr codec.Representation, validateChecksums bool) ([]byte, error) {
	reprs, err := p.decodeReprs(outputRepr)
	if err != nil {
		return nil, err
	}

	buf := input
	for i := len(p.BytesToBytes) - 1; i >= 0; i-- {
		c := p.BytesToBytes[i]
		buf, err = c.Decode(buf, validateChecksums)
		if err != nil {
			return nil, fmt.Errorf("pipeline: bytes->bytes %s: %w", c.ID(), err)
		}
	}

	buf, err = p.ArrayToBytes.Decode(buf, reprs[len(p.ArrayToArray)])
	if err != nil {
		return nil, fmt.Errorf("pipeline: array->bytes %s: %w", p.ArrayToBytes.ID(), err)
	}

	for i := len(p.ArrayToArray) - 1; i >= 0; i-- {
		c := p.ArrayToArray[i]
		buf, err = c.Decode(buf, reprs[i])
		if err != nil {
			return nil, fmt.Errorf("pipeline: array->array %s: %w", c.ID(), err)
		}
	}
	return buf, nil
}

// ComputeEncodedSize traverses array codecs forward, producing
// successive array representations, then forward-propagates the byte
// size through the array->bytes codec and the bytes->bytes chain.
func (p *Pipeline) ComputeEncodedSize(inputRepr codec.Representation) (codec.EncodedSize, error) {
	repr := inputRepr
	for _, c := range p.ArrayToArray {
		r, err := c.ComputeEncodedRepresentation(repr)
		if err != nil {
			return codec.EncodedSize{}, err
		}
		repr = r
	}
	size := p.ArrayToBytes.ComputeEncodedSize(repr)
	for _, c := range p.BytesToBytes {
		size = c.ComputeEncodedSize(size)
	}
	return size, nil
}

// PartialDecoder builds the partial decoder stack (§4.3) over bottom
// (which serves byte ranges of the pipeline's stored bytes), composing
// outward through bytes->bytes codecs in reverse declared order, the
// array->bytes codec, then array->array codecs in reverse declared
// order — the same inside-out traversal Decode itself runs, just
// wrapping a decoder instead of running a transform eagerly.
func (p *Pipeline) PartialDecoder(bottom codec.PartialDecoder, outputRepr codec.Representation) codec.PartialDecoder {
	reprs, err := p.decodeReprs(outputRepr)
	if err != nil {
		// A pipeline whose array->array codecs reject outputRepr would
		// fail Decode the same way; report it lazily on the first
		// PartialDecode call rather than widening every codec's
		// PartialDecoder method with an error return.
		return &errDecoder{err: err}
	}
	cur := bottom
	for i := len(p.BytesToBytes) - 1; i >= 0; i-- {
		cur = p.BytesToBytes[i].PartialDecoder(cur)
	}
	cur = p.ArrayToBytes.PartialDecoder(cur, reprs[len(p.ArrayToArray)])
	for i := len(p.ArrayToArray) - 1; i >= 0; i-- {
		cur = p.ArrayToArray[i].PartialDecoder(cur, reprs[i])
	}
	return cur
}

// errDecoder is a PartialDecoder that always fails, used when
// PartialDecoder can't even construct the stack.
type errDecoder struct{ err error }

func (d *errDecoder) PartialDecode(ranges []codec.Range) ([][]byte, error) { return nil, d.err }
func (d *errDecoder) DecodesAll() bool                                     { return true }
func (d *errDecoder) ShouldCacheInput() bool                               { return false }
