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

	"github.com/klauspost/compress/s2"

	"github.com/ndarray/zarrs/codec"
)

// S2Codec is the built-in bytes→bytes codec wrapping
// klauspost/compress's s2 implementation (a Snappy-family block
// codec), in the donor codebase's own style of a stateless Compressor
// value whose Compress/Decompress methods take no constructor
// arguments.
type S2Codec struct{}

// NewS2 returns the s2 codec.
func NewS2() S2Codec { return S2Codec{} }

func (S2Codec) ID() string { return "s2" }

func (S2Codec) Encode(input []byte) ([]byte, error) {
	return s2.Encode(nil, input), nil
}

func (S2Codec) Decode(input []byte, validateChecksums bool) ([]byte, error) {
	out, err := s2.Decode(nil, input)
	if err != nil {
		return nil, fmt.Errorf("codecs: s2 decode: %w", err)
	}
	return out, nil
}

func (S2Codec) ComputeEncodedSize(nIn codec.EncodedSize) codec.EncodedSize {
	return codec.Unknown
}

func (S2Codec) CreateMetadata() (codec.Metadata, bool) {
	return codec.Metadata{Name: "s2"}, true
}

func (c S2Codec) PartialDecoder(downstream codec.PartialDecoder) codec.PartialDecoder {
	return &wholeStreamDecoder{downstream: downstream, decode: func(b []byte) ([]byte, error) { return c.Decode(b, false) }}
}
