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

// Package partial implements the partial decoder stack: lazy,
// pull-based decoders that serve only the requested byte/element
// subranges of a logical chunk, composed by each codec wrapping its
// downstream decoder. The bottom of every stack is a store-backed
// decoder whose downstream calls are the store's ranged reads, making
// this package's composition directly analogous to the httpstore
// ranged-read model.
package partial

import (
	"context"

	"github.com/ndarray/zarrs/byterange"
	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/storage"
)

// StoreDecoder is the bottom of every partial decoder stack: it turns
// Range requests into ranged reads against one store key.
type StoreDecoder struct {
	Ctx   context.Context
	Store storage.Readable
	Key   storage.Key
}

func (d *StoreDecoder) PartialDecode(ranges []codec.Range) ([][]byte, error) {
	brs := make([]byterange.Range, len(ranges))
	for i, r := range ranges {
		if r.Length == codec.ToEndLength {
			brs[i] = byterange.FromStart(r.Offset)
		} else {
			brs[i] = byterange.FromStartLength(r.Offset, r.Length)
		}
	}
	return d.Store.GetPartialValuesKey(d.Ctx, d.Key, brs)
}

func (d *StoreDecoder) DecodesAll() bool       { return false }
func (d *StoreDecoder) ShouldCacheInput() bool { return false }

// WholeChunkDecoder adapts a whole-chunk decode function into a
// PartialDecoder that always reads everything and slices the result
// in memory. Used by codecs whose DecodesAll hint is true, or as the
// simplest possible correct implementation for codecs the pipeline
// has no cheaper strategy for.
type WholeChunkDecoder struct {
	// Fetch returns the whole decoded buffer. Called at most once per
	// PartialDecode call unless ShouldCache is set, in which case the
	// first result is memoised across calls on this decoder.
	Fetch func() ([]byte, error)
	// ShouldCache mirrors the partial_decoder_should_cache_input
	// hint.
	ShouldCache bool

	cached []byte
	have   bool
}

func (d *WholeChunkDecoder) PartialDecode(ranges []codec.Range) ([][]byte, error) {
	buf, err := d.fetch()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		end := uint64(len(buf))
		if r.Offset <= end && r.Length < end-r.Offset {
			end = r.Offset + r.Length
		}
		start := r.Offset
		if start > end {
			start = end
		}
		chunk := make([]byte, end-start)
		copy(chunk, buf[start:end])
		out[i] = chunk
	}
	return out, nil
}

func (d *WholeChunkDecoder) fetch() ([]byte, error) {
	if d.ShouldCache && d.have {
		return d.cached, nil
	}
	buf, err := d.Fetch()
	if err != nil {
		return nil, err
	}
	if d.ShouldCache {
		d.cached = buf
		d.have = true
	}
	return buf, nil
}

func (d *WholeChunkDecoder) DecodesAll() bool       { return true }
func (d *WholeChunkDecoder) ShouldCacheInput() bool { return d.ShouldCache }
