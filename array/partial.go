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

package array

import (
	"context"

	"github.com/ndarray/zarrs/codec"
	"github.com/ndarray/zarrs/codec/partial"
	"github.com/ndarray/zarrs/storage"
	"github.com/ndarray/zarrs/zarr"
)

// retrieveChunkSubsetPartial serves subset through the pipeline's
// partial decoder stack (§4.3): a partial.StoreDecoder at the bottom,
// wrapped outward through bytes->bytes, the array->bytes codec, and
// array->array codecs in turn (codec/pipeline.Pipeline.PartialDecoder
// builds the stack; this is its one caller). Used whenever the
// pipeline's array->bytes codec does not implement codec.SubsetDecoder
// (sharding has its own cheaper index-aware path instead).
func (e *Engine) retrieveChunkSubsetPartial(ctx context.Context, key storage.Key, subset zarr.Subset) ([]byte, error) {
	elemSize := e.Descriptor.DataType.Size()
	bottom := &partial.StoreDecoder{Ctx: ctx, Store: e.Store, Key: key}
	top := e.Descriptor.Pipeline.PartialDecoder(bottom, e.Descriptor.chunkRepr())

	if top.DecodesAll() {
		// The stack itself advertises that a partial request buys
		// nothing (e.g. a non-seekable gzip/zstd stream, or an
		// array->array codec like transpose that scatters offsets):
		// pull the whole chunk through the same decoder handle and
		// slice locally, rather than the decoder silently doing that
		// work once per requested row.
		whole, err := top.PartialDecode([]codec.Range{codec.ToEnd(0)})
		if err != nil {
			if storage.IsNotFound(err) {
				return e.Descriptor.FillValue.Fill(subset.NumElements()), nil
			}
			return nil, err
		}
		return zarr.ExtractSubset(whole[0], e.Descriptor.ChunkShape, elemSize, subset), nil
	}

	rows := subset.Rows(e.Descriptor.ChunkShape)
	ranges := make([]codec.Range, len(rows))
	for i, r := range rows {
		ranges[i] = codec.Range{Offset: r.Offset * uint64(elemSize), Length: r.Length * uint64(elemSize)}
	}
	pieces, err := top.PartialDecode(ranges)
	if err != nil {
		if storage.IsNotFound(err) {
			return e.Descriptor.FillValue.Fill(subset.NumElements()), nil
		}
		return nil, err
	}
	out := make([]byte, subset.NumElements()*uint64(elemSize))
	var pos uint64
	for _, p := range pieces {
		pos += uint64(copy(out[pos:], p))
	}
	return out, nil
}
