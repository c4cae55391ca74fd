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
	"runtime"

	"github.com/ndarray/zarrs/codec"
)

// concurrencyDefault mirrors the donor codebase's own compr package:
// the library's own default decoder concurrency (min(4, GOMAXPROCS))
// is overridden to always track GOMAXPROCS.
func concurrencyDefault() int {
	return runtime.GOMAXPROCS(0)
}

// wholeStreamDecoder is shared by the codecs whose decode has no cheap
// range-to-range mapping (zstd, gzip, s2, crc32c, transpose): a
// partial decode reads and decodes the whole input once, caching the
// result for subsequent range requests on the same handle, per the
// partial_decoder_should_cache_input hint.
type wholeStreamDecoder struct {
	downstream codec.PartialDecoder
	decode     func([]byte) ([]byte, error)

	cached []byte
	have   bool
}

func (w *wholeStreamDecoder) PartialDecode(ranges []codec.Range) ([][]byte, error) {
	if !w.have {
		raw, err := w.downstream.PartialDecode([]codec.Range{codec.ToEnd(0)})
		if err != nil {
			return nil, err
		}
		decoded, err := w.decode(raw[0])
		if err != nil {
			return nil, err
		}
		w.cached = decoded
		w.have = true
	}
	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		end := uint64(len(w.cached))
		if r.Offset <= end && r.Length < end-r.Offset {
			end = r.Offset + r.Length
		}
		start := r.Offset
		if start > end {
			start = end
		}
		chunk := make([]byte, end-start)
		copy(chunk, w.cached[start:end])
		out[i] = chunk
	}
	return out, nil
}

func (w *wholeStreamDecoder) DecodesAll() bool       { return true }
func (w *wholeStreamDecoder) ShouldCacheInput() bool { return true }
