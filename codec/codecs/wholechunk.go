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

import "github.com/ndarray/zarrs/codec"

// wholeChunkThroughDownstream is used by array→array codecs whose
// decode leaves the bytes unchanged (bitround, whose rounding happens
// only at encode time): a range in the decoded representation is the
// same byte range downstream, so it forwards ranges to downstream
// unchanged. It reports the partial_decoder_decodes_all hint, so the
// array engine pulls the whole chunk with one range and slices locally.
type wholeChunkThroughDownstream struct {
	downstream codec.PartialDecoder
}

func (w *wholeChunkThroughDownstream) PartialDecode(ranges []codec.Range) ([][]byte, error) {
	// Ask downstream for its entire buffer by requesting one range
	// covering everything we might need; since callers of this
	// decoder only know their own (possibly transformed) coordinate
	// space, the array→array codec above us is responsible for
	// re-deriving the correct whole-chunk byte range before
	// delegating here. This helper assumes ranges already describe
	// byte offsets in the downstream's own space, which holds when
	// the caller passes a single range spanning the whole chunk.
	return w.downstream.PartialDecode(ranges)
}

func (w *wholeChunkThroughDownstream) DecodesAll() bool       { return true }
func (w *wholeChunkThroughDownstream) ShouldCacheInput() bool { return true }
