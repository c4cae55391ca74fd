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

// Package sharding implements the sharding array→bytes codec: a shard
// stores an inner regular grid of sub-chunks, each independently
// codec-encoded, plus a shard index of (offset, length) pairs
// recording where each inner chunk's bytes live within the shard
// blob. This is the recursive indirection the spec calls out as the
// engineering-hardest component: the index itself is grounded on the
// donor codebase's ion/blockfmt.Trailer (a Blockdesc{Offset, Chunks}
// table over a chunked binary blob), generalized from one chunked
// format's trailer to this engine's per-inner-chunk offset/length
// table, and the partial-encode counter accounting is grounded
// literally on zarrs' own array_partial_encode test scenarios.
package sharding

import (
	"encoding/binary"
	"fmt"
)

// emptySentinel marks an inner chunk equal to the fill value: it has
// no bytes in the shard body.
const emptySentinel = ^uint64(0)

// IndexEntry is one (offset, length) pair in the shard index, or the
// empty sentinel.
type IndexEntry struct {
	Offset uint64
	Length uint64
}

// Empty reports whether e is the empty sentinel.
func (e IndexEntry) Empty() bool {
	return e.Offset == emptySentinel && e.Length == emptySentinel
}

// EmptyEntry is the canonical empty sentinel value.
var EmptyEntry = IndexEntry{Offset: emptySentinel, Length: emptySentinel}

// IndexLocation is where the shard index sits within the shard blob.
type IndexLocation int

const (
	IndexStart IndexLocation = iota
	IndexEnd
)

// rawIndexSize is the byte size of n index entries before any index
// bytes→bytes sub-pipeline is applied: 2 * 8 bytes per entry,
// little-endian, as specified in §6.
func rawIndexSize(n int) uint64 {
	return uint64(n) * 16
}

// encodeRawIndex serialises entries as little-endian (offset, length)
// pairs.
func encodeRawIndex(entries []IndexEntry) []byte {
	buf := make([]byte, len(entries)*16)
	for i, e := range entries {
		binary.LittleEndian.PutUint64(buf[i*16:], e.Offset)
		binary.LittleEndian.PutUint64(buf[i*16+8:], e.Length)
	}
	return buf
}

// decodeRawIndex parses n little-endian (offset, length) pairs.
func decodeRawIndex(buf []byte, n int) ([]IndexEntry, error) {
	if uint64(len(buf)) != rawIndexSize(n) {
		return nil, fmt.Errorf("sharding: index buffer has %d bytes, want %d", len(buf), rawIndexSize(n))
	}
	entries := make([]IndexEntry, n)
	for i := range entries {
		entries[i].Offset = binary.LittleEndian.Uint64(buf[i*16:])
		entries[i].Length = binary.LittleEndian.Uint64(buf[i*16+8:])
	}
	return entries, nil
}
