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

package zarr

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkKeyEncoding maps a chunk grid index to a store-key suffix
// beneath the array's prefix.
type ChunkKeyEncoding interface {
	Encode(index []uint64) string
}

// DefaultChunkKeyEncoding implements the "default" encoding:
// c/{i0}/{i1}/... with a configurable separator (default "/"). A
// rank-0 (scalar) index maps to the literal key "c".
type DefaultChunkKeyEncoding struct {
	Separator string
}

// NewDefaultChunkKeyEncoding returns the default encoding with "/" as
// separator.
func NewDefaultChunkKeyEncoding() DefaultChunkKeyEncoding {
	return DefaultChunkKeyEncoding{Separator: "/"}
}

func (e DefaultChunkKeyEncoding) Encode(index []uint64) string {
	sep := e.Separator
	if sep == "" {
		sep = "/"
	}
	if len(index) == 0 {
		return "c"
	}
	parts := make([]string, len(index)+1)
	parts[0] = "c"
	for i, v := range index {
		parts[i+1] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, sep)
}

// V2ChunkKeyEncoding implements the legacy Zarr v2 encoding:
// {i0}.{i1}.... A rank-0 index maps to the literal key "0".
type V2ChunkKeyEncoding struct {
	Separator string
}

// NewV2ChunkKeyEncoding returns the v2 encoding with "." as separator.
func NewV2ChunkKeyEncoding() V2ChunkKeyEncoding {
	return V2ChunkKeyEncoding{Separator: "."}
}

func (e V2ChunkKeyEncoding) Encode(index []uint64) string {
	sep := e.Separator
	if sep == "" {
		sep = "."
	}
	if len(index) == 0 {
		return "0"
	}
	parts := make([]string, len(index))
	for i, v := range index {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, sep)
}

// ChunkKey returns the full store key for chunk index under prefix,
// using enc to encode the index suffix.
func ChunkKey(prefix string, enc ChunkKeyEncoding, index []uint64) string {
	suffix := enc.Encode(index)
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s%s", prefix, suffix)
}
