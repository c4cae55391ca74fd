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

import "fmt"

// ExtractSubset copies the elements of sub out of buf (a row-major
// buffer of the given shape, elemSize bytes per element) into a new,
// freshly-allocated row-major buffer of shape sub.Shape.
func ExtractSubset(buf []byte, shape Shape, elemSize int, sub Subset) []byte {
	rank := len(shape)
	out := make([]byte, sub.NumElements()*uint64(elemSize))
	if rank == 0 {
		copy(out, buf)
		return out
	}
	strides := rowMajorStridesElems(shape)
	idx := make([]uint64, rank)
	total := sub.NumElements()
	for linear := uint64(0); linear < total; linear++ {
		rem := linear
		for i := rank - 1; i >= 0; i-- {
			idx[i] = rem % sub.Shape[i]
			rem /= sub.Shape[i]
		}
		var srcOffset uint64
		for i := 0; i < rank; i++ {
			srcOffset += (sub.Start[i] + idx[i]) * strides[i]
		}
		dstOffset := linear * uint64(elemSize)
		copy(out[dstOffset:dstOffset+uint64(elemSize)], buf[srcOffset*uint64(elemSize):])
	}
	return out
}

// InsertSubset copies src (a row-major buffer of shape sub.Shape) into
// dst (a row-major buffer of the given shape) at location sub.
func InsertSubset(dst []byte, shape Shape, elemSize int, sub Subset, src []byte) {
	rank := len(shape)
	if rank == 0 {
		copy(dst, src)
		return
	}
	strides := rowMajorStridesElems(shape)
	idx := make([]uint64, rank)
	total := sub.NumElements()
	for linear := uint64(0); linear < total; linear++ {
		rem := linear
		for i := rank - 1; i >= 0; i-- {
			idx[i] = rem % sub.Shape[i]
			rem /= sub.Shape[i]
		}
		var dstOffset uint64
		for i := 0; i < rank; i++ {
			dstOffset += (sub.Start[i] + idx[i]) * strides[i]
		}
		srcOffset := linear * uint64(elemSize)
		copy(dst[dstOffset*uint64(elemSize):], src[srcOffset:srcOffset+uint64(elemSize)])
	}
}

func rowMajorStridesElems(shape Shape) []uint64 {
	strides := make([]uint64, len(shape))
	acc := uint64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Shape is a rank-length vector of non-negative dimension extents.
type Shape []uint64

// Subset is a hyperrectangular region of an n-d grid: a start
// coordinate per dimension and a shape per dimension.
type Subset struct {
	Start Shape
	Shape Shape
}

// NewSubset validates and constructs a Subset.
func NewSubset(start, shape []uint64) (Subset, error) {
	if len(start) != len(shape) {
		return Subset{}, fmt.Errorf("zarr: subset rank mismatch: start has %d dims, shape has %d", len(start), len(shape))
	}
	return Subset{Start: append(Shape(nil), start...), Shape: append(Shape(nil), shape...)}, nil
}

// End returns, per dimension, the exclusive end coordinate.
func (s Subset) End() Shape {
	end := make(Shape, len(s.Start))
	for i := range end {
		end[i] = s.Start[i] + s.Shape[i]
	}
	return end
}

// NumElements returns the total number of elements covered by s.
func (s Subset) NumElements() uint64 {
	n := uint64(1)
	for _, d := range s.Shape {
		n *= d
	}
	return n
}

// Covers reports whether s entirely contains other (same rank).
func (s Subset) Covers(other Subset) bool {
	end := s.End()
	otherEnd := other.End()
	for i := range other.Start {
		if s.Start[i] > other.Start[i] || end[i] < otherEnd[i] {
			return false
		}
	}
	return true
}

// Sub returns the coordinate-wise difference s.Start - origin,
// translating s's origin into a frame relative to origin (e.g. array
// coordinates into chunk-local coordinates).
func (s Subset) Sub(origin Shape) Shape {
	out := make(Shape, len(s.Start))
	for i := range out {
		out[i] = s.Start[i] - origin[i]
	}
	return out
}

// Row is one contiguous run of elements, expressed as a flat
// row-major element offset and length against some enclosing shape.
type Row struct {
	Offset uint64
	Length uint64
}

// Rows decomposes s into contiguous row-major runs against a buffer of
// shape fullShape: one run per combination of all but the innermost
// dimension, each run covering s.Shape[rank-1] contiguous elements.
// Runs that are adjacent in memory are not merged. This is the same flattening ExtractSubset/InsertSubset
// walk element-by-element; Rows exists so a caller driving a
// range-based interface (a codec.PartialDecoder stack) can ask for
// whole runs at once instead of one element at a time.
func (s Subset) Rows(fullShape Shape) []Row {
	rank := len(s.Shape)
	if rank == 0 {
		return []Row{{Offset: 0, Length: 1}}
	}
	strides := rowMajorStridesElems(fullShape)
	last := rank - 1
	rowLen := s.Shape[last]
	if rowLen == 0 {
		return nil
	}
	outer := s.Shape[:last]
	nOuter := uint64(1)
	for _, d := range outer {
		nOuter *= d
	}
	rows := make([]Row, nOuter)
	idx := make([]uint64, last)
	for r := uint64(0); r < nOuter; r++ {
		var offset uint64
		for i := 0; i < last; i++ {
			offset += (s.Start[i] + idx[i]) * strides[i]
		}
		offset += s.Start[last] * strides[last]
		rows[r] = Row{Offset: offset, Length: rowLen}
		for i := last - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outer[i] {
				break
			}
			idx[i] = 0
		}
	}
	return rows
}

// Intersect returns the overlap of a and b, and false if they do not
// overlap in every dimension.
func Intersect(a, b Subset) (Subset, bool) {
	rank := len(a.Start)
	start := make(Shape, rank)
	shape := make(Shape, rank)
	aEnd := a.End()
	bEnd := b.End()
	for i := 0; i < rank; i++ {
		s := a.Start[i]
		if b.Start[i] > s {
			s = b.Start[i]
		}
		e := aEnd[i]
		if bEnd[i] < e {
			e = bEnd[i]
		}
		if e <= s {
			return Subset{}, false
		}
		start[i] = s
		shape[i] = e - s
	}
	return Subset{Start: start, Shape: shape}, true
}

// InBounds reports whether s lies entirely within shape.
func (s Subset) InBounds(shape Shape) bool {
	if len(s.Shape) != len(shape) {
		return false
	}
	end := s.End()
	for i := range shape {
		if end[i] > shape[i] {
			return false
		}
	}
	return true
}

// ChunkGrid describes the regular partitioning of an array's Shape
// into chunks of ChunkShape.
type ChunkGrid struct {
	ArrayShape Shape
	ChunkShape Shape
}

// NumChunks returns the number of chunks along each dimension,
// rounding up for a partial boundary chunk.
func (g ChunkGrid) NumChunks() Shape {
	n := make(Shape, len(g.ArrayShape))
	for i := range n {
		n[i] = (g.ArrayShape[i] + g.ChunkShape[i] - 1) / g.ChunkShape[i]
	}
	return n
}

// ChunkOrigin returns the array coordinate of the first element of
// chunk index.
func (g ChunkGrid) ChunkOrigin(index []uint64) Shape {
	origin := make(Shape, len(index))
	for i, v := range index {
		origin[i] = v * g.ChunkShape[i]
	}
	return origin
}

// ChunkBounds returns the subset of the array's logical shape that
// chunk index actually covers, clipped to ArrayShape at the positive
// boundary.
func (g ChunkGrid) ChunkBounds(index []uint64) Subset {
	origin := g.ChunkOrigin(index)
	shape := make(Shape, len(index))
	for i := range shape {
		end := origin[i] + g.ChunkShape[i]
		if end > g.ArrayShape[i] {
			end = g.ArrayShape[i]
		}
		shape[i] = end - origin[i]
	}
	return Subset{Start: origin, Shape: shape}
}

// ChunkSubset is one (chunk index, in-chunk subset) decomposition unit
// produced by Decompose.
type ChunkSubset struct {
	Index      []uint64
	InChunk    Subset // subset coordinates relative to the chunk's own origin
	InArray    Subset // the same region, in array coordinates
}

// Decompose splits subset into per-chunk (chunk_index, in-chunk
// subset) tuples in row-major order over the chunk grid.
func (g ChunkGrid) Decompose(subset Subset) []ChunkSubset {
	rank := len(g.ArrayShape)
	if rank == 0 {
		return []ChunkSubset{{
			Index:   nil,
			InChunk: Subset{Start: Shape{}, Shape: Shape{}},
			InArray: subset,
		}}
	}

	end := subset.End()
	firstChunk := make([]uint64, rank)
	lastChunk := make([]uint64, rank)
	for i := 0; i < rank; i++ {
		firstChunk[i] = subset.Start[i] / g.ChunkShape[i]
		if end[i] == 0 {
			lastChunk[i] = firstChunk[i]
		} else {
			lastChunk[i] = (end[i] - 1) / g.ChunkShape[i]
		}
	}

	var out []ChunkSubset
	index := append([]uint64(nil), firstChunk...)
	for {
		origin := g.ChunkOrigin(index)
		inArrayStart := make(Shape, rank)
		inArrayShape := make(Shape, rank)
		for i := 0; i < rank; i++ {
			s := origin[i]
			if subset.Start[i] > s {
				s = subset.Start[i]
			}
			e := origin[i] + g.ChunkShape[i]
			if end[i] < e {
				e = end[i]
			}
			if g.ArrayShape[i] < e {
				e = g.ArrayShape[i]
			}
			inArrayStart[i] = s
			inArrayShape[i] = e - s
		}
		inChunkStart := make(Shape, rank)
		for i := 0; i < rank; i++ {
			inChunkStart[i] = inArrayStart[i] - origin[i]
		}
		out = append(out, ChunkSubset{
			Index:   append([]uint64(nil), index...),
			InChunk: Subset{Start: inChunkStart, Shape: append(Shape(nil), inArrayShape...)},
			InArray: Subset{Start: inArrayStart, Shape: append(Shape(nil), inArrayShape...)},
		})

		// odometer increment over [firstChunk, lastChunk]
		carry := rank - 1
		for carry >= 0 {
			index[carry]++
			if index[carry] <= lastChunk[carry] {
				break
			}
			index[carry] = firstChunk[carry]
			carry--
		}
		if carry < 0 {
			break
		}
	}
	return out
}
