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

// Package byterange implements the byte-range algebra used to resolve
// ranged reads against a store key of known size: absolute ranges from
// the start of a blob, and suffix ranges from its end.
package byterange

import (
	"errors"
	"fmt"
)

// ErrInvalidByteRange is returned when a Range resolves to an interval
// that is not contained in [0, n] for the size n it is resolved against.
var ErrInvalidByteRange = errors.New("byterange: invalid byte range")

// Range is a tagged union of a range measured from the start of a blob
// (with an optional known length) and a range measured as a suffix of a
// fixed length from the end of a blob. The zero value equals
// FromStart(0), the whole blob.
type Range struct {
	fromEnd    bool
	offset     uint64 // FromStart: offset. FromEnd: suffix length.
	length     uint64
	hasLength  bool // only meaningful when !fromEnd
}

// FromStart returns a Range beginning at offset and running to the end
// of the blob.
func FromStart(offset uint64) Range {
	return Range{offset: offset}
}

// FromStartLength returns a Range beginning at offset and running for
// exactly length bytes.
func FromStartLength(offset, length uint64) Range {
	return Range{offset: offset, length: length, hasLength: true}
}

// FromEnd returns a Range covering the last suffixLength bytes of the
// blob.
func FromEnd(suffixLength uint64) Range {
	return Range{fromEnd: true, offset: suffixLength}
}

// Start returns the absolute start offset of r when resolved against a
// blob of total size n.
func (r Range) Start(n uint64) (uint64, error) {
	if r.fromEnd {
		if r.offset > n {
			return 0, fmt.Errorf("%w: suffix length %d exceeds size %d", ErrInvalidByteRange, r.offset, n)
		}
		return n - r.offset, nil
	}
	if r.offset > n {
		return 0, fmt.Errorf("%w: start %d exceeds size %d", ErrInvalidByteRange, r.offset, n)
	}
	return r.offset, nil
}

// End returns the absolute end offset (exclusive) of r when resolved
// against a blob of total size n.
func (r Range) End(n uint64) (uint64, error) {
	if r.fromEnd {
		return n, nil
	}
	if !r.hasLength {
		if r.offset > n {
			return 0, fmt.Errorf("%w: start %d exceeds size %d", ErrInvalidByteRange, r.offset, n)
		}
		return n, nil
	}
	end := r.offset + r.length
	if end > n {
		return 0, fmt.Errorf("%w: end %d exceeds size %d", ErrInvalidByteRange, end, n)
	}
	return end, nil
}

// Length returns the resolved length in bytes of r against a blob of
// total size n.
func (r Range) Length(n uint64) (uint64, error) {
	start, err := r.Start(n)
	if err != nil {
		return 0, err
	}
	end, err := r.End(n)
	if err != nil {
		return 0, err
	}
	return end - start, nil
}

// Offset is an alias for Start, named to match the byte-range algebra's
// four pure accessors (start, end, length, offset).
func (r Range) Offset(n uint64) (uint64, error) {
	return r.Start(n)
}

// String renders r in a debug-friendly form.
func (r Range) String() string {
	if r.fromEnd {
		return fmt.Sprintf("FromEnd(%d)", r.offset)
	}
	if r.hasLength {
		return fmt.Sprintf("FromStart(%d, %d)", r.offset, r.length)
	}
	return fmt.Sprintf("FromStart(%d, ..)", r.offset)
}
