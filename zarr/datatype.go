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

// DataType is a tagged element data type with a fixed byte size.
type DataType int

const (
	Bool DataType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	BFloat16
	Float32
	Float64
	Complex64
	Complex128
	// RawBits is an opaque fixed-width byte pattern with no numeric
	// interpretation; its width is not fixed by the type tag, and Size
	// panics for it.
	RawBits
)

var fixedSizes = map[DataType]int{
	Bool:       1,
	Int8:       1,
	Int16:      2,
	Int32:      4,
	Int64:      8,
	Uint8:      1,
	Uint16:     2,
	Uint32:     4,
	Uint64:     8,
	Float16:    2,
	BFloat16:   2,
	Float32:    4,
	Float64:    8,
	Complex64:  8,
	Complex128: 16,
}

// Size returns the number of bytes one element of dt occupies. It
// panics for RawBits, whose size is not fixed by the type tag alone.
func (dt DataType) Size() int {
	if n, ok := fixedSizes[dt]; ok {
		return n
	}
	panic(fmt.Sprintf("zarr: DataType(%d).Size() has no fixed size", dt))
}

func (dt DataType) String() string {
	switch dt {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	case RawBits:
		return "raw_bits"
	default:
		return fmt.Sprintf("DataType(%d)", int(dt))
	}
}
