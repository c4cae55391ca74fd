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

import "bytes"

// FillValue is the byte pattern returned for elements that have never
// been written; its length equals one element's encoded size.
type FillValue []byte

// Equal reports whether buf is entirely made of repetitions of fv,
// i.e. every element in buf equals the fill value byte-for-byte.
func (fv FillValue) Equal(buf []byte) bool {
	if len(fv) == 0 {
		return len(buf) == 0
	}
	if len(buf)%len(fv) != 0 {
		return false
	}
	for i := 0; i < len(buf); i += len(fv) {
		if !bytes.Equal(buf[i:i+len(fv)], fv) {
			return false
		}
	}
	return true
}

// Fill returns a buffer of n elements, each set to fv.
func (fv FillValue) Fill(n uint64) []byte {
	out := make([]byte, n*uint64(len(fv)))
	for i := uint64(0); i < n; i++ {
		copy(out[i*uint64(len(fv)):], fv)
	}
	return out
}
