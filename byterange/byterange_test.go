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

package byterange

import (
	"errors"
	"testing"
)

func TestFromStartNoLength(t *testing.T) {
	r := FromStart(4)
	start, err := r.Start(10)
	if err != nil || start != 4 {
		t.Fatalf("start: got (%d, %v)", start, err)
	}
	end, err := r.End(10)
	if err != nil || end != 10 {
		t.Fatalf("end: got (%d, %v)", end, err)
	}
	length, err := r.Length(10)
	if err != nil || length != 6 {
		t.Fatalf("length: got (%d, %v)", length, err)
	}
}

func TestFromStartLength(t *testing.T) {
	r := FromStartLength(2, 3)
	start, _ := r.Start(10)
	end, _ := r.End(10)
	length, _ := r.Length(10)
	if start != 2 || end != 5 || length != 3 {
		t.Fatalf("got start=%d end=%d length=%d", start, end, length)
	}
}

func TestFromEnd(t *testing.T) {
	r := FromEnd(3)
	start, _ := r.Start(10)
	end, _ := r.End(10)
	length, _ := r.Length(10)
	if start != 7 || end != 10 || length != 3 {
		t.Fatalf("got start=%d end=%d length=%d", start, end, length)
	}
}

func TestEmptyRangeIsLegal(t *testing.T) {
	r := FromStartLength(5, 0)
	length, err := r.Length(10)
	if err != nil || length != 0 {
		t.Fatalf("empty range should resolve cleanly, got (%d, %v)", length, err)
	}
}

func TestOutOfBounds(t *testing.T) {
	cases := []Range{
		FromStartLength(5, 100),
		FromStart(100),
		FromEnd(100),
	}
	for _, r := range cases {
		if _, err := r.Length(10); !errors.Is(err, ErrInvalidByteRange) {
			t.Fatalf("%v: expected ErrInvalidByteRange, got %v", r, err)
		}
	}
}

func TestLengthStartEndIdentity(t *testing.T) {
	ranges := []Range{
		FromStartLength(0, 4),
		FromStartLength(3, 2),
		FromEnd(5),
		FromStart(1),
	}
	const n = 10
	for _, r := range ranges {
		start, err := r.Start(n)
		if err != nil {
			t.Fatal(err)
		}
		end, err := r.End(n)
		if err != nil {
			t.Fatal(err)
		}
		length, err := r.Length(n)
		if err != nil {
			t.Fatal(err)
		}
		if length+start != end {
			t.Fatalf("%v: length(n)+start(n) != end(n): %d+%d != %d", r, length, start, end)
		}
		if end > n {
			t.Fatalf("%v: end(n) > n", r)
		}
	}
}
