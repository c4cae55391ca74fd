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

// Package codec defines the three codec families of the pipeline
// (array→array, array→bytes, bytes→bytes), generalizing the donor
// codebase's single-family Compressor/Decompressor contract
// (compr.Compressor / compr.Decompressor) to the three families this
// engine's codec pipeline composes.
package codec

import (
	"errors"
	"fmt"

	"github.com/ndarray/zarrs/zarr"
)

// ErrUnsupportedDataType is returned when a codec is asked to encode
// or decode a representation whose data type it does not support.
var ErrUnsupportedDataType = errors.New("codec: unsupported data type")

// ErrInvalidBytesLength is returned when a codec receives a byte
// buffer whose length does not match what its representation implies.
var ErrInvalidBytesLength = errors.New("codec: invalid bytes length")

// ErrChunkAbsent is returned by a PartialReadTarget's ReadRange when
// the underlying store key does not exist at all, distinguishing "key
// absent" from a range resolution failure against a key that does
// exist. Codecs performing a partial decode or partial encode treat
// this as "every inner element is currently fill value".
var ErrChunkAbsent = errors.New("codec: chunk key does not exist")

// UnsupportedDataType builds an error identifying the rejecting codec.
func UnsupportedDataType(dt zarr.DataType, codecID string) error {
	return fmt.Errorf("%w: %s rejects %s", ErrUnsupportedDataType, codecID, dt)
}

// InvalidBytesLength builds an error reporting a length mismatch.
func InvalidBytesLength(got, want int) error {
	return fmt.Errorf("%w: got %d, want %d", ErrInvalidBytesLength, got, want)
}

// Representation describes an array→array codec's element buffer: its
// logical shape and element data type.
type Representation struct {
	Shape    zarr.Shape
	DataType zarr.DataType
}

// NumElements returns the total element count of r.
func (r Representation) NumElements() uint64 {
	n := uint64(1)
	for _, d := range r.Shape {
		n *= d
	}
	return n
}

// ByteSize returns the encoded byte size this representation occupies
// in a raw (uncompressed) element packing.
func (r Representation) ByteSize() uint64 {
	return r.NumElements() * uint64(r.DataType.Size())
}

// EncodedSize describes a bytes→bytes codec's output size: either a
// known exact count, or unknown (e.g. variable-length compression).
type EncodedSize struct {
	Known bool
	Size  uint64
}

// Unknown is the EncodedSize value for codecs whose output length
// cannot be predicted without running the codec.
var Unknown = EncodedSize{}

// Exactly returns a known EncodedSize of n bytes.
func Exactly(n uint64) EncodedSize { return EncodedSize{Known: true, Size: n} }

// PartialDecoder answers requests for subranges of a logical chunk
// without necessarily materialising the whole chunk. See package
// codec/partial for the composition machinery; this is the minimal
// shape each codec family's decoder must expose to be wrapped.
type PartialDecoder interface {
	// PartialDecode returns one output per input range, preserving
	// order.
	PartialDecode(ranges []Range) ([][]byte, error)
	// DecodesAll reports whether this decoder always reads the whole
	// chunk regardless of the requested ranges (the
	// partial_decoder_decodes_all hint).
	DecodesAll() bool
	// ShouldCacheInput reports whether callers should memoize the raw
	// input bytes across PartialDecode calls because the downstream
	// layer is not cheaply re-readable (e.g. a non-seekable gzip
	// stream).
	ShouldCacheInput() bool
}

// Range is a byte or element subrange request passed to a
// PartialDecoder; which unit it is measured in is determined by the
// position of the decoder in the stack (byte ranges below the
// array→bytes codec, element ranges above it).
type Range struct {
	Offset uint64
	Length uint64
}

// ToEndLength is the sentinel Length value meaning "run to the end of
// the underlying buffer", used when a whole-stream decoder needs to
// pull everything downstream has without knowing its size up front.
const ToEndLength = ^uint64(0)

// ToEnd returns a Range running from offset to the end of whatever
// downstream serves.
func ToEnd(offset uint64) Range {
	return Range{Offset: offset, Length: ToEndLength}
}

// Metadata is an opaque, codec-specific serialisable description of a
// codec's configuration, used when materialising array metadata.
// CreateMetadata may return (Metadata{}, false) to suppress metadata emission
// entirely (e.g. an irreversible codec not yet accepted by the Zarr
// metadata spec).
type Metadata struct {
	Name          string
	Configuration map[string]any
}

// ArrayToArrayCodec transforms an element buffer into another element
// buffer of possibly different representation (e.g. transpose,
// bit-rounding).
type ArrayToArrayCodec interface {
	ID() string
	Encode(input []byte, inputRepr Representation) ([]byte, error)
	Decode(input []byte, outputRepr Representation) ([]byte, error)
	// ComputeEncodedRepresentation reports the output representation
	// this codec produces for a given input representation.
	ComputeEncodedRepresentation(inputRepr Representation) (Representation, error)
	CreateMetadata() (Metadata, bool)
	// PartialDecoder wraps downstream (which serves ranges in this
	// codec's own encoded representation) and returns a decoder
	// serving ranges in inputRepr's representation.
	PartialDecoder(downstream PartialDecoder, inputRepr Representation) PartialDecoder
}

// ArrayToBytesCodec serialises an element buffer to a byte blob (e.g.
// raw packing, sharding). Exactly one appears per pipeline.
type ArrayToBytesCodec interface {
	ID() string
	Encode(input []byte, inputRepr Representation) ([]byte, error)
	Decode(input []byte, outputRepr Representation) ([]byte, error)
	ComputeEncodedSize(inputRepr Representation) EncodedSize
	CreateMetadata() (Metadata, bool)
	// PartialDecoder wraps downstream (a byte-range server over the
	// codec's stored bytes) and returns a decoder serving element
	// ranges of inputRepr.
	PartialDecoder(downstream PartialDecoder, inputRepr Representation) PartialDecoder
}

// PartialReadTarget is the ranged-read capability a codec needs to
// serve a partial decode of its own stored bytes without going through
// the generic flat-Range PartialDecoder stack — used by codecs (namely
// sharding) whose partial decode is naturally expressed over the
// multi-dimensional subset of their own chunk grid rather than a list
// of byte ranges.
type PartialReadTarget interface {
	// Size reports the current stored size of the underlying key, and
	// whether it exists at all.
	Size() (size uint64, exists bool, err error)
	// ReadRange reads [offset, offset+length) of the current stored
	// bytes. Returns ErrChunkAbsent if the key does not exist.
	ReadRange(offset, length uint64) ([]byte, error)
}

// PartialEncodeTarget additionally allows a codec to apply a partial
// update of its own stored bytes, used by PartialEncoder.
type PartialEncodeTarget interface {
	PartialReadTarget
	// WriteRange overlays data at offset within the stored blob,
	// extending it if necessary. Each call corresponds to exactly one
	// store write operation.
	WriteRange(offset uint64, data []byte) error
}

// SubsetDecoder is implemented by array→bytes codecs whose partial
// decode is cheaper to express directly over a multi-dimensional
// subset of their chunk shape than over the generic PartialDecoder's
// flat ranges (the sharding codec: it need only read its index plus
// the inner chunks a subset overlaps). The array engine prefers this
// interface when the pipeline's array→bytes codec implements it.
type SubsetDecoder interface {
	// DecodeSubset returns the decoded elements of subset (subset
	// coordinates are relative to fullRepr.Shape), reading only the
	// store ranges the subset actually touches.
	DecodeSubset(target PartialReadTarget, fullRepr Representation, subset zarr.Subset, validateChecksums bool) ([]byte, error)
}

// PartialEncoder is implemented by array→bytes codecs that can apply a
// partial update of a subset of the outer chunk without a full
// decode-merge-encode of the whole chunk (the sharding codec's
// read-modify-write of only the inner chunks a subset overlaps, §4.5).
// Codecs that do not implement this interface are served through the
// array engine's decode-merge-encode fallback instead.
type PartialEncoder interface {
	// PartialEncode merges newElems (row-major elements of subset, in
	// fullRepr's data type) into the chunk reachable through target.
	// It returns erase=true if the merge leaves every element of the
	// chunk equal to fillValue, in which case the caller is
	// responsible for erasing the store key instead of trusting any
	// writes PartialEncode may already have issued for the
	// now-abandoned body bytes.
	PartialEncode(target PartialEncodeTarget, fullRepr Representation, subset zarr.Subset, newElems []byte, fillValue zarr.FillValue) (erase bool, err error)
}

// BytesToBytesCodec transforms bytes to bytes (e.g. gzip, zstd, blosc,
// bz2, crc32c). May append checksums; must refuse inputs whose
// checksum fails when validateChecksums is true.
type BytesToBytesCodec interface {
	ID() string
	Encode(input []byte) ([]byte, error)
	Decode(input []byte, validateChecksums bool) ([]byte, error)
	ComputeEncodedSize(nIn EncodedSize) EncodedSize
	CreateMetadata() (Metadata, bool)
	// PartialDecoder wraps downstream (serving ranges of this
	// codec's own encoded bytes) and returns a decoder serving ranges
	// of the codec's decoded bytes.
	PartialDecoder(downstream PartialDecoder) PartialDecoder
}
