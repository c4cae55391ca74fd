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
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ndarray/zarrs/codec"
)

// ZstdCodec is the built-in bytes→bytes codec wrapping
// klauspost/compress's zstd implementation, the same library and
// global-single-decoder pattern the donor codebase's compr package
// uses (one shared *zstd.Decoder per process, concurrency pinned to
// runtime.GOMAXPROCS(0) rather than the library's own default of
// min(4, GOMAXPROCS)).
type ZstdCodec struct {
	level    zstd.EncoderLevel
	checksum bool
}

// NewZstd returns a zstd codec at the given compression level.
// checksum controls whether the encoder appends its own content
// checksum. Decode does not consult its validateChecksums argument:
// the shared decoder verifies a frame's checksum whenever one is
// present.
func NewZstd(level zstd.EncoderLevel, checksum bool) ZstdCodec {
	return ZstdCodec{level: level, checksum: checksum}
}

func (ZstdCodec) ID() string { return "zstd" }

func (c ZstdCodec) Encode(input []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(c.level),
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderCRC(c.checksum))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(input, nil), nil
}

var (
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
)

func sharedZstdDecoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(concurrencyDefault()))
		if err != nil {
			panic(err)
		}
		zstdDecoder = d
	})
	return zstdDecoder
}

func (c ZstdCodec) Decode(input []byte, validateChecksums bool) ([]byte, error) {
	d := sharedZstdDecoder()
	out, err := d.DecodeAll(input, nil)
	if err != nil {
		return nil, fmt.Errorf("codecs: zstd decode: %w", err)
	}
	return out, nil
}

func (ZstdCodec) ComputeEncodedSize(nIn codec.EncodedSize) codec.EncodedSize {
	return codec.Unknown
}

func (c ZstdCodec) CreateMetadata() (codec.Metadata, bool) {
	return codec.Metadata{Name: "zstd", Configuration: map[string]any{"level": int(c.level), "checksum": c.checksum}}, true
}

func (c ZstdCodec) PartialDecoder(downstream codec.PartialDecoder) codec.PartialDecoder {
	// zstd's frame format is not seekable by byte offset without a
	// skippable-frame index this engine does not maintain, so partial
	// reads decode the whole stream once and cache it.
	return &wholeStreamDecoder{downstream: downstream, decode: func(b []byte) ([]byte, error) { return c.Decode(b, false) }}
}
