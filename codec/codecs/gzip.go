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
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/ndarray/zarrs/codec"
)

// GzipCodec is the built-in bytes→bytes codec wrapping
// klauspost/compress's drop-in replacement for the standard library's
// gzip package (same container format, faster implementation), used
// here rather than stdlib compress/gzip so every compressing bytes→bytes
// codec in this pipeline comes from the one compression library the donor
// codebase already depends on.
type GzipCodec struct {
	Level int
}

// NewGzip returns a gzip codec at the given compression level (see
// klauspost/compress/gzip's Best/Default/Speed constants).
func NewGzip(level int) GzipCodec {
	return GzipCodec{Level: level}
}

func (GzipCodec) ID() string { return "gzip" }

func (c GzipCodec) Encode(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, fmt.Errorf("codecs: gzip: %w", err)
	}
	if _, err := w.Write(input); err != nil {
		return nil, fmt.Errorf("codecs: gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codecs: gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func (GzipCodec) Decode(input []byte, validateChecksums bool) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("codecs: gzip decode: %w", err)
	}
	defer r.Close()
	// gzip's own trailer CRC-32 is always verified by the reader on
	// EOF; there is no way to skip it, so validateChecksums has no
	// additional effect for this codec beyond what the library always
	// does.
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codecs: gzip decode: %w", err)
	}
	return out, nil
}

func (GzipCodec) ComputeEncodedSize(nIn codec.EncodedSize) codec.EncodedSize {
	return codec.Unknown
}

func (c GzipCodec) CreateMetadata() (codec.Metadata, bool) {
	return codec.Metadata{Name: "gzip", Configuration: map[string]any{"level": c.Level}}, true
}

func (c GzipCodec) PartialDecoder(downstream codec.PartialDecoder) codec.PartialDecoder {
	return &wholeStreamDecoder{downstream: downstream, decode: func(b []byte) ([]byte, error) { return c.Decode(b, false) }}
}
