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

// Package httpstore implements a read-only reference Store that serves
// keys as paths beneath a base URL, issuing ranged GET requests and
// batching consecutive same-key ranges into a single multi-range
// request where the server supports it.
package httpstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ndarray/zarrs/byterange"
	"github.com/ndarray/zarrs/storage"
)

// Store is an HTTP-backed Readable storage.Store. It does not
// implement Writable or Listable; a server has no general notion of
// listing or mutating arbitrary URLs.
type Store struct {
	baseURL              *url.URL
	client               *http.Client
	batchRangeRequests bool
}

// New constructs a Store rooted at baseURL. Batched multi-range
// requests are enabled by default; some servers do not fully support
// multipart ranges and silently return the whole resource instead, in
// which case SetBatchRangeRequests(false) issues one request per
// range.
func New(baseURL string) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpstore: invalid base url %q: %w", baseURL, err)
	}
	return &Store{
		baseURL:            u,
		client:             http.DefaultClient,
		batchRangeRequests: true,
	}, nil
}

// SetBatchRangeRequests toggles whether consecutive ranges for the
// same key are coalesced into one multi-range GET.
func (s *Store) SetBatchRangeRequests(v bool) { s.batchRangeRequests = v }

func (s *Store) keyURL(key storage.Key) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(string(key), "/"))
	if err != nil {
		return "", err
	}
	return s.baseURL.ResolveReference(ref).String(), nil
}

func (s *Store) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	u, err := s.keyURL(key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &storage.StorageError{Op: "get", Key: string(key), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, storage.NotFound("get", string(key))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &storage.StorageError{Op: "get", Key: string(key), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return io.ReadAll(resp.Body)
}

func (s *Store) SizeKey(ctx context.Context, key storage.Key) (uint64, error) {
	u, err := s.keyURL(key)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, &storage.StorageError{Op: "size_key", Key: string(key), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, storage.NotFound("size_key", string(key))
	}
	n, err := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, &storage.StorageError{Op: "size_key", Key: string(key), Err: fmt.Errorf("invalid content-length: %w", err)}
	}
	return n, nil
}

// Size and SizePrefix have no general meaning for an HTTP endpoint.
func (s *Store) Size(ctx context.Context) (uint64, error) {
	return 0, storage.Unsupported("size", "http store cannot total a server's key space")
}

func (s *Store) SizePrefix(ctx context.Context, prefix storage.Prefix) (uint64, error) {
	return 0, storage.Unsupported("size_prefix", "http store cannot total a server's key space")
}

// getImpl issues one ranged GET for all of ranges against key,
// falling back to local slicing when the server answers with the full
// body instead of 206 Partial Content.
func (s *Store) getImpl(ctx context.Context, key storage.Key, ranges []byterange.Range) ([][]byte, error) {
	size, err := s.SizeKey(ctx, key)
	if err != nil {
		return nil, err
	}

	parts := make([]string, len(ranges))
	var wantTotal uint64
	for i, r := range ranges {
		start, err := r.Start(size)
		if err != nil {
			return nil, err
		}
		end, err := r.End(size)
		if err != nil {
			return nil, err
		}
		if end > start {
			parts[i] = fmt.Sprintf("%d-%d", start, end-1)
		} else {
			parts[i] = fmt.Sprintf("%d-%d", start, start)
		}
		length, err := r.Length(size)
		if err != nil {
			return nil, err
		}
		wantTotal += length
	}

	u, err := s.keyURL(key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes="+strings.Join(parts, ", "))
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &storage.StorageError{Op: "get_partial_values_key", Key: string(key), Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, storage.NotFound("get_partial_values_key", string(key))
	case http.StatusPartialContent:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if uint64(len(body)) != wantTotal {
			return nil, &storage.StorageError{Op: "get_partial_values_key", Key: string(key),
				Err: fmt.Errorf("partial content response did not include all requested byte ranges")}
		}
		out := make([][]byte, len(ranges))
		offset := 0
		for i, r := range ranges {
			l, _ := r.Length(size)
			out[i] = body[offset : offset+int(l)]
			offset += int(l)
		}
		return out, nil
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		out := make([][]byte, len(ranges))
		for i, r := range ranges {
			start, _ := r.Start(size)
			end, _ := r.End(size)
			if end > uint64(len(body)) {
				return nil, &storage.StorageError{Op: "get_partial_values_key", Key: string(key),
					Err: fmt.Errorf("server response shorter than resolved range")}
			}
			out[i] = body[start:end]
		}
		return out, nil
	default:
		return nil, &storage.StorageError{Op: "get_partial_values_key", Key: string(key),
			Err: fmt.Errorf("unexpected status %d for ranged request", resp.StatusCode)}
	}
}

func (s *Store) GetPartialValuesKey(ctx context.Context, key storage.Key, ranges []byterange.Range) ([][]byte, error) {
	return s.getImpl(ctx, key, ranges)
}

// GetPartialValues batches consecutive key ranges sharing the same
// key into one request when batchRangeRequests is set, mirroring the
// reference HTTP store's get_partial_values.
func (s *Store) GetPartialValues(ctx context.Context, keyRanges []storage.KeyRange) ([][]byte, []error) {
	out := make([][]byte, len(keyRanges))
	errs := make([]error, len(keyRanges))
	if len(keyRanges) == 0 {
		return out, errs
	}

	flush := func(key storage.Key, ranges []byterange.Range, idxs []int) {
		vs, err := s.getImpl(ctx, key, ranges)
		if err != nil {
			for _, idx := range idxs {
				errs[idx] = err
			}
			return
		}
		for j, idx := range idxs {
			out[idx] = vs[j]
		}
	}

	if !s.batchRangeRequests {
		for i, kr := range keyRanges {
			flush(kr.Key, []byterange.Range{kr.Range}, []int{i})
		}
		return out, errs
	}

	var curKey storage.Key
	var haveKey bool
	var ranges []byterange.Range
	var idxs []int
	for i, kr := range keyRanges {
		if haveKey && kr.Key != curKey {
			flush(curKey, ranges, idxs)
			ranges, idxs = nil, nil
		}
		curKey = kr.Key
		haveKey = true
		ranges = append(ranges, kr.Range)
		idxs = append(idxs, i)
	}
	if len(ranges) > 0 {
		flush(curKey, ranges, idxs)
	}
	return out, errs
}
