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

package array

import (
	"sync"

	"github.com/ndarray/zarrs/zarr"
)

// forEachChunk dispatches fn over parts with workers goroutines
// pulling from a bounded work channel, matching the donor codebase's
// own bounded-worker-pool compression loop (falk-nsz-go's
// compressBlocks: a fixed worker count draining a buffered channel,
// a sync.WaitGroup for completion, and the first error reported
// winning via sync.Once). Unlike that loop this has no result channel
// to drain back in order: each worker writes its chunk's result
// directly into the caller's shared output buffer at disjoint offsets,
// so no result collection stage is needed.
//
// Per §7, a failing chunk does not cancel chunks already in flight;
// forEachChunk returns the first error encountered once every chunk
// has been attempted.
func forEachChunk(parts []zarr.ChunkSubset, workers int, fn func(zarr.ChunkSubset) error) error {
	if len(parts) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(parts) {
		workers = len(parts)
	}

	workCh := make(chan zarr.ChunkSubset, workers)
	var wg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range workCh {
				if err := fn(p); err != nil {
					errOnce.Do(func() { firstErr = err })
				}
			}
		}()
	}

	for _, p := range parts {
		workCh <- p
	}
	close(workCh)
	wg.Wait()

	return firstErr
}
