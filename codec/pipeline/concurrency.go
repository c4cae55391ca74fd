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

package pipeline

// ConcurrencyBudget implements the chunk/codec concurrency split
// policy: given N chunks to process and a total target T, prefer
// min(N, max(chunkConcurrentMinimum, T/perChunkCodecTarget)) chunks in
// flight, each with T/chunksInFlight codec concurrency. A zero target
// means unconstrained (returns N chunks in flight and a codec target
// of 0, leaving codec concurrency unconstrained).
type ConcurrencyBudget struct {
	ChunksInFlight int
	CodecTarget    int
}

// Split computes the concurrency split for n chunks given a total
// target t and a per-chunk codec target hint (the degree of
// parallelism one chunk's codec stack uses well on its own).
func Split(n, t, chunkConcurrentMinimum, perChunkCodecTarget int) ConcurrencyBudget {
	if n <= 0 {
		return ConcurrencyBudget{}
	}
	if t <= 0 {
		return ConcurrencyBudget{ChunksInFlight: n, CodecTarget: 0}
	}
	if perChunkCodecTarget <= 0 {
		perChunkCodecTarget = 1
	}
	chunksInFlight := t / perChunkCodecTarget
	if chunksInFlight < chunkConcurrentMinimum {
		chunksInFlight = chunkConcurrentMinimum
	}
	if chunksInFlight > n {
		chunksInFlight = n
	}
	if chunksInFlight < 1 {
		chunksInFlight = 1
	}
	codecTarget := t / chunksInFlight
	if codecTarget < 1 {
		codecTarget = 1
	}
	return ConcurrencyBudget{ChunksInFlight: chunksInFlight, CodecTarget: codecTarget}
}
