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

// Package zarrconfig holds the process-wide configuration singleton:
// checksum validation, empty-chunk policy, concurrency defaults, and
// experimental feature flags, read by every other package through
// Get(). This mirrors the donor codebase's own package-level
// configuration singletons (e.g. its env-driven tuning knobs), but
// composed into one guarded struct rather than scattered globals.
package zarrconfig

import (
	"runtime"
	"sync"
)

// MetadataVersionPolicy selects which Zarr metadata version an
// operation reads or writes.
type MetadataVersionPolicy int

const (
	// KeepInput preserves whatever version was already present (for
	// write: the version the array was opened with; for erase: every
	// version key that exists).
	KeepInput MetadataVersionPolicy = iota
	VersionV2
	VersionV3
)

// Config is the full set of process-wide tunables. Zero value is
// never valid on its own; always obtain one via Get() or Default().
type Config struct {
	ValidateChecksums bool
	StoreEmptyChunks  bool

	CodecConcurrentTarget  int
	ChunkConcurrentMinimum int

	ExperimentalCodecStoreMetadataIfEncodeOnly bool
	ExperimentalPartialEncoding                bool

	MetadataConvertVersion MetadataVersionPolicy
	MetadataEraseVersion   MetadataVersionPolicy

	IncludeZarrsMetadata bool
}

// Default returns the spec-mandated default configuration, computing
// CodecConcurrentTarget from the host's available parallelism.
func Default() Config {
	return Config{
		ValidateChecksums:      true,
		StoreEmptyChunks:       false,
		CodecConcurrentTarget:  runtime.GOMAXPROCS(0),
		ChunkConcurrentMinimum: 4,
		ExperimentalCodecStoreMetadataIfEncodeOnly: false,
		ExperimentalPartialEncoding:                false,
		MetadataConvertVersion:                     KeepInput,
		MetadataEraseVersion:                        KeepInput,
		IncludeZarrsMetadata:                        true,
	}
}

var (
	mu      sync.RWMutex
	current *Config
)

// Get returns the current global configuration, lazily initialising
// it to Default() on first use.
func Get() Config {
	mu.RLock()
	if current != nil {
		defer mu.RUnlock()
		return *current
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		d := Default()
		current = &d
	}
	return *current
}

// Set replaces the global configuration wholesale.
func Set(c Config) {
	mu.Lock()
	defer mu.Unlock()
	current = &c
}

// Update applies fn to a copy of the current configuration and
// installs the result, returning the new value.
func Update(fn func(*Config)) Config {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		d := Default()
		current = &d
	}
	c := *current
	fn(&c)
	current = &c
	return c
}

// Reset restores the default configuration, primarily for test
// isolation between cases that call Set/Update.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
}
