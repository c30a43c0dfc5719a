// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package testing

import (
	"io"
	"math/rand/v2"
)

// FragmentingConn wraps a byte stream and returns reads in random short
// pieces, the way USB serial bridges deliver data. Writes pass through.
type FragmentingConn struct {
	backend io.ReadWriter
	rng     *rand.Rand
	pending []byte
	// MaxChunk bounds a single read. Zero means 8.
	MaxChunk int
}

// NewFragmentingConn wraps backend. A zero seed picks a random one.
func NewFragmentingConn(backend io.ReadWriter, seed uint64) *FragmentingConn {
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test jitter
	}
	return &FragmentingConn{
		backend: backend,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test jitter
	}
}

// Write passes data through to the backend.
func (f *FragmentingConn) Write(p []byte) (int, error) {
	return f.backend.Write(p) //nolint:wrapcheck // pass-through
}

// Read returns between one byte and MaxChunk bytes of backend data.
func (f *FragmentingConn) Read(buf []byte) (int, error) {
	if len(f.pending) == 0 {
		tmp := make([]byte, len(buf))
		n, err := f.backend.Read(tmp)
		if n == 0 || err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		f.pending = tmp[:n]
	}

	limit := f.MaxChunk
	if limit <= 0 {
		limit = 8
	}
	limit = min(limit, len(buf), len(f.pending))
	n := 1 + f.rng.IntN(limit)
	copy(buf, f.pending[:n])
	f.pending = f.pending[n:]
	return n, nil
}
