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

package seio

import (
	"testing"
)

// FuzzDataField checks that the data field never reaches past rx.
//
// Run with: go test -fuzz=FuzzDataField -fuzztime=30s .
func FuzzDataField(f *testing.F) {
	f.Add([]byte{0xE0, 0x01, 0x00, 0x00}, 4)
	f.Add([]byte{0xE0, 0x01, 0x00, 0x00, 0x00}, 5)
	f.Add([]byte{0xE0, 0x01, 0x00, 0x00, 0x00, 0x01}, 6)
	f.Add([]byte{0xE0, 0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0x01}, 8)
	f.Add([]byte{0xE0, 0x01, 0x00, 0x00, 0x02, 0x01, 0x02}, 7)

	f.Fuzz(func(t *testing.T, data []byte, rx int) {
		if rx < 0 || rx > BufferSize {
			return
		}
		buf := make([]byte, BufferSize)
		copy(buf, data)

		off, n, err := dataField(buf, rx)
		if err != nil {
			return
		}
		if off+n > rx {
			t.Errorf("data [%d:%d] past rx %d", off, off+n, rx)
		}
		if n > 0 && off != 5 && off != 7 {
			t.Errorf("unexpected data offset %d", off)
		}
	})
}
