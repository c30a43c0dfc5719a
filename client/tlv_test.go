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

package client

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDescribeTLV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		want  []string
	}{
		{
			name: "Nested_template",
			input: []byte{
				0x6F, 0x0A,
				0x84, 0x03, 0xA0, 0x00, 0x01,
				0x50, 0x03, 'A', 'B', 'C',
				0x9F, 0x01, 0x02, 0x12, 0x34,
			},
			want: []string{
				"- 6F:",
				"  - 84: A00001",
				`  - 50: 414243 ("ABC")`,
				"- 9F01: 1234",
			},
		},
		{
			name:  "Single_primitive",
			input: []byte{0x5A, 0x02, 0x00, 0xFF},
			want:  []string{"- 5A: 00FF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := DescribeTLV(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, strings.Split(out, "\n")); diff != "" {
				t.Errorf("DescribeTLV() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDescribeTLV_Truncated(t *testing.T) {
	t.Parallel()

	_, err := DescribeTLV([]byte{0x84, 0x05, 0x01})
	require.Error(t, err)
}
