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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// DescribeTLV renders BER-TLV encoded response data as indented lines, one
// per element. Constructed elements list their children below them.
func DescribeTLV(data []byte) (string, error) {
	tlvs, err := bertlv.Decode(data)
	if err != nil {
		return "", fmt.Errorf("bertlv decode failed: %w", err)
	}
	var lines []string
	describeTLVs(&lines, tlvs, 0)
	return strings.Join(lines, "\n"), nil
}

func describeTLVs(lines *[]string, tlvs []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, t := range tlvs {
		tag := strings.ToUpper(t.Tag)
		if len(t.TLVs) > 0 {
			*lines = append(*lines, fmt.Sprintf("%s- %s:", indent, tag))
			describeTLVs(lines, t.TLVs, depth+1)
			continue
		}
		line := fmt.Sprintf("%s- %s: %s", indent, tag, strings.ToUpper(hex.EncodeToString(t.Value)))
		if printable(t.Value) {
			line += fmt.Sprintf(" (%q)", string(t.Value))
		}
		*lines = append(*lines, line)
	}
}

func printable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
