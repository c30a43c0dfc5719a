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

import "encoding/binary"

// BufferSize is the size of the buffer shared by commands and responses.
const BufferSize = 260

// HeaderSize is the length of the CLA INS P1 P2 header.
const HeaderSize = 4

// Header is the four byte command header. It is a copy: after the next reply
// it describes a command that is no longer in the buffer.
type Header struct {
	CLA byte
	INS byte
	P1  byte
	P2  byte
}

func readHeader(buf []byte) Header {
	return Header{CLA: buf[0], INS: buf[1], P1: buf[2], P2: buf[3]}
}

// dataField locates the data field of the rx byte command held in buf.
//
// Two encodings are accepted. A non-zero fifth byte is the data length and
// data starts at offset 5. A zero fifth byte introduces a little-endian 16-bit
// length in bytes 5 and 6 with data at offset 7. A lone zero fifth byte is an
// empty data field; a zero followed by a single byte is malformed.
func dataField(buf []byte, rx int) (off, n int, err error) {
	if rx < HeaderSize {
		return 0, 0, StatusBadLen
	}
	if rx == HeaderSize {
		return HeaderSize, 0, nil
	}

	first := int(buf[4])
	switch {
	case first == 0 && rx == 5:
		return 5, 0, nil
	case first == 0 && rx == 6:
		return 0, 0, StatusBadLen
	case first == 0:
		off, n = 7, int(binary.LittleEndian.Uint16(buf[5:7]))
	default:
		off, n = 5, first
	}
	if n == 0 || off+n > rx {
		return 0, 0, StatusBadLen
	}
	return off, n, nil
}
