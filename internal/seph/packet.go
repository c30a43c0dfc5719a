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

package seph

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrShortPacket is returned when fewer than HeaderSize bytes are available.
	ErrShortPacket = errors.New("seph: packet shorter than header")
	// ErrShortXfer is returned when an endpoint transfer payload lacks its header.
	ErrShortXfer = errors.New("seph: endpoint transfer payload too short")
	// ErrPayloadTooLarge is returned when a command does not fit a packet length field.
	ErrPayloadTooLarge = errors.New("seph: payload too large")
)

// Packet is a decoded view over a received buffer. Payload aliases the buffer.
type Packet struct {
	Payload []byte
	Len     int
	Tag     byte
	// Truncated reports that fewer payload bytes were received than the
	// length field declares. Payload is clipped to what is available.
	Truncated bool
}

// Parse decodes the packet held in the first n bytes of buf.
func Parse(buf []byte, n int) (Packet, error) {
	if n > len(buf) {
		n = len(buf)
	}
	if n < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	declared := int(binary.BigEndian.Uint16(buf[1:3]))
	end := HeaderSize + declared
	p := Packet{Tag: buf[0], Len: declared}
	if end > n {
		end = n
		p.Truncated = true
	}
	p.Payload = buf[HeaderSize:end]
	return p, nil
}

// ButtonSample extracts the two-bit button line sample from a button push
// payload. The lowest bit of the raw byte is not a button line.
func ButtonSample(payload []byte) byte {
	if len(payload) == 0 {
		return 0
	}
	return payload[0] >> 1
}

// Xfer is a decoded USB endpoint transfer event.
type Xfer struct {
	Data     []byte
	Endpoint byte
	Kind     byte
}

// ParseXfer decodes an endpoint transfer payload: [ep][kind][len][data].
func ParseXfer(payload []byte) (Xfer, error) {
	if len(payload) < 3 {
		return Xfer{}, ErrShortXfer
	}
	n := int(payload[2])
	if 3+n > len(payload) {
		n = len(payload) - 3
	}
	return Xfer{
		Endpoint: payload[0],
		Kind:     payload[1],
		Data:     payload[3 : 3+n],
	}, nil
}

// PutHeader writes a command header for a payload of n bytes into dst.
func PutHeader(dst []byte, tag byte, n int) error {
	if n > 0xFFFF {
		return ErrPayloadTooLarge
	}
	dst[0] = tag
	binary.BigEndian.PutUint16(dst[1:3], uint16(n))
	return nil
}

// EPPrepareOverhead is the number of bytes an endpoint prepare command adds
// in front of the endpoint data.
const EPPrepareOverhead = HeaderSize + 3

// PutEPPrepare encodes an endpoint prepare command into dst and returns its
// length. dst must hold EPPrepareOverhead+len(data) bytes.
func PutEPPrepare(dst []byte, ep, dir byte, data []byte) (int, error) {
	if len(data) > 0xFF {
		return 0, ErrPayloadTooLarge
	}
	if err := PutHeader(dst, TagUSBEPPrepare, 3+len(data)); err != nil {
		return 0, err
	}
	dst[3] = ep
	dst[4] = dir
	dst[5] = byte(len(data))
	copy(dst[EPPrepareOverhead:], data)
	return EPPrepareOverhead + len(data), nil
}
