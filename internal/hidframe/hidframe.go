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

// Package hidframe implements the chunked APDU framing used over USB-HID
// reports and BLE characteristic writes.
//
// A USB-HID chunk is laid out as
//
//	[channel BE16][tag 0x05][sequence BE16][total length BE16, first chunk only][data]
//
// BLE chunks use the same layout without the channel.
package hidframe

import (
	"encoding/binary"
	"errors"
)

// TagAPDU marks a chunk carrying APDU bytes.
const TagAPDU = 0x05

// Framing constants
const (
	ReportSize     = 64     // USB-HID report size
	DefaultChannel = 0x0101 // channel used by host tools
	BLEChunkSize   = 20     // default BLE chunk size (MTU 23)
)

var (
	// ErrShortChunk is returned when a chunk is too small to hold its header.
	ErrShortChunk = errors.New("hidframe: chunk too short")
	// ErrBadTag is returned for chunks whose tag is not TagAPDU.
	ErrBadTag = errors.New("hidframe: unexpected tag")
	// ErrBadSequence is returned when a chunk arrives out of order.
	ErrBadSequence = errors.New("hidframe: unexpected sequence number")
	// ErrBadChannel is returned when a continuation arrives on another channel.
	ErrBadChannel = errors.New("hidframe: channel changed mid message")
	// ErrOverflow is returned when a message does not fit the destination.
	ErrOverflow = errors.New("hidframe: message exceeds buffer")
	// ErrChunkSize is returned when the chunk size cannot carry any data.
	ErrChunkSize = errors.New("hidframe: chunk size too small")
)

// headerLen returns the per-chunk header length, excluding the total length field.
func headerLen(withChannel bool) int {
	if withChannel {
		return 5
	}
	return 3
}

// Reassembler collects the chunks of one message into a caller-owned buffer.
// It keeps no copy of the data.
type Reassembler struct {
	total       int
	received    int
	seq         uint16
	channel     uint16
	withChannel bool
}

// NewReassembler creates a reassembler. withChannel selects the USB-HID layout.
func NewReassembler(withChannel bool) *Reassembler {
	return &Reassembler{withChannel: withChannel}
}

// Reset drops any partially received message.
func (r *Reassembler) Reset() {
	r.total = 0
	r.received = 0
	r.seq = 0
}

// Channel returns the channel of the last message started.
func (r *Reassembler) Channel() uint16 {
	return r.channel
}

// InProgress reports whether a message has been started but not completed.
func (r *Reassembler) InProgress() bool {
	return r.seq > 0
}

// Feed consumes one chunk, writing its data into dst. It returns the message
// length and true once the last chunk has been consumed. On error the
// reassembler is reset.
func (r *Reassembler) Feed(chunk, dst []byte) (int, bool, error) {
	hl := headerLen(r.withChannel)
	if len(chunk) < hl {
		r.Reset()
		return 0, false, ErrShortChunk
	}

	off := 0
	if r.withChannel {
		ch := binary.BigEndian.Uint16(chunk[0:2])
		if r.seq > 0 && ch != r.channel {
			r.Reset()
			return 0, false, ErrBadChannel
		}
		r.channel = ch
		off = 2
	}
	if chunk[off] != TagAPDU {
		r.Reset()
		return 0, false, ErrBadTag
	}
	seq := binary.BigEndian.Uint16(chunk[off+1 : off+3])
	off += 3

	if seq != r.seq {
		r.Reset()
		return 0, false, ErrBadSequence
	}

	if seq == 0 {
		if len(chunk) < off+2 {
			r.Reset()
			return 0, false, ErrShortChunk
		}
		r.total = int(binary.BigEndian.Uint16(chunk[off : off+2]))
		r.received = 0
		off += 2
		if r.total > len(dst) {
			r.Reset()
			return 0, false, ErrOverflow
		}
	}

	n := copy(dst[r.received:r.total], chunk[off:])
	r.received += n
	r.seq++

	if r.received < r.total {
		return 0, false, nil
	}
	total := r.total
	r.Reset()
	return total, true, nil
}

// Split cuts msg into chunks of size bytes and calls emit for each one. The
// chunk passed to emit is built in scratch, which must hold size bytes, and is
// only valid for the duration of the call. Chunks are zero padded when
// withChannel is set (HID reports have a fixed size).
func Split(msg []byte, channel uint16, withChannel bool, size int, scratch []byte, emit func([]byte) error) error {
	hl := headerLen(withChannel)
	if size < hl+3 || len(scratch) < size {
		return ErrChunkSize
	}
	if len(msg) > 0xFFFF {
		return ErrOverflow
	}

	sent := 0
	for seq := uint16(0); seq == 0 || sent < len(msg); seq++ {
		chunk := scratch[:size]
		off := 0
		if withChannel {
			binary.BigEndian.PutUint16(chunk[0:2], channel)
			off = 2
		}
		chunk[off] = TagAPDU
		binary.BigEndian.PutUint16(chunk[off+1:off+3], seq)
		off += 3
		if seq == 0 {
			binary.BigEndian.PutUint16(chunk[off:off+2], uint16(len(msg)))
			off += 2
		}
		n := copy(chunk[off:], msg[sent:])
		sent += n
		end := off + n
		if withChannel {
			clear(chunk[end:])
			end = size
		}
		if err := emit(chunk[:end]); err != nil {
			return err
		}
	}
	return nil
}

// Wrap is the allocating form of Split for host tools.
func Wrap(msg []byte, channel uint16, withChannel bool, size int) ([][]byte, error) {
	var chunks [][]byte
	scratch := make([]byte, size)
	err := Split(msg, channel, withChannel, size, scratch, func(c []byte) error {
		chunks = append(chunks, append([]byte(nil), c...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}
