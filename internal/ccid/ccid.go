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

// Package ccid implements the subset of the USB CCID bulk protocol needed to
// carry APDUs: PC_to_RDR_XfrBlock reassembly and RDR_to_PC_DataBlock and
// RDR_to_PC_SlotStatus response headers.
package ccid

import (
	"encoding/binary"
	"errors"
)

// Message types, host to device.
const (
	MsgIccPowerOn    = 0x62
	MsgIccPowerOff   = 0x63
	MsgGetSlotStatus = 0x65
	MsgXfrBlock      = 0x6F
)

// Message types, device to host.
const (
	MsgDataBlock  = 0x80
	MsgSlotStatus = 0x81
)

// Sizes
const (
	HeaderSize = 10 // every bulk message starts with a 10 byte header
	MaxPacket  = 64 // bulk endpoint max packet size
)

// Slot status values for bStatus.
const (
	StatusActive   = 0x00 // ICC present and active
	StatusInactive = 0x01 // ICC present, inactive
	StatusFailed   = 0x40 // command failed
)

// ATR returned to PowerOn: direct convention, no interface bytes.
var ATR = []byte{0x3B, 0x00}

var (
	// ErrOverflow is returned when an XfrBlock does not fit the destination.
	ErrOverflow = errors.New("ccid: message exceeds buffer")
	// ErrBadLength is returned when a non XfrBlock message carries data.
	ErrBadLength = errors.New("ccid: unexpected data length")
)

// Command is a decoded bulk OUT message header.
type Command struct {
	Len  int
	Type byte
	Slot byte
	Seq  byte
}

// Reassembler collects the chunks of one bulk OUT message. The header is kept
// internally; the data field is written to a caller-owned buffer.
type Reassembler struct {
	hdr      [HeaderSize]byte
	cmd      Command
	hdrN     int
	received int
}

// Reset drops any partially received message.
func (r *Reassembler) Reset() {
	r.hdrN = 0
	r.received = 0
}

// Last returns the header of the most recently started message.
func (r *Reassembler) Last() Command {
	return r.cmd
}

// Feed consumes one bulk OUT chunk, writing data bytes into dst. It returns
// the message header and true once the whole message has been received. Bytes
// past the end of the message are ignored.
func (r *Reassembler) Feed(chunk, dst []byte) (Command, bool, error) {
	if r.hdrN < HeaderSize {
		n := copy(r.hdr[r.hdrN:], chunk)
		r.hdrN += n
		chunk = chunk[n:]
		if r.hdrN < HeaderSize {
			return Command{}, false, nil
		}
		r.cmd = Command{
			Type: r.hdr[0],
			Len:  int(binary.LittleEndian.Uint32(r.hdr[1:5])),
			Slot: r.hdr[5],
			Seq:  r.hdr[6],
		}
		r.received = 0
		if r.cmd.Type != MsgXfrBlock && r.cmd.Len != 0 {
			r.Reset()
			return Command{}, false, ErrBadLength
		}
		if r.cmd.Len > len(dst) {
			r.Reset()
			return Command{}, false, ErrOverflow
		}
	}

	n := copy(dst[r.received:r.cmd.Len], chunk)
	r.received += n
	if r.received < r.cmd.Len {
		return Command{}, false, nil
	}
	cmd := r.cmd
	r.Reset()
	return cmd, true, nil
}

// PutDataBlock writes an RDR_to_PC_DataBlock header for n data bytes.
func PutDataBlock(dst []byte, cmd Command, n int) {
	dst[0] = MsgDataBlock
	binary.LittleEndian.PutUint32(dst[1:5], uint32(n))
	dst[5] = cmd.Slot
	dst[6] = cmd.Seq
	dst[7] = StatusActive
	dst[8] = 0 // bError
	dst[9] = 0 // bChainParameter
}

// PutSlotStatus writes an RDR_to_PC_SlotStatus message.
func PutSlotStatus(dst []byte, cmd Command, status byte) {
	dst[0] = MsgSlotStatus
	binary.LittleEndian.PutUint32(dst[1:5], 0)
	dst[5] = cmd.Slot
	dst[6] = cmd.Seq
	dst[7] = status
	dst[8] = 0 // bError
	dst[9] = 0 // bClockStatus: running
}

// WrapXfrBlock builds a PC_to_RDR_XfrBlock message. Used by host tools and tests.
func WrapXfrBlock(slot, seq byte, apdu []byte) []byte {
	msg := make([]byte, HeaderSize+len(apdu))
	msg[0] = MsgXfrBlock
	binary.LittleEndian.PutUint32(msg[1:5], uint32(len(apdu)))
	msg[5] = slot
	msg[6] = seq
	copy(msg[HeaderSize:], apdu)
	return msg
}

// ParseResponse splits a device to host message into its header and data.
func ParseResponse(msg []byte) (Command, []byte, error) {
	if len(msg) < HeaderSize {
		return Command{}, nil, ErrBadLength
	}
	cmd := Command{
		Type: msg[0],
		Len:  int(binary.LittleEndian.Uint32(msg[1:5])),
		Slot: msg[5],
		Seq:  msg[6],
	}
	if HeaderSize+cmd.Len > len(msg) {
		return cmd, nil, ErrBadLength
	}
	return cmd, msg[HeaderSize : HeaderSize+cmd.Len], nil
}
