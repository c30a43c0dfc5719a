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

// Package seph implements the packet format spoken between the secure element
// and the MCU proxy: a tag byte, a big-endian 16-bit length and a payload.
package seph

// Event tags, MCU to secure element.
const (
	TagButtonPush     = 0x05
	TagTicker         = 0x0E
	TagUSBEvent       = 0x0F
	TagUSBEPXferEvent = 0x10
	TagCAPDUEvent     = 0x16
	TagBLEReceive     = 0x1D
)

// Command tags, secure element to MCU.
const (
	TagUSBEPPrepare  = 0x50
	TagRAPDU         = 0x53
	TagBLESend       = 0x38
	TagGeneralStatus = 0x60
)

// USB event codes carried by TagUSBEvent.
const (
	USBEventReset     = 0x01
	USBEventSOF       = 0x02
	USBEventSuspended = 0x04
	USBEventResumed   = 0x08
)

// Endpoint transfer kinds carried by TagUSBEPXferEvent.
const (
	XferSetup = 0x01
	XferIn    = 0x02
	XferOut   = 0x04
)

// Endpoint prepare directions.
const (
	EPPrepareDirSetup = 0x10
	EPPrepareDirIn    = 0x20
	EPPrepareDirOut   = 0x30
)

// Packet size limits
const (
	HeaderSize = 3   // tag + length
	PacketSize = 128 // receive buffer size of the link
	MaxPayload = PacketSize - HeaderSize
)

// GeneralStatus is the "last command" status the secure element sends when it
// has nothing else to say.
var GeneralStatus = [5]byte{TagGeneralStatus, 0x00, 0x02, 0x00, 0x00}
