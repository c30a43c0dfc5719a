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
	"github.com/ZaparooProject/go-seio/internal/ccid"
	"github.com/ZaparooProject/go-seio/internal/seph"
)

// housekeep handles every packet that is not a button or ticker event. It
// reports the endpoint of an IN transfer acknowledgement.
func (c *Comm) housekeep(p seph.Packet) (ep byte, acked bool) {
	switch p.Tag {
	case seph.TagUSBEvent:
		if p.Len == 1 && len(p.Payload) == 1 {
			c.handleUSBEvent(p.Payload[0])
		}
	case seph.TagUSBEPXferEvent:
		if p.Len >= 3 {
			return c.handleXfer(p.Payload)
		}
	case seph.TagCAPDUEvent:
		c.handleCAPDU(p)
	case seph.TagBLEReceive:
		if c.cfg.BLE {
			c.handleBLE(p.Payload)
		}
	}
	return 0, false
}

func (c *Comm) handleUSBEvent(code byte) {
	switch code {
	case seph.USBEventReset:
		c.hid.Reset()
		c.ccid.Reset()
		c.ccidCtlSet = false
		c.log.Debug("usb reset")
	case seph.USBEventSuspended:
		c.log.Debug("usb suspended")
	case seph.USBEventResumed:
		c.log.Debug("usb resumed")
	case seph.USBEventSOF:
	default:
		c.log.Tracef("unknown usb event 0x%02x", code)
	}
}

func (c *Comm) handleXfer(payload []byte) (byte, bool) {
	x, err := seph.ParseXfer(payload)
	if err != nil {
		c.log.Tracef("bad endpoint transfer: %v", err)
		return 0, false
	}

	ep := c.cfg.Endpoints
	switch {
	case x.Kind == seph.XferIn:
		return x.Endpoint, true
	case x.Kind == seph.XferOut && x.Endpoint == ep.HIDOut:
		c.feedHID(x.Data)
	case x.Kind == seph.XferOut && x.Endpoint == ep.CCIDOut:
		c.feedCCID(x.Data)
	default:
		c.log.Tracef("ignoring transfer kind 0x%02x on endpoint 0x%02x", x.Kind, x.Endpoint)
	}
	return 0, false
}

// Reception handlers only write the buffer while no command is pending.

func (c *Comm) handleCAPDU(p seph.Packet) {
	if c.media != MediaNone {
		return
	}
	n := min(p.Len, BufferSize-seph.HeaderSize, seph.MaxPayload, len(p.Payload))
	if n == 0 {
		return
	}
	copy(c.buf[:n], p.Payload[:n])
	c.media = MediaRaw
	c.length = n
}

func (c *Comm) feedHID(data []byte) {
	if c.media != MediaNone {
		c.log.Debug("hid report while a command is pending, dropped")
		return
	}
	n, done, err := c.hid.Feed(data, c.buf[:])
	if err != nil {
		c.log.Debugf("hid reassembly: %v", err)
		return
	}
	if done && n > 0 {
		c.media = MediaHID
		c.length = n
	}
}

func (c *Comm) handleBLE(data []byte) {
	if c.media != MediaNone {
		c.log.Debug("ble chunk while a command is pending, dropped")
		return
	}
	n, done, err := c.ble.Feed(data, c.buf[:])
	if err != nil {
		c.log.Debugf("ble reassembly: %v", err)
		return
	}
	if done && n > 0 {
		c.media = MediaBLE
		c.length = n
	}
}

func (c *Comm) feedCCID(data []byte) {
	if c.media != MediaNone {
		c.log.Debug("ccid packet while a command is pending, dropped")
		return
	}
	cmd, done, err := c.ccid.Feed(data, c.buf[:])
	if err != nil {
		c.log.Debugf("ccid reassembly: %v", err)
		return
	}
	if !done {
		return
	}
	if cmd.Type == ccid.MsgXfrBlock && cmd.Len > 0 {
		c.media = MediaCCID
		c.length = cmd.Len
		return
	}
	// Slot control messages are answered once the packet has been handled.
	c.ccidCtl = cmd
	c.ccidCtlSet = true
}
