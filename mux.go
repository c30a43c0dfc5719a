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
	"context"
	"fmt"

	"github.com/ZaparooProject/go-seio/internal/ccid"
	"github.com/ZaparooProject/go-seio/internal/hidframe"
	"github.com/ZaparooProject/go-seio/internal/seph"
)

// transmit sends the tx response bytes over the media of the current
// command and releases the buffer.
func (c *Comm) transmit(ctx context.Context) error {
	defer c.endCycle()

	// The MCU only accepts commands once it has answered our last status.
	if err := c.ensureStatus(ctx); err != nil {
		return err
	}
	for c.link.StatusSent() {
		p, err := c.recvPacket(ctx)
		if err != nil {
			return err
		}
		c.housekeep(p)
	}

	c.log.Tracef("sending %d byte response via %s", c.tx, c.media)
	var err error
	switch c.media {
	case MediaRaw:
		err = c.sendRaw(ctx)
	case MediaHID:
		err = c.sendHID(ctx)
	case MediaCCID:
		err = c.sendCCID(ctx)
	case MediaBLE:
		err = c.sendBLE(ctx)
	default:
		c.log.Debugf("no media for %d byte response, dropped", c.tx)
	}
	if err != nil {
		return fmt.Errorf("send %s response: %w", c.media, err)
	}
	return nil
}

func (c *Comm) sendRaw(ctx context.Context) error {
	hdr := c.out[:seph.HeaderSize]
	if err := seph.PutHeader(hdr, seph.TagRAPDU, c.tx); err != nil {
		return err
	}
	if err := c.link.Send(ctx, hdr); err != nil {
		return err
	}
	return c.link.Send(ctx, c.buf[:c.tx])
}

func (c *Comm) sendHID(ctx context.Context) error {
	return hidframe.Split(c.buf[:c.tx], c.hid.Channel(), true, hidframe.ReportSize, c.chunk,
		func(report []byte) error {
			return c.sendEP(ctx, c.cfg.Endpoints.HIDIn, report)
		})
}

func (c *Comm) sendCCID(ctx context.Context) error {
	cmd := c.ccid.Last()
	ccid.PutDataBlock(c.ccidMsg[:], cmd, c.tx)
	copy(c.ccidMsg[ccid.HeaderSize:], c.buf[:c.tx])
	return c.sendBulk(ctx, c.ccidMsg[:ccid.HeaderSize+c.tx])
}

func (c *Comm) sendBLE(ctx context.Context) error {
	return hidframe.Split(c.buf[:c.tx], 0, false, c.cfg.BLEChunkSize, c.chunk,
		func(chunk []byte) error {
			if err := seph.PutHeader(c.out, seph.TagBLESend, len(chunk)); err != nil {
				return err
			}
			n := seph.HeaderSize + copy(c.out[seph.HeaderSize:], chunk)
			if err := c.link.Send(ctx, c.out[:n]); err != nil {
				return err
			}
			return c.waitAck(ctx, 0, true)
		})
}

// flushCCIDControl answers a pending CCID slot control message.
func (c *Comm) flushCCIDControl(ctx context.Context) error {
	if !c.ccidCtlSet {
		return nil
	}
	c.ccidCtlSet = false
	cmd := c.ccidCtl
	msg := c.ccidMsg[:]

	switch cmd.Type {
	case ccid.MsgIccPowerOn:
		ccid.PutDataBlock(msg, cmd, len(ccid.ATR))
		n := ccid.HeaderSize + copy(msg[ccid.HeaderSize:], ccid.ATR)
		c.log.Debug("ccid power on")
		return c.sendBulk(ctx, msg[:n])
	case ccid.MsgIccPowerOff:
		ccid.PutSlotStatus(msg, cmd, ccid.StatusInactive)
	case ccid.MsgGetSlotStatus:
		ccid.PutSlotStatus(msg, cmd, ccid.StatusActive)
	case ccid.MsgXfrBlock:
		ccid.PutDataBlock(msg, cmd, 0)
	default:
		c.log.Debugf("unsupported ccid message 0x%02x", cmd.Type)
		ccid.PutSlotStatus(msg, cmd, ccid.StatusFailed)
	}
	return c.sendBulk(ctx, msg[:ccid.HeaderSize])
}

// sendBulk sends msg on the CCID bulk IN endpoint, one max packet at a time.
// A transfer that is a multiple of the packet size ends with an empty packet.
func (c *Comm) sendBulk(ctx context.Context, msg []byte) error {
	ep := c.cfg.Endpoints.CCIDIn
	for off := 0; off < len(msg); off += ccid.MaxPacket {
		end := min(off+ccid.MaxPacket, len(msg))
		if err := c.sendEP(ctx, ep, msg[off:end]); err != nil {
			return err
		}
	}
	if len(msg)%ccid.MaxPacket == 0 {
		return c.sendEP(ctx, ep, nil)
	}
	return nil
}

// sendEP queues data on an IN endpoint and waits for the host to read it.
func (c *Comm) sendEP(ctx context.Context, ep byte, data []byte) error {
	n, err := seph.PutEPPrepare(c.out, ep, seph.EPPrepareDirIn, data)
	if err != nil {
		return err
	}
	if err := c.link.Send(ctx, c.out[:n]); err != nil {
		return err
	}
	return c.waitAck(ctx, ep, false)
}

// waitAck runs the status handshake until the IN transfer on ep completes,
// or until any packet arrives when anyPacket is set. Packets received
// meanwhile only go through housekeeping.
func (c *Comm) waitAck(ctx context.Context, ep byte, anyPacket bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.ensureStatus(ctx); err != nil {
			return err
		}
		p, err := c.recvPacket(ctx)
		if err != nil {
			return err
		}
		got, acked := c.housekeep(p)
		if anyPacket || (acked && got == ep) {
			return nil
		}
	}
}
