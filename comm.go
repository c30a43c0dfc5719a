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
	"errors"
	"fmt"

	"github.com/pion/logging"

	"github.com/ZaparooProject/go-seio/internal/ccid"
	"github.com/ZaparooProject/go-seio/internal/hidframe"
	"github.com/ZaparooProject/go-seio/internal/seph"
)

// Media is the transport a command arrived on. Its reply leaves the same way.
type Media uint8

// Media values
const (
	MediaNone Media = iota
	MediaRaw
	MediaHID
	MediaCCID
	MediaBLE
)

func (m Media) String() string {
	switch m {
	case MediaRaw:
		return "raw"
	case MediaHID:
		return "hid"
	case MediaCCID:
		return "ccid"
	case MediaBLE:
		return "ble"
	default:
		return "none"
	}
}

// Comm is the command/response engine of one device application.
//
// Comm is not safe for concurrent use. It owns a single buffer shared by the
// current command and its response; rx is the command length and tx the
// response length. Both are reset after every reply and when NextEvent
// starts a new receive cycle.
type Comm struct {
	link Link
	host Host
	log  logging.LeveledLogger
	cfg  Config

	hid     *hidframe.Reassembler
	ble     *hidframe.Reassembler
	ccid    ccid.Reassembler
	ccidCtl ccid.Command

	chunk []byte // one HID report or BLE chunk
	out   []byte // one command toward the MCU

	rx, tx int

	// Pending command, set by the reception handlers.
	media  Media
	length int

	buttons    ButtonState
	ccidCtlSet bool

	buf     [BufferSize]byte
	pkt     [seph.PacketSize]byte
	ccidMsg [ccid.HeaderSize + BufferSize]byte
}

// New creates an engine reading events from link. host provides the
// application identity and exit.
func New(link Link, host Host, opts ...Option) (*Comm, error) {
	if link == nil {
		return nil, fmt.Errorf("%w: nil link", ErrInvalidConfig)
	}
	if host == nil {
		return nil, fmt.Errorf("%w: nil host", ErrInvalidConfig)
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	c := &Comm{
		link:  link,
		host:  host,
		cfg:   *cfg,
		hid:   hidframe.NewReassembler(true),
		ble:   hidframe.NewReassembler(false),
		chunk: make([]byte, max(hidframe.ReportSize, cfg.BLEChunkSize)),
		out: make([]byte, max(seph.EPPrepareOverhead+hidframe.ReportSize,
			seph.HeaderSize+cfg.BLEChunkSize)),
	}
	if cfg.LoggerFactory != nil {
		c.log = cfg.LoggerFactory.NewLogger("seio")
	} else {
		c.log = debugLogger{}
	}
	return c, nil
}

// Rx returns the length of the current command.
func (c *Comm) Rx() int { return c.rx }

// Tx returns the length of the response built so far.
func (c *Comm) Tx() int { return c.tx }

// Media returns the transport of the current command.
func (c *Comm) Media() Media { return c.media }

// Header returns a copy of the current command header.
func (c *Comm) Header() Header {
	return readHeader(c.buf[:])
}

// Data returns the data field of the current command. A malformed length
// returns StatusBadLen.
func (c *Comm) Data() ([]byte, error) {
	off, n, err := dataField(c.buf[:], c.rx)
	if err != nil {
		return nil, err
	}
	return c.buf[off : off+n : off+n], nil
}

// Get returns buffer bytes [start, end).
func (c *Comm) Get(start, end int) []byte {
	if start < 0 || start > end || end > BufferSize {
		c.overflow("get", start, end)
	}
	return c.buf[start:end:end]
}

// At returns buffer byte i.
func (c *Comm) At(i int) byte {
	if i < 0 || i >= BufferSize {
		c.overflow("read", i, i+1)
	}
	return c.buf[i]
}

// Set writes buffer byte i and moves tx to i if it is behind. tx is not
// moved past i: the byte at tx is overwritten by the next Append or Reply.
func (c *Comm) Set(i int, v byte) {
	if i < 0 || i >= BufferSize {
		c.overflow("write", i, i+1)
	}
	c.tx = max(c.tx, i)
	c.buf[i] = v
}

// SetTx sets the response length directly.
func (c *Comm) SetTx(n int) {
	if n < 0 || n > BufferSize {
		c.overflow("set tx", n, n)
	}
	c.tx = n
}

// Append adds p to the response.
func (c *Comm) Append(p []byte) {
	if c.tx+len(p) > BufferSize {
		c.overflow("append", c.tx, c.tx+len(p))
	}
	c.tx += copy(c.buf[c.tx:], p)
}

// Reply appends the status word of r to the response and sends it over the
// media of the current command. The buffer is released afterwards.
func (c *Comm) Reply(ctx context.Context, r Replier) error {
	if c.tx+2 > BufferSize {
		c.overflow("status word", c.tx, c.tx+2)
	}
	sw := r.Reply().Bytes()
	c.buf[c.tx] = sw[0]
	c.buf[c.tx+1] = sw[1]
	c.tx += 2
	return c.transmit(ctx)
}

// ReplyOK replies StatusOk.
func (c *Comm) ReplyOK(ctx context.Context) error {
	return c.Reply(ctx, StatusOk)
}

// ReplyError replies with the status word mapped from err by ReplyFor.
func (c *Comm) ReplyError(ctx context.Context, err error) error {
	return c.Reply(ctx, ReplyFor(err))
}

// autoReply answers a command the application never sees.
func (c *Comm) autoReply(ctx context.Context, r Replier, reason string) error {
	h := c.Header()
	c.log.Debugf("auto reply %s to CLA=%02X INS=%02X: %s", r.Reply(), h.CLA, h.INS, reason)
	countAutoReply()
	return c.Reply(ctx, r)
}

func (c *Comm) overflow(op string, start, end int) {
	panic(fmt.Errorf("seio: %s [%d:%d] with tx=%d rx=%d: %w", op, start, end, c.tx, c.rx, ErrBufferOverflow))
}

// resetIO forgets any pending command.
func (c *Comm) resetIO() {
	c.media = MediaNone
	c.length = 0
}

// endCycle releases the buffer after a reply.
func (c *Comm) endCycle() {
	c.tx = 0
	c.rx = 0
	c.resetIO()
}

// ensureStatus sends a general status unless one is already pending.
func (c *Comm) ensureStatus(ctx context.Context) error {
	if c.link.StatusSent() {
		return nil
	}
	if err := c.link.SendGeneralStatus(ctx); err != nil {
		return fmt.Errorf("send general status: %w", err)
	}
	return nil
}

// recvPacket reads the next packet into c.pkt. A packet too short to parse
// is returned as a zero Packet, which every handler ignores.
func (c *Comm) recvPacket(ctx context.Context) (seph.Packet, error) {
	n, err := c.link.Recv(ctx, c.pkt[:])
	if err != nil {
		return seph.Packet{}, fmt.Errorf("receive packet: %w", err)
	}
	p, err := seph.Parse(c.pkt[:], n)
	if err != nil {
		if errors.Is(err, seph.ErrShortPacket) {
			c.log.Tracef("dropping %d byte packet", n)
			return seph.Packet{}, nil
		}
		return seph.Packet{}, err
	}
	return p, nil
}
