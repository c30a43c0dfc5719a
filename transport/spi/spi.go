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

// Package spi provides a SEPH link over an SPI bus.
//
// The secure element is the bus master. Every transfer starts with an opcode
// byte; the MCU answers in the bytes clocked after it:
//
//	0x01 write   [0x01][command bytes]
//	0x02 status  [0x02][x] -> [x][ready]     ready is 0x01 when an event is queued
//	0x03 read    [0x03][x x x ...] -> [x][packet bytes ...]
//
// A packet is read in two transfers, the 3 byte header first and then the
// payload. The MCU keeps its read position between them.
package spi

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-seio"
	"github.com/ZaparooProject/go-seio/internal/seph"
	"github.com/ZaparooProject/go-seio/internal/syncutil"
)

const (
	// SPI opcodes
	opWrite  = 0x01
	opStatus = 0x02
	opRead   = 0x03
	ready    = 0x01

	// Default SPI settings
	defaultFreq = 8 * physic.MegaHertz
	mode        = spi.Mode0

	defaultPollInterval = time.Millisecond
	traceSize           = 16

	// maxTransfer bounds one write or read, opcode excluded.
	maxTransfer = 512
)

// Link implements seio.Link over an SPI connection.
type Link struct {
	port         spi.PortCloser
	conn         spi.Conn
	trace        *seio.TraceBuffer
	portName     string
	pollInterval time.Duration
	recvTimeout  time.Duration
	tx           []byte
	rx           []byte
	mu           syncutil.Mutex
	pending      bool
	closed       bool
}

// Option configures a Link
type Option func(*Link)

// WithPollInterval sets the delay between status polls while waiting for an
// event.
func WithPollInterval(d time.Duration) Option {
	return func(l *Link) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithRecvTimeout makes Recv fail with seio.ErrLinkTimeout when no event is
// ready within d.
func WithRecvTimeout(d time.Duration) Option {
	return func(l *Link) { l.recvTimeout = d }
}

// New opens the SPI port registered as portName ("" picks the first one).
func New(portName string, opts ...Option) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	l := NewFromConn(conn, portName, opts...)
	l.port = port
	return l, nil
}

// NewFromConn wraps an already connected SPI device.
func NewFromConn(conn spi.Conn, portName string, opts ...Option) *Link {
	l := &Link{
		conn:         conn,
		portName:     portName,
		trace:        seio.NewTraceBuffer(string(seio.LinkSPI), portName, traceSize),
		pollInterval: defaultPollInterval,
		tx:           make([]byte, 1+maxTransfer),
		rx:           make([]byte, 1+maxTransfer),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// waitReady polls the MCU status until an event is queued.
func (l *Link) waitReady(ctx context.Context) error {
	var deadline time.Time
	if l.recvTimeout > 0 {
		deadline = time.Now().Add(l.recvTimeout)
	}
	statusCmd := []byte{opStatus, 0}
	statusResp := make([]byte, 2)

	timer := time.NewTimer(l.pollInterval)
	defer timer.Stop()

	for {
		if err := l.conn.Tx(statusCmd, statusResp); err != nil {
			return seio.NewReadError("status", l.portName, err)
		}
		if statusResp[1] == ready {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.trace.RecordTimeout("MCU not ready")
			return seio.NewTimeoutError("status", l.portName)
		}

		timer.Reset(l.pollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// read clocks n packet bytes out of the MCU into dst.
func (l *Link) read(dst []byte) error {
	n := len(dst)
	tx := l.tx[:1+n]
	clear(tx)
	tx[0] = opRead
	rx := l.rx[:1+n]
	if err := l.conn.Tx(tx, rx); err != nil {
		return seio.NewReadError("recv", l.portName, err)
	}
	copy(dst, rx[1:])
	return nil
}

// Recv waits for the MCU to queue an event and reads it into buf.
func (l *Link) Recv(ctx context.Context, buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, seio.NewClosedError("recv", l.portName)
	}
	if !l.pending {
		return 0, fmt.Errorf("spi recv: %w", seio.ErrHandshake)
	}
	if len(buf) < seph.HeaderSize {
		return 0, seio.NewTooLargeError("recv", l.portName)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := l.waitReady(ctx); err != nil {
		return 0, l.trace.WrapError(err)
	}
	if err := l.read(buf[:seph.HeaderSize]); err != nil {
		return 0, l.trace.WrapError(err)
	}
	total := seph.HeaderSize + int(binary.BigEndian.Uint16(buf[1:3]))
	if total > len(buf) {
		// Clock the payload out so the MCU moves on to the next event.
		l.trace.RecordRX(buf[:seph.HeaderSize], "oversized")
		seio.Debugf("SPI: dropping %d byte packet, receive buffer holds %d", total, len(buf))
		for left := total - seph.HeaderSize; left > 0; {
			n := min(left, len(l.rx)-1)
			if err := l.read(l.rx[1 : 1+n]); err != nil {
				return 0, l.trace.WrapError(err)
			}
			left -= n
		}
		l.pending = false
		return 0, l.trace.WrapError(seio.NewTooLargeError("recv", l.portName))
	}

	if total > seph.HeaderSize {
		if err := l.read(buf[seph.HeaderSize:total]); err != nil {
			return 0, l.trace.WrapError(err)
		}
	}
	l.pending = false
	l.trace.RecordRX(buf[:total], "")
	return total, nil
}

// Send writes command bytes in one transfer.
func (l *Link) Send(ctx context.Context, p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.send(ctx, p, "")
}

// SendGeneralStatus writes the general status and marks it pending.
func (l *Link) SendGeneralStatus(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.send(ctx, seph.GeneralStatus[:], "status"); err != nil {
		return err
	}
	l.pending = true
	return nil
}

func (l *Link) send(ctx context.Context, p []byte, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.closed {
		return seio.NewClosedError("send", l.portName)
	}
	if len(p) > len(l.tx)-1 {
		return seio.NewTooLargeError("send", l.portName)
	}

	frame := l.tx[:1+len(p)]
	frame[0] = opWrite
	copy(frame[1:], p)
	l.trace.RecordTX(p, note)
	if err := l.conn.Tx(frame, nil); err != nil {
		return l.trace.WrapError(seio.NewWriteError("send", l.portName, err))
	}
	return nil
}

// StatusSent reports whether a status is waiting for its event.
func (l *Link) StatusSent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Close releases the SPI port.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.port != nil {
		if err := l.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
	}
	return nil
}

// Type returns seio.LinkSPI.
func (*Link) Type() seio.LinkType {
	return seio.LinkSPI
}

var _ seio.Link = (*Link)(nil)
