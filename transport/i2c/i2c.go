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

// Package i2c provides a SEPH link over an I2C bus.
//
// The secure element is the bus master and the MCU answers at a fixed
// address. Each transaction writes an opcode and optionally reads back:
//
//	0x01 write   [0x01][command bytes]
//	0x02 status  [0x02] -> [ready]     ready is 0x01 when an event is queued
//	0x03 read    [0x03] -> [packet bytes ...]
//
// As over SPI, a packet is read as its 3 byte header and then its payload.
// The MCU may NACK a write while it is busy; writes are retried.
package i2c

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-seio"
	"github.com/ZaparooProject/go-seio/internal/seph"
	"github.com/ZaparooProject/go-seio/internal/syncutil"
)

const (
	// DefaultAddr is the 7-bit address of the MCU.
	DefaultAddr = 0x3C

	opWrite  = 0x01
	opStatus = 0x02
	opRead   = 0x03
	ready    = 0x01

	maxClockFreq = 400 * physic.KiloHertz

	defaultPollInterval = 2 * time.Millisecond
	traceSize           = 16
	maxTransfer         = 512
)

// Delays between write attempts after a NACK.
var writeRetryDelays = []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}

// Link implements seio.Link over an I2C device.
type Link struct {
	bus          i2c.BusCloser // held so Close can release the OS file descriptor
	dev          conn.Conn
	trace        *seio.TraceBuffer
	busName      string
	pollInterval time.Duration
	recvTimeout  time.Duration
	tx           []byte
	mu           syncutil.Mutex
	addr         uint16
	pending      bool
	closed       bool
}

// Option configures a Link
type Option func(*Link)

// WithAddr sets the MCU address used by New.
func WithAddr(addr uint16) Option {
	return func(l *Link) { l.addr = addr }
}

// WithPollInterval sets the delay between status polls.
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

// parseBusPath strips an address suffix: "/dev/i2c-1:0x3c" or "/dev/i2c-1".
func parseBusPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens the I2C bus busName and addresses the MCU on it.
func New(busName string, opts ...Option) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseBusPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(maxClockFreq) // keep the bus default when unsupported

	l := NewFromConn(nil, busName, opts...)
	l.dev = &i2c.Dev{Addr: l.addr, Bus: bus}
	l.bus = bus
	return l, nil
}

// NewFromConn wraps an addressed device.
func NewFromConn(dev conn.Conn, busName string, opts ...Option) *Link {
	l := &Link{
		dev:          dev,
		busName:      busName,
		addr:         DefaultAddr,
		trace:        seio.NewTraceBuffer(string(seio.LinkI2C), busName, traceSize),
		pollInterval: defaultPollInterval,
		tx:           make([]byte, 1+maxTransfer),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// sleepCtx performs a context-aware sleep.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) waitReady(ctx context.Context) error {
	var deadline time.Time
	if l.recvTimeout > 0 {
		deadline = time.Now().Add(l.recvTimeout)
	}
	status := make([]byte, 1)
	for {
		if err := l.dev.Tx([]byte{opStatus}, status); err != nil {
			return seio.NewReadError("status", l.busName, err)
		}
		if status[0] == ready {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.trace.RecordTimeout("MCU not ready")
			return seio.NewTimeoutError("status", l.busName)
		}
		if err := sleepCtx(ctx, l.pollInterval); err != nil {
			return err
		}
	}
}

func (l *Link) read(dst []byte) error {
	if err := l.dev.Tx([]byte{opRead}, dst); err != nil {
		return seio.NewReadError("recv", l.busName, err)
	}
	return nil
}

// Recv waits for the MCU to queue an event and reads it into buf.
func (l *Link) Recv(ctx context.Context, buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, seio.NewClosedError("recv", l.busName)
	}
	if !l.pending {
		return 0, fmt.Errorf("i2c recv: %w", seio.ErrHandshake)
	}
	if len(buf) < seph.HeaderSize {
		return 0, seio.NewTooLargeError("recv", l.busName)
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
		l.trace.RecordRX(buf[:seph.HeaderSize], "oversized")
		seio.Debugf("I2C: dropping %d byte packet, receive buffer holds %d", total, len(buf))
		discard := make([]byte, min(total-seph.HeaderSize, maxTransfer))
		for left := total - seph.HeaderSize; left > 0; {
			n := min(left, len(discard))
			if err := l.read(discard[:n]); err != nil {
				return 0, l.trace.WrapError(err)
			}
			left -= n
		}
		l.pending = false
		return 0, l.trace.WrapError(seio.NewTooLargeError("recv", l.busName))
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

// Send writes command bytes in one transaction.
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
		return seio.NewClosedError("send", l.busName)
	}
	if len(p) > maxTransfer {
		return seio.NewTooLargeError("send", l.busName)
	}

	frame := l.tx[:1+len(p)]
	frame[0] = opWrite
	copy(frame[1:], p)
	l.trace.RecordTX(p, note)

	var lastErr error
	for attempt := 0; attempt <= len(writeRetryDelays); attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, writeRetryDelays[attempt-1]); err != nil {
				return err
			}
		}
		err := l.dev.Tx(frame, nil)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return l.trace.WrapError(seio.NewWriteError("send", l.busName,
		fmt.Errorf("after %d attempts: %w", len(writeRetryDelays)+1, lastErr)))
}

// StatusSent reports whether a status is waiting for its event.
func (l *Link) StatusSent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Close releases the I2C bus.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.bus != nil {
		if err := l.bus.Close(); err != nil {
			return fmt.Errorf("I2C close failed: %w", err)
		}
	}
	return nil
}

// Type returns seio.LinkI2C.
func (*Link) Type() seio.LinkType {
	return seio.LinkI2C
}

var (
	_ seio.Link = (*Link)(nil)
	_ conn.Conn = (*i2c.Dev)(nil)
)
