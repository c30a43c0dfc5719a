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

// Package uart provides a SEPH link over a serial port, as exposed by device
// emulators and USB bridges.
package uart

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-seio"
	"github.com/ZaparooProject/go-seio/internal/seph"
	"github.com/ZaparooProject/go-seio/internal/syncutil"
)

// DefaultBaudRate is the line speed of the stock MCU bridge.
const DefaultBaudRate = 115200

// traceSize is the number of packets kept for error reports.
const traceSize = 16

// Link implements seio.Link over a serial port.
type Link struct {
	port        serial.Port
	trace       *seio.TraceBuffer
	portName    string
	recvTimeout time.Duration
	body        []byte // body of the packet being received
	hdr         [seph.HeaderSize]byte
	discard     [64]byte
	hdrN        int // header bytes received so far
	bodyN       int // body bytes received or skipped so far
	mu          syncutil.Mutex
	closed      atomic.Bool
	pending     bool
}

// Option configures a Link
type Option func(*options)

type options struct {
	baudRate    int
	recvTimeout time.Duration
}

// WithBaudRate sets the line speed.
func WithBaudRate(rate int) Option {
	return func(o *options) { o.baudRate = rate }
}

// WithRecvTimeout makes Recv fail with seio.ErrLinkTimeout when the MCU stays
// silent for d. The default is to wait until the context is done.
func WithRecvTimeout(d time.Duration) Option {
	return func(o *options) { o.recvTimeout = d }
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// pollTimeout is the serial read timeout. Windows drivers need a longer one.
func pollTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName with 8N1 framing.
func New(portName string, opts ...Option) (*Link, error) {
	o := options{baudRate: DefaultBaudRate}
	for _, opt := range opts {
		opt(&o)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: o.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(pollTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return NewFromPort(port, portName, opts...), nil
}

// NewFromPort wraps an already open port. The port's read timeout is the
// polling interval used to check for cancellation.
func NewFromPort(port serial.Port, portName string, opts ...Option) *Link {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Link{
		port:        port,
		portName:    portName,
		trace:       seio.NewTraceBuffer(string(seio.LinkUART), portName, traceSize),
		recvTimeout: o.recvTimeout,
	}
}

// Recv reads one packet into buf. A packet longer than buf is consumed and
// reported as seio.ErrPacketTooLarge.
//
// Bytes of a packet received before a timeout or cancellation are kept, and
// the next Recv carries on from them.
func (l *Link) Recv(ctx context.Context, buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return 0, seio.NewClosedError("recv", l.portName)
	}
	if !l.pending {
		return 0, fmt.Errorf("uart recv: %w", seio.ErrHandshake)
	}

	var deadline time.Time
	if l.recvTimeout > 0 {
		deadline = time.Now().Add(l.recvTimeout)
	}

	if err := l.readFull(ctx, l.hdr[:], &l.hdrN, deadline); err != nil {
		return 0, l.trace.WrapError(err)
	}
	bodyLen := int(binary.BigEndian.Uint16(l.hdr[1:3]))
	total := seph.HeaderSize + bodyLen

	if total > len(buf) {
		if l.bodyN == 0 {
			l.trace.RecordRX(l.hdr[:], "oversized")
			seio.Debugf("UART: dropping %d byte packet, receive buffer holds %d", total, len(buf))
		}
		if err := l.skip(ctx, bodyLen, deadline); err != nil {
			return 0, l.trace.WrapError(err)
		}
		l.endPacket()
		return 0, l.trace.WrapError(seio.NewTooLargeError("recv", l.portName))
	}

	if cap(l.body) < bodyLen {
		l.body = make([]byte, bodyLen)
	}
	body := l.body[:bodyLen]
	if err := l.readFull(ctx, body, &l.bodyN, deadline); err != nil {
		return 0, l.trace.WrapError(err)
	}
	copy(buf, l.hdr[:])
	copy(buf[seph.HeaderSize:], body)
	l.endPacket()
	l.trace.RecordRX(buf[:total], "")
	return total, nil
}

// endPacket clears the partial packet state and the pending status.
func (l *Link) endPacket() {
	l.hdrN = 0
	l.bodyN = 0
	l.pending = false
}

// readFull fills p from *got onwards, polling the port until data arrives.
// *got tracks progress so an interrupted read can be resumed.
func (l *Link) readFull(ctx context.Context, p []byte, got *int, deadline time.Time) error {
	for *got < len(p) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.closed.Load() {
			return seio.NewClosedError("recv", l.portName)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.trace.RecordTimeout(fmt.Sprintf("%d of %d bytes", *got, len(p)))
			return seio.NewTimeoutError("recv", l.portName)
		}

		n, err := l.port.Read(p[*got:])
		switch {
		case err == nil:
		case isInterruptedSystemCall(err):
			continue
		case errors.Is(err, io.EOF), isPortGone(err):
			return seio.NewLinkError("recv", l.portName,
				fmt.Errorf("%w: %w", seio.ErrLinkClosed, err), seio.ErrorTypePermanent)
		default:
			return seio.NewReadError("recv", l.portName, err)
		}
		*got += n
	}
	return nil
}

// skip consumes the body of an oversized packet, counting in l.bodyN.
func (l *Link) skip(ctx context.Context, bodyLen int, deadline time.Time) error {
	for l.bodyN < bodyLen {
		chunk := l.discard[:min(bodyLen-l.bodyN, len(l.discard))]
		n := 0
		err := l.readFull(ctx, chunk, &n, deadline)
		l.bodyN += n
		if err != nil {
			return err
		}
	}
	return nil
}

// Send writes command bytes.
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
	if l.closed.Load() {
		return seio.NewClosedError("send", l.portName)
	}
	l.trace.RecordTX(p, note)

	for sent := 0; sent < len(p); {
		n, err := l.port.Write(p[sent:])
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			return l.trace.WrapError(seio.NewWriteError("send", l.portName, err))
		}
		if n == 0 {
			return l.trace.WrapError(seio.NewWriteError("send", l.portName, io.ErrShortWrite))
		}
		sent += n
	}
	if err := l.drainWithRetry(); err != nil {
		return l.trace.WrapError(err)
	}
	return nil
}

// drainWithRetry waits for the output buffer to empty, retrying interrupted
// system calls.
func (l *Link) drainWithRetry() error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	var err error
	for attempt := range maxRetries {
		if err = l.port.Drain(); err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			break
		}
		time.Sleep(baseDelay << attempt) // 2ms, 4ms, 8ms
	}
	return seio.NewWriteError("drain", l.portName, err)
}

// StatusSent reports whether a status is waiting for its event.
func (l *Link) StatusSent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// Close closes the port. A Recv blocked in another goroutine returns
// seio.ErrLinkClosed at its next poll.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type returns seio.LinkUART.
func (*Link) Type() seio.LinkType {
	return seio.LinkUART
}

var _ seio.Link = (*Link)(nil)
