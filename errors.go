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
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// Link errors. These are returned by NextEvent, NextCommand and the reply
// methods; command level failures are answered with a status word instead.
var (
	ErrLinkTimeout = errors.New("link timeout")
	ErrLinkWrite   = errors.New("link write failed")
	ErrLinkRead    = errors.New("link read failed")
	ErrLinkClosed  = errors.New("link is closed")

	// ErrPacketTruncated is returned when a link delivers fewer bytes than a
	// packet header declares.
	ErrPacketTruncated = errors.New("packet truncated")
	// ErrPacketTooLarge is returned when a packet does not fit the receive buffer.
	ErrPacketTooLarge = errors.New("packet too large")
	// ErrHandshake is returned when a link is read with no status pending.
	ErrHandshake = errors.New("no status pending")

	// ErrBufferOverflow is the panic value for a write past the command buffer.
	ErrBufferOverflow = errors.New("command buffer overflow")
	// ErrInvalidConfig is returned by New for unusable options.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorType classifies a link error
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates the link is unusable
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout
	ErrorTypeTimeout
)

// LinkError wraps a link failure with the operation and port involved
type LinkError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the operation can be retried
}

func (e *LinkError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// NewLinkError creates a link error. Transient and timeout errors are retryable.
func NewLinkError(op, port string, err error, errType ErrorType) *LinkError {
	return &LinkError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrLinkTimeout, ErrorTypeTimeout)
}

// NewReadError wraps a failed read
func NewReadError(op, port string, cause error) *LinkError {
	return NewLinkError(op, port, fmt.Errorf("%w: %w", ErrLinkRead, cause), ErrorTypeTransient)
}

// NewWriteError wraps a failed write
func NewWriteError(op, port string, cause error) *LinkError {
	return NewLinkError(op, port, fmt.Errorf("%w: %w", ErrLinkWrite, cause), ErrorTypeTransient)
}

// NewClosedError reports use of a closed link
func NewClosedError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrLinkClosed, ErrorTypePermanent)
}

// NewTruncatedError reports a short packet
func NewTruncatedError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrPacketTruncated, ErrorTypeTransient)
}

// NewTooLargeError reports a packet larger than the receive buffer
func NewTooLargeError(op, port string) *LinkError {
	return NewLinkError(op, port, ErrPacketTooLarge, ErrorTypeTransient)
}

// IsRetryable reports whether the failed link operation may be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var le *LinkError
	if errors.As(err, &le) {
		return le.Retryable
	}

	switch {
	case errors.Is(err, ErrLinkTimeout),
		errors.Is(err, ErrLinkRead),
		errors.Is(err, ErrLinkWrite),
		errors.Is(err, ErrPacketTruncated):
		return true
	default:
		return false
	}
}

// IsFatal reports whether the link is gone and the event loop should stop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var le *LinkError
	if errors.As(err, &le) {
		return le.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrLinkClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for a vanished serial device.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS errors raised when the port disappears mid I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // only device-gone errors
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // only device-gone errors
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}

// =============================================================================
// Wire Trace
// =============================================================================
// Links record the last packets exchanged with the MCU and attach them to
// the errors they return.

// TraceDirection is the direction of a traced packet
type TraceDirection string

const (
	// TraceTX is data sent to the MCU
	TraceTX TraceDirection = "TX"
	// TraceRX is data received from the MCU
	TraceRX TraceDirection = "RX"
)

// TraceEntry is one traced packet
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

func (e TraceEntry) String() string {
	ts := e.Timestamp.Format("15:04:05.000")
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", ts, e.Direction, formatHex(e.Data), e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, e.Direction, formatHex(e.Data))
}

// TraceableError carries the wire trace leading up to a link failure:
//
//	var te *seio.TraceableError
//	if errors.As(err, &te) {
//	    log.Print(te.FormatTrace())
//	}
type TraceableError struct {
	Err   error
	Link  string
	Port  string
	Trace []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace renders the trace, one packet per line.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Link, e.Port)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Link, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s %s (%s)\n", arrow, formatHex(entry.Data), entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s %s\n", arrow, formatHex(entry.Data))
		}
	}
	return sb.String()
}

const maxTraceBytes = 32

// formatHex renders bytes as space separated hex, eliding long packets.
func formatHex(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	shown := data
	if len(shown) > maxTraceBytes {
		shown = shown[:maxTraceBytes]
	}
	parts := make([]string, len(shown))
	for i, b := range shown {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	s := strings.Join(parts, " ")
	if len(data) > maxTraceBytes {
		s += fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return s
}

// TraceBuffer keeps the most recent packets of a link in a ring.
type TraceBuffer struct {
	link    string
	port    string
	entries []TraceEntry
	next    int
	full    bool
}

// NewTraceBuffer creates a trace buffer holding up to size entries.
func NewTraceBuffer(link, port string, size int) *TraceBuffer {
	if size <= 0 {
		size = 16
	}
	return &TraceBuffer{
		link:    link,
		port:    port,
		entries: make([]TraceEntry, size),
	}
}

// RecordTX records a packet sent to the MCU.
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records a packet received from the MCU.
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

// RecordTimeout records a receive that timed out.
func (tb *TraceBuffer) RecordTimeout(note string) {
	tb.record(TraceRX, nil, "TIMEOUT: "+note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	tb.entries[tb.next] = TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	}
	tb.next++
	if tb.next == len(tb.entries) {
		tb.next = 0
		tb.full = true
	}
}

// Entries returns the recorded entries, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	if !tb.full {
		return append([]TraceEntry(nil), tb.entries[:tb.next]...)
	}
	out := make([]TraceEntry, 0, len(tb.entries))
	out = append(out, tb.entries[tb.next:]...)
	return append(out, tb.entries[:tb.next]...)
}

// WrapError attaches the current trace to err. nil stays nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:   err,
		Link:  tb.link,
		Port:  tb.port,
		Trace: tb.Entries(),
	}
}

// Clear drops all entries.
func (tb *TraceBuffer) Clear() {
	tb.next = 0
	tb.full = false
}

// GetTrace returns the trace attached to err, or nil.
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
