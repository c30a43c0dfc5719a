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
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "timeout", err: ErrLinkTimeout, want: true},
		{name: "read", err: ErrLinkRead, want: true},
		{name: "write", err: ErrLinkWrite, want: true},
		{name: "truncated", err: ErrPacketTruncated, want: true},
		{name: "closed", err: ErrLinkClosed, want: false},
		{name: "handshake", err: ErrHandshake, want: false},
		{name: "wrapped timeout", err: fmt.Errorf("recv: %w", ErrLinkTimeout), want: true},
		{name: "string only", err: errors.New("outer: " + ErrLinkTimeout.Error()), want: false},
		{name: "link error transient", err: NewReadError("recv", "/dev/ttyUSB0", io.ErrUnexpectedEOF), want: true},
		{name: "link error timeout", err: NewTimeoutError("recv", "/dev/ttyUSB0"), want: true},
		{name: "link error permanent", err: NewClosedError("send", "/dev/ttyUSB0"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "closed", err: ErrLinkClosed, want: true},
		{name: "eof", err: fmt.Errorf("receive packet: %w", io.EOF), want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "device gone", err: fmt.Errorf("read: %w", syscall.ENODEV), want: true},
		{name: "io error", err: syscall.EIO, want: true},
		{name: "timeout", err: ErrLinkTimeout, want: false},
		{name: "permanent link error", err: NewClosedError("recv", "spi0"), want: true},
		{name: "transient link error", err: NewWriteError("send", "spi0", syscall.EIO), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestLinkError(t *testing.T) {
	t.Parallel()

	err := NewReadError("recv", "/dev/ttyACM0", io.ErrUnexpectedEOF)
	assert.Equal(t, "recv /dev/ttyACM0: link read failed: unexpected EOF", err.Error())
	require.ErrorIs(t, err, ErrLinkRead)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, ErrorTypeTransient, err.Type)

	noPort := NewLinkError("send", "", ErrLinkWrite, ErrorTypePermanent)
	assert.Equal(t, "send: link write failed", noPort.Error())
	assert.False(t, noPort.Retryable)

	var le *LinkError
	require.ErrorAs(t, fmt.Errorf("outer: %w", NewTooLargeError("recv", "p")), &le)
	assert.Equal(t, "recv", le.Op)
	require.ErrorIs(t, le, ErrPacketTooLarge)
	require.ErrorIs(t, NewTruncatedError("recv", "p"), ErrPacketTruncated)
}

func TestTraceBuffer_Ring(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "/dev/ttyUSB0", 3)
	assert.Empty(t, tb.Entries())

	tb.RecordTX([]byte{0x60, 0x00, 0x02, 0x00, 0x00}, "status")
	tb.RecordRX([]byte{0x0E, 0x00, 0x00}, "")
	tb.RecordTX([]byte{0x53, 0x00, 0x02}, "")
	tb.RecordTimeout("waiting for event")

	entries := tb.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, TraceRX, entries[0].Direction)
	assert.Equal(t, []byte{0x0E, 0x00, 0x00}, entries[0].Data)
	assert.Equal(t, "TIMEOUT: waiting for event", entries[2].Note)
	assert.Nil(t, entries[2].Data)

	tb.Clear()
	assert.Empty(t, tb.Entries())
}

func TestTraceBuffer_WrapError(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("spi", "spi0.0", 0)
	require.NoError(t, tb.WrapError(nil))

	tb.RecordTX([]byte{0x60, 0x00, 0x02, 0x00, 0x00}, "status")
	tb.RecordRX(make([]byte, 40), "")
	err := tb.WrapError(ErrLinkTimeout)

	require.ErrorIs(t, err, ErrLinkTimeout)
	te := GetTrace(fmt.Errorf("next event: %w", err))
	require.NotNil(t, te)
	assert.Equal(t, "spi", te.Link)
	assert.Len(t, te.Trace, 2)

	out := te.FormatTrace()
	assert.Contains(t, out, "[spi:spi0.0] Wire trace (2 entries):")
	assert.Contains(t, out, "> 60 00 02 00 00 (status)")
	assert.Contains(t, out, "... (40 bytes total)")
	assert.True(t, strings.HasPrefix(te.Trace[0].String(), "["))

	assert.Nil(t, GetTrace(ErrLinkTimeout))
	empty := &TraceableError{Err: ErrLinkClosed, Link: "uart", Port: "p"}
	assert.Equal(t, "[uart:p] (no trace data)", empty.FormatTrace())
}
