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

package i2c

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"

	"github.com/ZaparooProject/go-seio"
	"github.com/ZaparooProject/go-seio/internal/hidframe"
	"github.com/ZaparooProject/go-seio/internal/seph"
	testutil "github.com/ZaparooProject/go-seio/internal/testing"
)

var errNACK = errors.New("i2c: NACK")

// MockI2CConn implements conn.Conn, answering the opcode protocol from a
// VirtualMCU byte stream.
type MockI2CConn struct {
	sim    *testutil.VirtualMCU
	txErr  error
	cache  []byte
	nacks  int // writes to refuse before accepting
	writes int
	silent bool
}

func (*MockI2CConn) String() string      { return "mock-i2c" }
func (*MockI2CConn) Duplex() conn.Duplex { return conn.Half }

func (m *MockI2CConn) fill() error {
	if m.silent || len(m.cache) > 0 {
		return nil
	}
	tmp := make([]byte, 512)
	n, err := m.sim.Read(tmp)
	if err != nil {
		return err //nolint:wrapcheck // mock
	}
	m.cache = tmp[:n]
	return nil
}

func (m *MockI2CConn) Tx(w, r []byte) error {
	if m.txErr != nil {
		return m.txErr
	}
	switch w[0] {
	case opWrite:
		m.writes++
		if m.nacks > 0 {
			m.nacks--
			return errNACK
		}
		_, err := m.sim.Write(w[1:])
		return err //nolint:wrapcheck // mock
	case opStatus:
		if err := m.fill(); err != nil {
			return err
		}
		r[0] = 0
		if len(m.cache) > 0 {
			r[0] = ready
		}
	case opRead:
		if err := m.fill(); err != nil {
			return err
		}
		clear(r)
		n := copy(r, m.cache)
		m.cache = m.cache[n:]
	}
	return nil
}

func newTestLink(t *testing.T, c conn.Conn, opts ...Option) *Link {
	t.Helper()
	l := NewFromConn(c, "/dev/i2c-mock", opts...)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestI2C_EngineRoundTrip(t *testing.T) {
	t.Parallel()

	apdu := []byte{0xE0, 0x01, 0x00, 0x00, 0x02, 0xCA, 0xFE}
	tests := []struct {
		push  func(*testutil.VirtualMCU) error
		name  string
		media string
	}{
		{name: "Raw", media: "raw", push: func(m *testutil.VirtualMCU) error {
			m.PushCAPDU(apdu)
			return nil
		}},
		{name: "HID", media: "hid", push: func(m *testutil.VirtualMCU) error {
			return m.PushHIDCommand(apdu, hidframe.DefaultChannel)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mcu := testutil.NewVirtualMCU()
			require.NoError(t, tt.push(mcu))
			link := newTestLink(t, &MockI2CConn{sim: mcu}, WithPollInterval(time.Millisecond))

			c, err := seio.New(link, seio.StaticHost{Name: "echo", Version: "1.0"})
			require.NoError(t, err)
			ctx := context.Background()

			_, err = seio.NextCommand(ctx, c, func(h seio.Header) (byte, error) { return h.INS, nil })
			require.NoError(t, err)
			data, err := c.Data()
			require.NoError(t, err)
			c.Append(data)
			require.NoError(t, c.ReplyOK(ctx))

			resp := mcu.LastResponse()
			assert.Equal(t, tt.media, resp.Media)
			assert.Equal(t, []byte{0xCA, 0xFE, 0x90, 0x00}, resp.Data)
		})
	}
}

func TestI2C_WriteRetriedAfterNACK(t *testing.T) {
	t.Parallel()

	mock := &MockI2CConn{sim: testutil.NewVirtualMCU(), nacks: 2}
	link := newTestLink(t, mock)

	require.NoError(t, link.SendGeneralStatus(context.Background()))
	assert.Equal(t, 3, mock.writes)
	assert.True(t, link.StatusSent())
}

func TestI2C_WriteGivesUp(t *testing.T) {
	t.Parallel()

	mock := &MockI2CConn{sim: testutil.NewVirtualMCU(), nacks: 10}
	link := newTestLink(t, mock)

	err := link.SendGeneralStatus(context.Background())
	require.ErrorIs(t, err, seio.ErrLinkWrite)
	require.ErrorIs(t, err, errNACK)
	assert.Equal(t, len(writeRetryDelays)+1, mock.writes)
	assert.False(t, link.StatusSent())
	assert.NotNil(t, seio.GetTrace(err))
}

func TestI2C_PacketTooLarge(t *testing.T) {
	t.Parallel()

	mcu := testutil.NewVirtualMCU()
	mcu.PushEvent(seph.TagCAPDUEvent, make([]byte, 200))
	mcu.PushTicker()
	link := newTestLink(t, &MockI2CConn{sim: mcu})
	ctx := context.Background()
	buf := make([]byte, seph.PacketSize)

	require.NoError(t, link.SendGeneralStatus(ctx))
	_, err := link.Recv(ctx, buf)
	require.ErrorIs(t, err, seio.ErrPacketTooLarge)

	require.NoError(t, link.SendGeneralStatus(ctx))
	n, err := link.Recv(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{seph.TagTicker, 0x00, 0x00}, buf[:n])
}

func TestI2C_RecvTimeout(t *testing.T) {
	t.Parallel()

	mock := &MockI2CConn{sim: testutil.NewVirtualMCU(), silent: true}
	link := newTestLink(t, mock, WithRecvTimeout(10*time.Millisecond), WithPollInterval(time.Millisecond))
	ctx := context.Background()

	require.NoError(t, link.SendGeneralStatus(ctx))
	_, err := link.Recv(ctx, make([]byte, seph.PacketSize))
	require.ErrorIs(t, err, seio.ErrLinkTimeout)

	te := seio.GetTrace(err)
	require.NotNil(t, te)
	assert.Equal(t, "i2c", te.Link)
}

func TestI2C_RecvErrors(t *testing.T) {
	t.Parallel()

	link := newTestLink(t, &MockI2CConn{sim: testutil.NewVirtualMCU()})
	_, err := link.Recv(context.Background(), make([]byte, seph.PacketSize))
	require.ErrorIs(t, err, seio.ErrHandshake)

	boom := errors.New("bus fault")
	mock := &MockI2CConn{sim: testutil.NewVirtualMCU()}
	link = newTestLink(t, mock)
	require.NoError(t, link.SendGeneralStatus(context.Background()))
	mock.txErr = boom
	_, err = link.Recv(context.Background(), make([]byte, seph.PacketSize))
	require.ErrorIs(t, err, seio.ErrLinkRead)
	require.ErrorIs(t, err, boom)
}

func TestI2C_Closed(t *testing.T) {
	t.Parallel()

	link := newTestLink(t, &MockI2CConn{sim: testutil.NewVirtualMCU()})
	require.NoError(t, link.Close())
	require.NoError(t, link.Close())

	ctx := context.Background()
	require.ErrorIs(t, link.Send(ctx, []byte{seph.TagRAPDU, 0, 0}), seio.ErrLinkClosed)
	_, err := link.Recv(ctx, make([]byte, seph.PacketSize))
	require.ErrorIs(t, err, seio.ErrLinkClosed)
	assert.Equal(t, seio.LinkI2C, link.Type())
}

func TestParseBusPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/dev/i2c-1", parseBusPath("/dev/i2c-1:0x3c"))
	assert.Equal(t, "/dev/i2c-1", parseBusPath("/dev/i2c-1"))
}
