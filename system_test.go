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
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-seio/internal/hidframe"
	testutil "github.com/ZaparooProject/go-seio/internal/testing"
)

func TestSystem_AppInfo(t *testing.T) {
	t.Parallel()

	c, mcu, _ := newTestComm(t, WithExpectedCLA(0xE0))
	mcu.PushCAPDU([]byte{0xB0, 0x01, 0x00, 0x00})

	calls := 0
	decode := func(h Header) (instruction, error) {
		calls++
		return decodeInstruction(h)
	}

	ev, err := NextEvent(context.Background(), c, decode)
	require.NoError(t, err)
	assert.Equal(t, EventTicker, ev.Kind)
	assert.Zero(t, calls)

	want := []byte{0x01, 4, 't', 'e', 's', 't', 5, '1', '.', '2', '.', '3', 0x90, 0x00}
	assert.Equal(t, []testutil.Response{{Media: "raw", Data: want}}, mcu.Responses())
}

func TestSystem_AppInfoOverHID(t *testing.T) {
	t.Parallel()

	c, mcu, _ := newTestComm(t)
	require.NoError(t, mcu.PushHIDCommand([]byte{0xB0, 0x01, 0x00, 0x00}, hidframe.DefaultChannel))

	_, err := NextEvent(context.Background(), c, decodeInstruction)
	require.NoError(t, err)

	resp := mcu.LastResponse()
	assert.Equal(t, "hid", resp.Media)
	assert.True(t, bytes.HasSuffix(resp.Data, []byte{0x90, 0x00}))
}

func TestSystem_Exit(t *testing.T) {
	t.Parallel()

	c, mcu, host := newTestComm(t)
	mcu.PushCAPDU([]byte{0xB0, 0xA7, 0x00, 0x00})
	mcu.PushCAPDU([]byte{0xE0, byte(insEcho), 0x00, 0x00})

	cmd, err := NextCommand(context.Background(), c, decodeInstruction)
	require.NoError(t, err)
	assert.Equal(t, insEcho, cmd)

	assert.Equal(t, []int{0}, host.exits)
	resp := mcu.Responses()
	require.Len(t, resp, 1)
	assert.Equal(t, []byte{0x90, 0x00}, resp[0].Data, "exit is acknowledged before the host exits")
}

func TestSystem_NotIntercepted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		apdu      []byte
		wantReply []byte
		wantCalls int
	}{
		{name: "Unknown_instruction", apdu: []byte{0xB0, 0x02, 0x00, 0x00}, wantReply: []byte{0x6e, 0x01}},
		{name: "Nonzero_P1", apdu: []byte{0xB0, 0x01, 0x01, 0x00}, wantReply: []byte{0x6e, 0x00}},
		{name: "Nonzero_P2", apdu: []byte{0xB0, 0xA7, 0x00, 0x01}, wantReply: []byte{0x6e, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, mcu, host := newTestComm(t, WithExpectedCLA(0xE0))
			mcu.PushCAPDU(tt.apdu)

			calls := 0
			decode := func(h Header) (instruction, error) {
				calls++
				return decodeInstruction(h)
			}

			_, err := NextEvent(context.Background(), c, decode)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, calls)
			assert.Empty(t, host.exits)
			assert.Equal(t, tt.wantReply, mcu.LastResponse().Data)
		})
	}
}

func TestSystem_AppInfoTruncated(t *testing.T) {
	t.Parallel()

	mcu := testutil.NewVirtualMCU()
	host := &fakeHost{name: string(bytes.Repeat([]byte{'a'}, 300)), version: "1.0"}
	c, err := New(mcu, host)
	require.NoError(t, err)
	mcu.PushCAPDU([]byte{0xB0, 0x01, 0x00, 0x00})

	_, err = NextEvent(context.Background(), c, decodeInstruction)
	require.NoError(t, err)

	data := mcu.LastResponse().Data
	require.Len(t, data, BufferSize)
	assert.Equal(t, byte(0x01), data[0])
	assert.Equal(t, byte(255), data[1])
	assert.Equal(t, byte(0), data[257], "no room left for the version")
	assert.Equal(t, []byte{0x90, 0x00}, data[258:])
}
