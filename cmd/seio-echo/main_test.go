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

package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-seio"
	testutil "github.com/ZaparooProject/go-seio/internal/testing"
)

type testHost struct{}

func (testHost) AppName() []byte    { return []byte("seio-echo") }
func (testHost) AppVersion() []byte { return []byte("0.1.0") }
func (testHost) Exit(int)           {}

func newTestApp(t *testing.T) (*app, *testutil.VirtualMCU) {
	t.Helper()
	mcu := testutil.NewVirtualMCU()
	comm, err := seio.New(mcu, testHost{}, seio.WithExpectedCLA(0xE0))
	require.NoError(t, err)
	return &app{comm: comm}, mcu
}

func responseData(rs []testutil.Response) [][]byte {
	out := make([][]byte, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Data)
	}
	return out
}

func TestServe_Instructions(t *testing.T) {
	t.Parallel()

	a, mcu := newTestApp(t)
	mcu.PushCAPDU([]byte{0xE0, 0x01, 0x00, 0x00, 0x03, 0xAA, 0xBB, 0xCC})
	mcu.PushCAPDU([]byte{0xE0, 0x02, 0x00, 0x00})
	mcu.PushCAPDU([]byte{0xE0, 0x02, 0x00, 0x00})
	mcu.PushCAPDU([]byte{0xE0, 0x09, 0x00, 0x00})
	mcu.PushCAPDU([]byte{0xE1, 0x01, 0x00, 0x00})

	err := a.serve(context.Background())
	require.ErrorIs(t, err, io.EOF)

	assert.Equal(t, [][]byte{
		{0xAA, 0xBB, 0xCC, 0x90, 0x00},
		{0x00, 0x00, 0x00, 0x00, 0x90, 0x00},
		{0x00, 0x00, 0x00, 0x01, 0x90, 0x00},
		{0x6e, 0x01},
		{0x6e, 0x00},
	}, responseData(mcu.Responses()))
}

func TestServe_Confirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []byte
		want    []byte
	}{
		{name: "Right_approves", samples: []byte{0x02, 0x00}, want: []byte{0x90, 0x00}},
		{name: "Both_approve", samples: []byte{0x01, 0x03, 0x00}, want: []byte{0x90, 0x00}},
		{name: "Left_rejects", samples: []byte{0x01, 0x00}, want: []byte{0x6e, 0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, mcu := newTestApp(t)
			mcu.PushCAPDU([]byte{0xE0, 0x03, 0x00, 0x00})
			for _, s := range tt.samples {
				mcu.PushTicker()
				mcu.PushButton(s)
			}

			err := a.serve(context.Background())
			require.ErrorIs(t, err, io.EOF)
			assert.Equal(t, [][]byte{tt.want}, responseData(mcu.Responses()))
		})
	}
}

func TestServe_ConfirmNeedsZeroParams(t *testing.T) {
	t.Parallel()

	a, mcu := newTestApp(t)
	mcu.PushCAPDU([]byte{0xE0, 0x03, 0x01, 0x00})

	err := a.serve(context.Background())
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, [][]byte{{0x6e, 0x02}}, responseData(mcu.Responses()))
}

func TestServe_AppInfo(t *testing.T) {
	t.Parallel()

	a, mcu := newTestApp(t)
	mcu.PushCAPDU([]byte{0xB0, 0x01, 0x00, 0x00})

	err := a.serve(context.Background())
	require.ErrorIs(t, err, io.EOF)
	want := append([]byte{0x01, 0x09}, "seio-echo"...)
	want = append(want, 0x05)
	want = append(want, "0.1.0"...)
	want = append(want, 0x90, 0x00)
	assert.Equal(t, [][]byte{want}, responseData(mcu.Responses()))
}

func TestDecodeInstruction(t *testing.T) {
	t.Parallel()

	ins, err := decodeInstruction(seio.Header{CLA: 0xE0, INS: 0x02, P1: 0x05})
	require.NoError(t, err)
	assert.Equal(t, insCounter, ins)

	_, err = decodeInstruction(seio.Header{CLA: 0xE0, INS: 0x04})
	require.ErrorIs(t, err, seio.StatusBadIns)
}

func TestNewLink_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := newLink(&config{link: "usb", port: "/dev/null"})
	require.Error(t, err)
}

func TestServe_LinkErrors(t *testing.T) {
	t.Parallel()

	t.Run("Timeout_is_retried", func(t *testing.T) {
		t.Parallel()
		a, mcu := newTestApp(t)
		mcu.InjectRecvError(seio.NewTimeoutError("recv", "test"))
		mcu.PushCAPDU([]byte{0xE0, 0x01, 0x00, 0x00, 0x01, 0x42})

		err := a.serve(context.Background())
		require.ErrorIs(t, err, io.EOF)
		assert.Equal(t, []byte{0x42, 0x90, 0x00}, mcu.LastResponse().Data)
	})

	t.Run("Closed_stops", func(t *testing.T) {
		t.Parallel()
		a, mcu := newTestApp(t)
		mcu.InjectRecvError(seio.NewClosedError("recv", "test"))
		mcu.PushCAPDU([]byte{0xE0, 0x01, 0x00, 0x00, 0x01, 0x42})

		err := a.serve(context.Background())
		require.ErrorIs(t, err, seio.ErrLinkClosed)
		assert.Empty(t, mcu.Responses())
	})
}
