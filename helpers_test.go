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
	"testing"

	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-seio/internal/testing"
)

type fakeHost struct {
	name    string
	version string
	exits   []int
}

func (h *fakeHost) AppName() []byte    { return []byte(h.name) }
func (h *fakeHost) AppVersion() []byte { return []byte(h.version) }
func (h *fakeHost) Exit(code int)      { h.exits = append(h.exits, code) }

type instruction byte

const (
	insEcho    instruction = 0x02
	insCounter instruction = 0x03
)

// decodeInstruction accepts INS 0x02 and 0x03.
func decodeInstruction(h Header) (instruction, error) {
	switch instruction(h.INS) {
	case insEcho, insCounter:
		return instruction(h.INS), nil
	default:
		return 0, StatusBadIns
	}
}

func newTestComm(t *testing.T, opts ...Option) (*Comm, *testutil.VirtualMCU, *fakeHost) {
	t.Helper()
	mcu := testutil.NewVirtualMCU()
	host := &fakeHost{name: "test", version: "1.2.3"}
	c, err := New(mcu, host, opts...)
	require.NoError(t, err)
	return c, mcu, host
}

func requireOverflow(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, errors.Is(err, ErrBufferOverflow), "panic %v", err)
	}()
	fn()
}
