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

package seph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		buf       []byte
		n         int
		wantTag   byte
		wantLen   int
		wantData  []byte
		truncated bool
		wantErr   error
	}{
		{
			name:     "ticker_no_payload",
			buf:      []byte{TagTicker, 0x00, 0x00},
			n:        3,
			wantTag:  TagTicker,
			wantData: []byte{},
		},
		{
			name:     "capdu_four_bytes",
			buf:      []byte{TagCAPDUEvent, 0x00, 0x04, 0x01, 0x02, 0x00, 0x00},
			n:        7,
			wantTag:  TagCAPDUEvent,
			wantLen:  4,
			wantData: []byte{0x01, 0x02, 0x00, 0x00},
		},
		{
			name:      "declared_longer_than_received",
			buf:       []byte{TagCAPDUEvent, 0x00, 0x08, 0x01, 0x02},
			n:         5,
			wantTag:   TagCAPDUEvent,
			wantLen:   8,
			wantData:  []byte{0x01, 0x02},
			truncated: true,
		},
		{
			name:     "n_larger_than_buffer_is_clipped",
			buf:      []byte{TagButtonPush, 0x00, 0x01, 0x02},
			n:        64,
			wantTag:  TagButtonPush,
			wantLen:  1,
			wantData: []byte{0x02},
		},
		{
			name:    "short_header",
			buf:     []byte{TagTicker, 0x00},
			n:       2,
			wantErr: ErrShortPacket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Parse(tt.buf, tt.n)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTag, p.Tag)
			assert.Equal(t, tt.wantLen, p.Len)
			assert.Equal(t, tt.wantData, p.Payload)
			assert.Equal(t, tt.truncated, p.Truncated)
		})
	}
}

func TestButtonSample(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte(0), ButtonSample(nil))
	assert.Equal(t, byte(0x01), ButtonSample([]byte{0x02}))
	assert.Equal(t, byte(0x02), ButtonSample([]byte{0x04}))
	assert.Equal(t, byte(0x03), ButtonSample([]byte{0x07}))
}

func TestParseXfer(t *testing.T) {
	t.Parallel()

	x, err := ParseXfer([]byte{0x02, XferOut, 0x03, 0xAA, 0xBB, 0xCC, 0xDD})
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), x.Endpoint)
	assert.Equal(t, byte(XferOut), x.Kind)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, x.Data)

	// Declared data longer than the payload is clipped.
	x, err = ParseXfer([]byte{0x82, XferIn, 0x40, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, x.Data)

	_, err = ParseXfer([]byte{0x02, XferOut})
	require.ErrorIs(t, err, ErrShortXfer)
}

func TestPutEPPrepare(t *testing.T) {
	t.Parallel()

	dst := make([]byte, EPPrepareOverhead+2)
	n, err := PutEPPrepare(dst, 0x82, EPPrepareDirIn, []byte{0x90, 0x00})
	require.NoError(t, err)
	assert.Equal(t, len(dst), n)
	assert.Equal(t, []byte{TagUSBEPPrepare, 0x00, 0x05, 0x82, EPPrepareDirIn, 0x02, 0x90, 0x00}, dst)

	_, err = PutEPPrepare(make([]byte, 512), 0x82, EPPrepareDirIn, make([]byte, 256))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestGeneralStatus(t *testing.T) {
	t.Parallel()

	p, err := Parse(GeneralStatus[:], len(GeneralStatus))
	require.NoError(t, err)
	assert.Equal(t, byte(TagGeneralStatus), p.Tag)
	assert.Equal(t, 2, p.Len)
	assert.False(t, p.Truncated)
}
