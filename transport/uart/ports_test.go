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

package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindPort(t *testing.T) {
	t.Parallel()

	builtin := PortInfo{Name: "/dev/ttyS0"}
	generic := PortInfo{Name: "/dev/ttyACM0", IsUSB: true, VID: "2c97", PID: "0001"}
	bridge := PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10c4", PID: "ea60"}

	tests := []struct {
		name   string
		ports  []PortInfo
		want   PortInfo
		wantOK bool
	}{
		{name: "Known_bridge_preferred", ports: []PortInfo{builtin, generic, bridge}, want: bridge, wantOK: true},
		{name: "Any_USB", ports: []PortInfo{builtin, generic}, want: generic, wantOK: true},
		{name: "Builtin_only", ports: []PortInfo{builtin}, wantOK: false},
		{name: "None", ports: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := FindPort(tt.ports)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortInfo_VIDPID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "10C4:EA60", PortInfo{IsUSB: true, VID: "10c4", PID: "ea60"}.VIDPID())
	assert.Empty(t, PortInfo{Name: "/dev/ttyS0"}.VIDPID())
}
