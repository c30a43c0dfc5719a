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
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port that may carry the MCU link.
type PortInfo struct {
	Name    string
	VID     string
	PID     string
	Serial  string
	Product string
	IsUSB   bool
}

// VIDPID returns "VID:PID" in upper case, or "" for non USB ports.
func (p PortInfo) VIDPID() string {
	if !p.IsUSB {
		return ""
	}
	return strings.ToUpper(p.VID + ":" + p.PID)
}

// USB to serial bridges commonly found on MCU boards.
var knownBridges = []string{
	"0403:6001", // FTDI FT232
	"0403:6015", // FTDI FT231X
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"067B:2303", // Prolific PL2303
}

// ListPorts enumerates the serial ports of the system.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports, nil
}

// FindPort picks the port most likely to be an MCU bridge: a known USB
// bridge first, then any USB port. Built-in ports are never picked.
func FindPort(ports []PortInfo) (PortInfo, bool) {
	for _, p := range ports {
		for _, known := range knownBridges {
			if p.VIDPID() == known {
				return p, true
			}
		}
	}
	for _, p := range ports {
		if p.IsUSB {
			return p, true
		}
	}
	return PortInfo{}, false
}
