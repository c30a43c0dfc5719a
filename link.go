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

import "context"

// Link is the packet channel between the secure element and its MCU proxy.
//
// The MCU answers every status sent by the secure element with exactly one
// event packet. SendGeneralStatus marks a status as pending and a successful
// Recv clears it; Send carries commands, which do not change the handshake.
type Link interface {
	// Recv blocks until one whole packet has been read into buf and returns
	// its length.
	Recv(ctx context.Context, buf []byte) (int, error)

	// Send writes raw command bytes toward the MCU.
	Send(ctx context.Context, p []byte) error

	// StatusSent reports whether a status is waiting for its event.
	StatusSent() bool

	// SendGeneralStatus sends the "command done" status.
	SendGeneralStatus(ctx context.Context) error
}

// LinkType names a Link implementation.
type LinkType string

const (
	// LinkUART is a SEPH link over a serial port.
	LinkUART LinkType = "uart"
	// LinkSPI is a SEPH link over an SPI bus.
	LinkSPI LinkType = "spi"
	// LinkI2C is a SEPH link over an I2C bus.
	LinkI2C LinkType = "i2c"
	// LinkMock is an in-memory link used by tests.
	LinkMock LinkType = "mock"
)
