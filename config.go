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
	"fmt"

	"github.com/pion/logging"

	"github.com/ZaparooProject/go-seio/internal/hidframe"
)

// Endpoints are the USB endpoint addresses the MCU reports transfers on.
type Endpoints struct {
	HIDOut  byte
	HIDIn   byte
	CCIDOut byte
	CCIDIn  byte
}

// DefaultEndpoints returns the endpoint layout of the stock USB descriptor.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		HIDOut:  0x02,
		HIDIn:   0x82,
		CCIDOut: 0x03,
		CCIDIn:  0x83,
	}
}

// Config holds engine configuration
type Config struct {
	// LoggerFactory creates the engine logger. When nil, engine messages go
	// through Debugf.
	LoggerFactory logging.LoggerFactory
	// Endpoints used for HID and CCID traffic
	Endpoints Endpoints
	// BLEChunkSize is the size of each BLE write, header included
	BLEChunkSize int
	// ExpectedCLA, when HasExpectedCLA is set, rejects other classes with BadCla
	ExpectedCLA    byte
	HasExpectedCLA bool
	// BLE enables the BLE receive event and send path
	BLE bool
}

// DefaultConfig returns the default engine configuration: every CLA
// accepted, BLE disabled.
func DefaultConfig() *Config {
	return &Config{
		Endpoints:    DefaultEndpoints(),
		BLEChunkSize: hidframe.BLEChunkSize,
	}
}

// Option configures a Comm
type Option func(*Config) error

// WithExpectedCLA rejects commands whose class byte is not cla.
func WithExpectedCLA(cla byte) Option {
	return func(c *Config) error {
		c.ExpectedCLA = cla
		c.HasExpectedCLA = true
		return nil
	}
}

// WithBLE enables BLE reception and replies.
func WithBLE() Option {
	return func(c *Config) error {
		c.BLE = true
		return nil
	}
}

// WithBLEChunkSize sets the BLE write size.
func WithBLEChunkSize(size int) Option {
	return func(c *Config) error {
		// Three bytes of chunk header and two of length must leave room for data.
		if size < 6 || size > 0xFF {
			return fmt.Errorf("%w: BLE chunk size %d", ErrInvalidConfig, size)
		}
		c.BLEChunkSize = size
		return nil
	}
}

// WithLoggerFactory sets the factory the engine logger is created from.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *Config) error {
		c.LoggerFactory = f
		return nil
	}
}

// WithEndpoints overrides the USB endpoint layout.
func WithEndpoints(ep Endpoints) Option {
	return func(c *Config) error {
		if ep.HIDIn&0x80 == 0 || ep.CCIDIn&0x80 == 0 {
			return fmt.Errorf("%w: IN endpoints must have bit 7 set", ErrInvalidConfig)
		}
		if ep.HIDOut&0x80 != 0 || ep.CCIDOut&0x80 != 0 {
			return fmt.Errorf("%w: OUT endpoints must have bit 7 clear", ErrInvalidConfig)
		}
		c.Endpoints = ep
		return nil
	}
}
