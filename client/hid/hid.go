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

// Package hid exchanges APDUs with a device over USB-HID reports.
package hid

import (
	"context"
	"errors"
	"fmt"

	usbhid "rafaelmartins.com/p/usbhid"

	"github.com/ZaparooProject/go-seio/internal/hidframe"
)

// maxResponse bounds a reassembled response.
const maxResponse = 0x10000

// ErrUnexpectedReportID is returned for input reports other than report 0.
var ErrUnexpectedReportID = errors.New("hid: unexpected input report id")

// ReportDevice is the part of *usbhid.Device used by the exchanger.
type ReportDevice interface {
	SetOutputReport(reportID byte, data []byte) error
	GetInputReport() (byte, []byte, error)
	Close() error
}

// Exchanger carries APDUs over 64-byte HID reports.
type Exchanger struct {
	dev     ReportDevice
	resp    []byte
	channel uint16
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithChannel sets the channel written in every report.
func WithChannel(ch uint16) Option {
	return func(e *Exchanger) {
		e.channel = ch
	}
}

// Open opens the first HID device matching vid and pid. A zero pid matches
// any product.
func Open(vid, pid uint16, opts ...Option) (*Exchanger, error) {
	dev, err := usbhid.Get(func(d *usbhid.Device) bool {
		return d.VendorId() == vid && (pid == 0 || d.ProductId() == pid)
	}, true, false)
	if err != nil {
		return nil, fmt.Errorf("open HID %04x:%04x: %w", vid, pid, err)
	}
	return New(dev, opts...), nil
}

// New wraps an opened device.
func New(dev ReportDevice, opts ...Option) *Exchanger {
	e := &Exchanger{
		dev:     dev,
		channel: hidframe.DefaultChannel,
		resp:    make([]byte, maxResponse),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange implements client.Exchanger.
func (e *Exchanger) Exchange(ctx context.Context, capdu []byte) ([]byte, error) {
	scratch := make([]byte, hidframe.ReportSize)
	err := hidframe.Split(capdu, e.channel, true, hidframe.ReportSize, scratch, func(report []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return e.dev.SetOutputReport(0, report)
	})
	if err != nil {
		return nil, fmt.Errorf("hid write: %w", err)
	}

	r := hidframe.NewReassembler(true)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, report, err := e.dev.GetInputReport()
		if err != nil {
			return nil, fmt.Errorf("hid read: %w", err)
		}
		if id != 0 {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedReportID, id)
		}
		n, done, err := r.Feed(report, e.resp)
		if err != nil {
			return nil, fmt.Errorf("hid read: %w", err)
		}
		if done {
			if r.Channel() != e.channel {
				return nil, fmt.Errorf("hid read: %w", hidframe.ErrBadChannel)
			}
			return append([]byte(nil), e.resp[:n]...), nil
		}
	}
}

// Close closes the device.
func (e *Exchanger) Close() error {
	return e.dev.Close()
}
