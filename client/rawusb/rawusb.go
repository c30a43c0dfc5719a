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

// Package rawusb exchanges APDUs with a device over the CCID bulk endpoints,
// without going through a PC/SC service.
package rawusb

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/karalabe/usb"

	"github.com/ZaparooProject/go-seio/internal/ccid"
)

var (
	// ErrNotFound is returned when no matching device is attached.
	ErrNotFound = errors.New("rawusb: device not found")
	// ErrSlotStatus is returned when the device answers with a slot status
	// instead of a data block.
	ErrSlotStatus = errors.New("rawusb: command failed")
	// ErrSequence is returned when a response does not echo the request sequence.
	ErrSequence = errors.New("rawusb: response sequence mismatch")
)

// Exchanger wraps APDUs in CCID XfrBlock messages.
type Exchanger struct {
	dev io.ReadWriteCloser
	buf []byte
	seq byte
}

// Open opens the CCID interface of the first device matching vid and pid.
func Open(vid, pid uint16, iface int) (*Exchanger, error) {
	infos, err := usb.Enumerate(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("usb enumerate: %w", err)
	}
	for _, info := range infos {
		if iface >= 0 && info.Interface != iface {
			continue
		}
		dev, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("open device: %w", err)
		}
		return New(dev), nil
	}
	return nil, fmt.Errorf("%w: %04x:%04x interface %d", ErrNotFound, vid, pid, iface)
}

// New wraps an opened bulk device.
func New(dev io.ReadWriteCloser) *Exchanger {
	return &Exchanger{dev: dev, buf: make([]byte, ccid.MaxPacket)}
}

// PowerOn sends IccPowerOn and returns the ATR.
func (e *Exchanger) PowerOn(ctx context.Context) ([]byte, error) {
	msg := make([]byte, ccid.HeaderSize)
	msg[0] = ccid.MsgIccPowerOn
	return e.roundTrip(ctx, msg)
}

// Exchange implements client.Exchanger.
func (e *Exchanger) Exchange(ctx context.Context, capdu []byte) ([]byte, error) {
	return e.roundTrip(ctx, ccid.WrapXfrBlock(0, 0, capdu))
}

func (e *Exchanger) roundTrip(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.seq++
	msg[6] = e.seq
	if _, err := e.dev.Write(msg); err != nil {
		return nil, fmt.Errorf("usb write: %w", err)
	}

	var resp []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := e.dev.Read(e.buf)
		if err != nil {
			return nil, fmt.Errorf("usb read: %w", err)
		}
		resp = append(resp, e.buf[:n]...)
		if len(resp) < ccid.HeaderSize {
			continue
		}
		hdr, data, err := ccid.ParseResponse(resp)
		if errors.Is(err, ccid.ErrBadLength) {
			continue
		}
		if hdr.Seq != e.seq {
			return nil, fmt.Errorf("%w: got %d want %d", ErrSequence, hdr.Seq, e.seq)
		}
		if hdr.Type != ccid.MsgDataBlock {
			return nil, fmt.Errorf("%w: status 0x%02x", ErrSlotStatus, resp[7])
		}
		return data, nil
	}
}

// Close closes the device.
func (e *Exchanger) Close() error {
	return e.dev.Close()
}
