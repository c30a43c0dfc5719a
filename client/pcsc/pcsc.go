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

// Package pcsc exchanges APDUs with a device through the system PC/SC
// service, which drives the device's CCID interface.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ebfe/scard"
)

// ErrNoReader is returned when no reader matches.
var ErrNoReader = errors.New("pcsc: no matching reader")

// Transmitter abstracts the connected card.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Exchanger sends APDUs through a PC/SC card handle.
type Exchanger struct {
	card    Transmitter
	release func() error
	reader  string
}

// Open connects to the first reader whose name contains match. An empty
// match selects the first reader.
func Open(match string) (*Exchanger, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish context: %w", err)
	}
	readers, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("list readers: %w", err)
	}
	reader := ""
	for _, r := range readers {
		if strings.Contains(r, match) {
			reader = r
			break
		}
	}
	if reader == "" {
		_ = ctx.Release()
		return nil, fmt.Errorf("%w: %q", ErrNoReader, match)
	}
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("connect %s: %w", reader, err)
	}
	e := New(card, reader)
	e.release = func() error {
		return errors.Join(card.Disconnect(scard.LeaveCard), ctx.Release())
	}
	return e, nil
}

// New wraps a connected card.
func New(card Transmitter, reader string) *Exchanger {
	return &Exchanger{card: card, reader: reader}
}

// Reader returns the reader name.
func (e *Exchanger) Reader() string {
	return e.reader
}

// Exchange implements client.Exchanger. PC/SC calls cannot be interrupted;
// the context is only checked before transmitting.
func (e *Exchanger) Exchange(ctx context.Context, capdu []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := e.card.Transmit(capdu)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	return resp, nil
}

// Close disconnects the card and releases the PC/SC context.
func (e *Exchanger) Close() error {
	if e.release == nil {
		return nil
	}
	return e.release()
}
