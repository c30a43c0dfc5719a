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

// Package client talks to a device running the seio engine from the host
// side. It encodes command APDUs the way the device parses them and decodes
// the response status word. Transport backends live in the subpackages.
package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-seio"
)

// Exchanger carries one command APDU to the device and returns the raw
// response, status word included.
type Exchanger interface {
	Exchange(ctx context.Context, capdu []byte) ([]byte, error)
}

// Limits of the command encoding.
const (
	MaxShortData    = 0xFF
	MaxExtendedData = 0xFFFF
)

var (
	// ErrDataTooLong is returned when a command data field cannot be encoded.
	ErrDataTooLong = errors.New("client: command data too long")
	// ErrShortResponse is returned when a response lacks a status word.
	ErrShortResponse = errors.New("client: response shorter than status word")
	// ErrBadAppInfo is returned when an app info response cannot be decoded.
	ErrBadAppInfo = errors.New("client: malformed app info response")
)

// CommandAPDU is a command sent to the device.
type CommandAPDU struct {
	Data     []byte
	CLA      byte
	INS      byte
	P1       byte
	P2       byte
	Extended bool // force the extended length form
}

// Bytes encodes the command. Data up to 255 bytes uses a one byte Lc unless
// Extended is set. The extended form is a zero byte followed by a
// little-endian 16 bit length, which is what the device expects.
func (c CommandAPDU) Bytes() ([]byte, error) {
	n := len(c.Data)
	if n > MaxExtendedData {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLong, n)
	}
	out := make([]byte, 0, seio.HeaderSize+3+n)
	out = append(out, c.CLA, c.INS, c.P1, c.P2)
	switch {
	case n == 0 && !c.Extended:
	case n <= MaxShortData && !c.Extended:
		out = append(out, byte(n))
	default:
		out = append(out, 0x00)
		out = binary.LittleEndian.AppendUint16(out, uint16(n))
	}
	return append(out, c.Data...), nil
}

func (c CommandAPDU) String() string {
	return fmt.Sprintf("CLA=%02X INS=%02X P1=%02X P2=%02X Lc=%d", c.CLA, c.INS, c.P1, c.P2, len(c.Data))
}

// Response is a decoded response APDU.
type Response struct {
	Data   []byte
	Status seio.StatusWord
}

// ParseResponse splits raw response bytes into data and status word.
func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(raw))
	}
	n := len(raw) - 2
	return Response{
		Data:   raw[:n],
		Status: seio.StatusWord(binary.BigEndian.Uint16(raw[n:])),
	}, nil
}

// OK reports whether the status word is 0x9000.
func (r Response) OK() bool {
	return r.Status == seio.StatusOk
}

// Err returns the status word as an error, or nil for 0x9000.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return r.Status
}

// AppInfo is the identity reported by the built-in app info command.
type AppInfo struct {
	Name    string
	Version string
	Format  byte
}

// Client sends commands through an Exchanger.
type Client struct {
	ex Exchanger
}

// New creates a client over ex.
func New(ex Exchanger) *Client {
	return &Client{ex: ex}
}

// Send encodes cmd, exchanges it and parses the response. A non 0x9000
// status is not an error here; use Response.Err.
func (c *Client) Send(ctx context.Context, cmd CommandAPDU) (Response, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return Response{}, err
	}
	return c.SendRaw(ctx, raw)
}

// SendRaw exchanges pre-encoded command bytes.
func (c *Client) SendRaw(ctx context.Context, capdu []byte) (Response, error) {
	resp, err := c.ex.Exchange(ctx, capdu)
	if err != nil {
		return Response{}, fmt.Errorf("exchange failed: %w", err)
	}
	return ParseResponse(resp)
}

// AppInfo queries the application name and version.
func (c *Client) AppInfo(ctx context.Context) (AppInfo, error) {
	resp, err := c.Send(ctx, CommandAPDU{CLA: 0xB0, INS: 0x01})
	if err != nil {
		return AppInfo{}, err
	}
	if err := resp.Err(); err != nil {
		return AppInfo{}, fmt.Errorf("app info: %w", err)
	}
	return ParseAppInfo(resp.Data)
}

// ParseAppInfo decodes [format][len][name][len][version].
func ParseAppInfo(data []byte) (AppInfo, error) {
	if len(data) < 1 {
		return AppInfo{}, ErrBadAppInfo
	}
	info := AppInfo{Format: data[0]}
	rest := data[1:]
	name, rest, ok := lengthPrefixed(rest)
	if !ok {
		return AppInfo{}, fmt.Errorf("%w: name", ErrBadAppInfo)
	}
	version, _, ok := lengthPrefixed(rest)
	if !ok {
		return AppInfo{}, fmt.Errorf("%w: version", ErrBadAppInfo)
	}
	info.Name = string(name)
	info.Version = string(version)
	return info, nil
}

func lengthPrefixed(b []byte) (field, rest []byte, ok bool) {
	if len(b) < 1 || len(b) < 1+int(b[0]) {
		return nil, nil, false
	}
	n := int(b[0])
	return b[1 : 1+n], b[1+n:], true
}

// Quit asks the application to exit.
func (c *Client) Quit(ctx context.Context) error {
	resp, err := c.Send(ctx, CommandAPDU{CLA: 0xB0, INS: 0xA7})
	if err != nil {
		return err
	}
	return resp.Err()
}
