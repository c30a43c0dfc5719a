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
	"context"

	"github.com/ZaparooProject/go-seio/internal/seph"
)

// Decoder turns a command header into an application command. A returned
// error is answered with ReplyFor(err) and the command is not surfaced.
type Decoder[T any] func(Header) (T, error)

// EventKind tells which field of an Event is set.
type EventKind uint8

// Event kinds
const (
	EventCommand EventKind = iota + 1
	EventButton
	EventTicker
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventButton:
		return "button"
	case EventTicker:
		return "ticker"
	default:
		return "none"
	}
}

// Event is what the engine hands to the application: a decoded command, a
// button edge or a timer tick.
type Event[T any] struct {
	Command T
	Kind    EventKind
	Button  ButtonEvent
}

// NextEvent blocks until the next command, button edge or tick. It starts a
// new receive cycle: a command left unanswered is dropped. Malformed,
// rejected and built-in commands are answered internally and never returned.
// A returned error comes from the link.
func NextEvent[T any](ctx context.Context, c *Comm, decode Decoder[T]) (Event[T], error) {
	// An abandoned command must not leak its partial response.
	c.tx, c.rx = 0, 0
	c.resetIO()
	for {
		if err := ctx.Err(); err != nil {
			return Event[T]{}, err
		}
		if err := c.ensureStatus(ctx); err != nil {
			return Event[T]{}, err
		}
		p, err := c.recvPacket(ctx)
		if err != nil {
			return Event[T]{}, err
		}
		ev, ok, err := dispatch(ctx, c, p, decode)
		if err != nil {
			return Event[T]{}, err
		}
		if ok {
			return ev, nil
		}
	}
}

// NextCommand is NextEvent with button and ticker events dropped.
func NextCommand[T any](ctx context.Context, c *Comm, decode Decoder[T]) (T, error) {
	for {
		ev, err := NextEvent(ctx, c, decode)
		if err != nil {
			var zero T
			return zero, err
		}
		if ev.Kind == EventCommand {
			return ev.Command, nil
		}
	}
}

// DecodeEvent processes one received packet. It reports false when the
// packet produced nothing for the application. Links that deliver packets
// themselves use it instead of NextEvent.
func DecodeEvent[T any](ctx context.Context, c *Comm, pkt []byte, decode Decoder[T]) (Event[T], bool, error) {
	p, err := seph.Parse(pkt, len(pkt))
	if err != nil {
		c.log.Tracef("dropping %d byte packet", len(pkt))
		return Event[T]{}, false, nil
	}
	return dispatch(ctx, c, p, decode)
}

func dispatch[T any](ctx context.Context, c *Comm, p seph.Packet, decode Decoder[T]) (Event[T], bool, error) {
	// A command already pending has been surfaced before.
	fresh := c.media == MediaNone

	switch p.Tag {
	case seph.TagButtonPush:
		if ev, ok := c.buttons.Update(seph.ButtonSample(p.Payload)); ok {
			return Event[T]{Kind: EventButton, Button: ev}, true, nil
		}
	case seph.TagTicker:
		return Event[T]{Kind: EventTicker}, true, nil
	default:
		c.housekeep(p)
	}

	if err := c.flushCCIDControl(ctx); err != nil {
		return Event[T]{}, false, err
	}
	if !fresh || c.media == MediaNone || c.length == 0 {
		return Event[T]{}, false, nil
	}

	c.rx = c.length
	if c.rx < HeaderSize {
		return Event[T]{}, false, c.autoReply(ctx, StatusBadLen, "shorter than header")
	}
	if _, _, err := dataField(c.buf[:], c.rx); err != nil {
		return Event[T]{}, false, c.autoReply(ctx, ReplyFor(err), "bad data length")
	}

	h := c.Header()
	if isSystemCommand(h) {
		return Event[T]{}, false, c.handleSystem(ctx, h)
	}
	if c.cfg.HasExpectedCLA && h.CLA != c.cfg.ExpectedCLA {
		return Event[T]{}, false, c.autoReply(ctx, StatusBadCla, "unexpected class")
	}

	cmd, err := decode(h)
	if err != nil {
		return Event[T]{}, false, c.autoReply(ctx, ReplyFor(err), err.Error())
	}
	c.log.Tracef("command CLA=%02X INS=%02X via %s, %d bytes", h.CLA, h.INS, c.media, c.rx)
	countCommand(c.media)
	return Event[T]{Kind: EventCommand, Command: cmd}, true, nil
}

// NextButton waits for the next button edge while keeping the current
// command pending, so its reply can follow a user confirmation. Tickers are
// dropped and other packets only go through housekeeping.
func (c *Comm) NextButton(ctx context.Context) (ButtonEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := c.ensureStatus(ctx); err != nil {
			return 0, err
		}
		p, err := c.recvPacket(ctx)
		if err != nil {
			return 0, err
		}
		switch p.Tag {
		case seph.TagButtonPush:
			if ev, ok := c.buttons.Update(seph.ButtonSample(p.Payload)); ok {
				return ev, nil
			}
		case seph.TagTicker:
		default:
			c.housekeep(p)
		}
	}
}
