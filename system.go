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

// Built-in commands answered by the engine itself.
const (
	systemCLA     = 0xB0
	insAppInfo    = 0x01
	insAppExit    = 0xA7
	appInfoFormat = 0x01
)

func isSystemCommand(h Header) bool {
	return h.CLA == systemCLA && h.P1 == 0 && h.P2 == 0
}

// handleSystem answers a built-in command. INS 0x01 returns the format byte
// followed by the length prefixed application name and version. INS 0xA7
// replies and exits the application.
func (c *Comm) handleSystem(ctx context.Context, h Header) error {
	switch h.INS {
	case insAppInfo:
		c.tx = 0
		c.buf[0] = appInfoFormat
		c.tx = 1
		c.appendField(c.host.AppName())
		c.appendField(c.host.AppVersion())
		c.log.Debugf("app info requested via %s", c.media)
		return c.ReplyOK(ctx)
	case insAppExit:
		if err := c.ReplyOK(ctx); err != nil {
			return err
		}
		c.log.Info("exit requested")
		c.host.Exit(0)
		return nil
	default:
		return c.autoReply(ctx, StatusBadIns, "unknown system instruction")
	}
}

// appendField writes a one byte length and v, truncated to leave room for
// the status word.
func (c *Comm) appendField(v []byte) {
	room := BufferSize - c.tx - 1 - 2
	if room < 0 {
		return
	}
	n := min(len(v), room, 0xFF)
	c.buf[c.tx] = byte(n)
	copy(c.buf[c.tx+1:], v[:n])
	c.tx += 1 + n
}
