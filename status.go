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
	"errors"
	"fmt"
)

// StatusWord is one of the status words the engine knows by name.
type StatusWord uint16

// Status words
const (
	StatusOk              StatusWord = 0x9000
	StatusNothingReceived StatusWord = 0x6982
	StatusBadCla          StatusWord = 0x6e00
	StatusBadIns          StatusWord = 0x6e01
	StatusBadP1P2         StatusWord = 0x6e02
	StatusBadLen          StatusWord = 0x6e03
	StatusUserCancelled   StatusWord = 0x6e04
	StatusUnknown         StatusWord = 0x6d00
	StatusPanic           StatusWord = 0xe000
)

var statusNames = map[StatusWord]string{
	StatusOk:              "ok",
	StatusNothingReceived: "nothing received",
	StatusBadCla:          "bad CLA",
	StatusBadIns:          "bad INS",
	StatusBadP1P2:         "bad P1/P2",
	StatusBadLen:          "bad length",
	StatusUserCancelled:   "user cancelled",
	StatusUnknown:         "unknown",
	StatusPanic:           "panic",
}

// String returns the status word name, or its hex value when unnamed.
func (s StatusWord) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(s))
}

// Error lets a decoder return a StatusWord as its error.
func (s StatusWord) Error() string {
	return fmt.Sprintf("status 0x%04x (%s)", uint16(s), s.String())
}

// Reply implements Replier.
func (s StatusWord) Reply() Reply {
	return Reply(s)
}

// SyscallError is a failure code reported by the device operating system.
type SyscallError uint8

// Syscall error codes
const (
	SyscallInvalidParameter SyscallError = iota + 2
	SyscallOverflow
	SyscallSecurity
	SyscallInvalidCrc
	SyscallInvalidChecksum
	SyscallInvalidCounter
	SyscallNotSupported
	SyscallInvalidState
	SyscallTimeout
	SyscallUnspecified
)

// syscallReplyBase is added to the code to form the status word.
const syscallReplyBase = 0x6800

var syscallNames = [...]string{
	SyscallInvalidParameter: "invalid parameter",
	SyscallOverflow:         "overflow",
	SyscallSecurity:         "security",
	SyscallInvalidCrc:       "invalid CRC",
	SyscallInvalidChecksum:  "invalid checksum",
	SyscallInvalidCounter:   "invalid counter",
	SyscallNotSupported:     "not supported",
	SyscallInvalidState:     "invalid state",
	SyscallTimeout:          "timeout",
	SyscallUnspecified:      "unspecified",
}

// SyscallErrorFromCode converts a raw operating system code. Codes outside
// the known range become SyscallUnspecified.
func SyscallErrorFromCode(code uint32) SyscallError {
	if code < uint32(SyscallInvalidParameter) || code > uint32(SyscallUnspecified) {
		return SyscallUnspecified
	}
	return SyscallError(code)
}

func (e SyscallError) Error() string {
	if int(e) < len(syscallNames) && syscallNames[e] != "" {
		return "syscall error: " + syscallNames[e]
	}
	return fmt.Sprintf("syscall error %d", uint8(e))
}

// Reply implements Replier.
func (e SyscallError) Reply() Reply {
	return Reply(syscallReplyBase + uint16(e))
}

// Reply is the two byte status word that ends every response.
type Reply uint16

// Reply implements Replier so a raw status word can be passed to Comm.Reply.
func (r Reply) Reply() Reply {
	return r
}

// Bytes returns the big-endian wire form.
func (r Reply) Bytes() [2]byte {
	return [2]byte{byte(r >> 8), byte(r)}
}

func (r Reply) String() string {
	return fmt.Sprintf("0x%04x", uint16(r))
}

// Replier is implemented by anything that can be sent as a status word.
// Application errors implement it to choose the reply sent for a rejected
// command.
type Replier interface {
	Reply() Reply
}

// ReplyFor maps an error to the status word sent in its place. nil maps to
// StatusOk, errors carrying a Replier to that reply, and anything else to
// StatusUnknown.
func ReplyFor(err error) Reply {
	if err == nil {
		return StatusOk.Reply()
	}
	var r Replier
	if errors.As(err, &r) {
		return r.Reply()
	}
	return StatusUnknown.Reply()
}
