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

// Package seio is the command/response engine of a secure element
// application.
//
// The engine reads event packets from a Link to the MCU proxy, reassembles
// APDU commands arriving over raw USB, USB-HID, USB-CCID or BLE, reports
// button edges and timer ticks, and sends each response back over the
// transport its command came from.
//
// A typical application loop:
//
//	comm, err := seio.New(link, seio.StaticHost{Name: "echo", Version: "1.0.0"},
//	    seio.WithExpectedCLA(0xE0))
//	if err != nil {
//	    return err
//	}
//	for {
//	    ins, err := seio.NextCommand(ctx, comm, decodeInstruction)
//	    if err != nil {
//	        return err
//	    }
//	    switch ins {
//	    case insEcho:
//	        data, _ := comm.Data()
//	        comm.Append(data)
//	        err = comm.ReplyOK(ctx)
//	    }
//	    if err != nil {
//	        return err
//	    }
//	}
//
// Commands with a malformed length, a class rejected by WithExpectedCLA or an
// instruction the decoder refuses are answered by the engine and never reach
// the application. Class 0xB0 with P1 = P2 = 0 is reserved for the built-in
// application info (INS 0x01) and exit (INS 0xA7) commands.
//
// # Debugging
//
// Set SEIO_DEBUG (or DEBUG) to print engine debug output, or call
// InitSessionLog to record it to a file. Links attach a wire trace to their
// errors; use GetTrace to retrieve it.
package seio
