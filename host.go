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

import "os"

// Host is the device environment the engine runs in.
type Host interface {
	// AppName returns the registered application name.
	AppName() []byte
	// AppVersion returns the registered application version.
	AppVersion() []byte
	// Exit returns control to the device operating system. It does not
	// return.
	Exit(code int)
}

// StaticHost is a Host with a fixed identity that exits the process.
type StaticHost struct {
	Name    string
	Version string
}

// AppName implements Host.
func (h StaticHost) AppName() []byte { return []byte(h.Name) }

// AppVersion implements Host.
func (h StaticHost) AppVersion() []byte { return []byte(h.Version) }

// Exit implements Host.
func (StaticHost) Exit(code int) {
	_ = CloseSessionLog()
	os.Exit(code)
}
