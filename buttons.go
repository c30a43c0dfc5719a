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

// ButtonEvent is an edge reported by the two button lines.
type ButtonEvent uint8

// Button events
const (
	LeftButtonPress ButtonEvent = iota + 1
	RightButtonPress
	BothButtonsPress
	LeftButtonRelease
	RightButtonRelease
	BothButtonsRelease
)

var buttonNames = [...]string{
	LeftButtonPress:    "left press",
	RightButtonPress:   "right press",
	BothButtonsPress:   "both press",
	LeftButtonRelease:  "left release",
	RightButtonRelease: "right release",
	BothButtonsRelease: "both release",
}

func (e ButtonEvent) String() string {
	if int(e) < len(buttonNames) && buttonNames[e] != "" {
		return buttonNames[e]
	}
	return "none"
}

// Button line bits of a sample.
const (
	buttonLeft  = 0x01
	buttonRight = 0x02
	buttonBoth  = buttonLeft | buttonRight
)

// ButtonState accumulates the lines seen down since the last all-up sample.
// The zero value is ready to use.
type ButtonState struct {
	mask byte
}

// Update feeds one sample and returns the event it produces, if any.
//
// Releases are reported once all lines are up, naming every line that was
// down since the previous release. A press is reported only from the idle
// state, or when both lines are down together.
func (s *ButtonState) Update(sample byte) (ButtonEvent, bool) {
	old := s.mask
	s.mask |= sample

	switch {
	case old == 0 && sample == buttonLeft:
		return LeftButtonPress, true
	case old == 0 && sample == buttonRight:
		return RightButtonPress, true
	case sample == buttonBoth:
		return BothButtonsPress, true
	case sample == 0:
		s.mask = 0
		switch old {
		case buttonLeft:
			return LeftButtonRelease, true
		case buttonRight:
			return RightButtonRelease, true
		case buttonBoth:
			return BothButtonsRelease, true
		}
	}
	return 0, false
}

// Reset forgets any line held down.
func (s *ButtonState) Reset() {
	s.mask = 0
}
