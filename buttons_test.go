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
	"testing"

	"github.com/stretchr/testify/assert"
)

type buttonStep struct {
	sample byte
	want   ButtonEvent // zero for no event
}

func TestButtonState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps []buttonStep
	}{
		{
			name:  "Left_click",
			steps: []buttonStep{{0, 0}, {1, LeftButtonPress}, {1, 0}, {0, LeftButtonRelease}, {0, 0}},
		},
		{
			name:  "Right_click",
			steps: []buttonStep{{2, RightButtonPress}, {0, RightButtonRelease}},
		},
		{
			name:  "Both_together",
			steps: []buttonStep{{3, BothButtonsPress}, {3, BothButtonsPress}, {0, BothButtonsRelease}},
		},
		{
			name: "Left_then_right_then_release",
			steps: []buttonStep{
				{1, LeftButtonPress},
				{2, 0}, // right alone after left: accumulated, no event
				{0, BothButtonsRelease},
			},
		},
		{
			name:  "Left_held_then_both",
			steps: []buttonStep{{1, LeftButtonPress}, {3, BothButtonsPress}, {1, 0}, {0, BothButtonsRelease}},
		},
		{
			name:  "Release_without_press",
			steps: []buttonStep{{0, 0}, {0, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var s ButtonState
			for i, step := range tt.steps {
				ev, ok := s.Update(step.sample)
				if step.want == 0 {
					assert.False(t, ok, "step %d: unexpected %s", i, ev)
					continue
				}
				assert.True(t, ok, "step %d", i)
				assert.Equal(t, step.want, ev, "step %d", i)
			}
		})
	}
}

func TestButtonState_Reset(t *testing.T) {
	t.Parallel()

	var s ButtonState
	_, _ = s.Update(1)
	s.Reset()
	_, ok := s.Update(0)
	assert.False(t, ok)
	assert.Equal(t, "left press", LeftButtonPress.String())
	assert.Equal(t, "none", ButtonEvent(0).String())
}
