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

package syncutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutexZeroValue(t *testing.T) {
	t.Parallel()

	var mu Mutex
	done := make(chan struct{})
	mu.Lock()
	go func() {
		mu.Lock()
		close(done)
		mu.Unlock()
	}()
	mu.Unlock()
	<-done

	var rw RWMutex
	rw.RLock()
	rw.RLock()
	rw.RUnlock()
	rw.RUnlock()
	rw.Lock()
	rw.Unlock()
}

func TestSetLockTimeout(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { SetLockTimeout(30 * time.Second) })
}
