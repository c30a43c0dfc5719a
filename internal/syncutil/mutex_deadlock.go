//go:build deadlock

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

// Package syncutil holds the mutex types used by links. Built with
// -tags=deadlock they are go-deadlock mutexes that report lock cycles and
// long waits.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Mutex is a deadlock-detecting mutex.
type Mutex = deadlock.Mutex

// RWMutex is a deadlock-detecting read/write mutex.
type RWMutex = deadlock.RWMutex

// DetectionEnabled reports whether lock cycle detection is compiled in.
const DetectionEnabled = true

// SetLockTimeout sets how long a lock may be waited on before go-deadlock
// reports it. Zero disables the timeout report.
func SetLockTimeout(d time.Duration) {
	deadlock.Opts.DeadlockTimeout = d
}
