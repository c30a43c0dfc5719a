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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-seio/internal/seph"
	"github.com/ZaparooProject/go-seio/internal/syncutil"
)

// sessionLogWriter receives debug output while a session log is open.
var sessionLogWriter io.Writer

// sessionState is the open session log and the traffic seen during it.
type sessionState struct {
	started  time.Time
	file     *os.File
	path     string
	link     string
	commands [MediaBLE + 1]int
	auto     int
	mu       syncutil.Mutex
}

var session sessionState

// reset clears everything but the mutex. Called with mu held.
func (s *sessionState) reset() {
	s.started = time.Time{}
	s.file = nil
	s.path = ""
	s.link = ""
	s.commands = [MediaBLE + 1]int{}
	s.auto = 0
}

// InitSessionLog opens a timestamped session log in dir (the current
// directory when empty) and returns its path. Debug output is written to it
// whether or not console debugging is enabled.
func InitSessionLog(dir string) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.file != nil {
		return "", fmt.Errorf("session log already open: %s", session.path)
	}
	now := time.Now()
	name := filepath.Join(dir, fmt.Sprintf("seio_%s.log", now.Format("20060102_150405")))

	f, err := os.Create(name) //nolint:gosec // name built from a timestamp
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	session.reset()
	session.started, session.file, session.path = now, f, name
	sessionLogWriter = f
	writeSessionHeader(f, now)
	return name, nil
}

// SessionLink records the link the engine runs on in the session log.
func SessionLink(t LinkType, port string) {
	session.mu.Lock()
	session.link = fmt.Sprintf("%s %s", t, port)
	open := session.file != nil
	session.mu.Unlock()

	if open {
		Debugf("link: %s on %s", t, port)
	}
}

// countCommand records a command handed to the application.
func countCommand(m Media) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if int(m) < len(session.commands) {
		session.commands[m]++
	}
}

// countAutoReply records a command the engine answered itself.
func countAutoReply() {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.auto++
}

// CloseSessionLog writes the traffic summary and closes the session log.
func CloseSessionLog() error {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.file == nil {
		return nil
	}
	writeSessionFooter(session.file)

	err := session.file.Close()
	session.reset()
	sessionLogWriter = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// SessionLogPath returns the path of the open session log, or "".
func SessionLogPath() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.path
}

func writeSessionHeader(w io.Writer, started time.Time) {
	lines := [][2]string{
		{"Started", started.Format(time.RFC3339)},
		{"PID", fmt.Sprint(os.Getpid())},
		{"OS", runtime.GOOS + "/" + runtime.GOARCH},
		{"Go Version", runtime.Version()},
		{"Args", strings.Join(os.Args, " ")},
		{"Buffers", fmt.Sprintf("%d byte APDU, %d byte packet", BufferSize, seph.PacketSize)},
	}
	_, _ = fmt.Fprintln(w, "=== seio session log ===")
	for _, l := range lines {
		_, _ = fmt.Fprintf(w, "%s: %s\n", l[0], l[1])
	}
	_, _ = fmt.Fprintln(w)
}

// writeSessionFooter summarizes the session. Called with session.mu held.
func writeSessionFooter(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))
	if session.link != "" {
		_, _ = fmt.Fprintf(w, "Link: %s\n", session.link)
	}
	_, _ = fmt.Fprintf(w, "Duration: %s\n", time.Since(session.started).Round(time.Millisecond))

	var parts []string
	for m := MediaRaw; m <= MediaBLE; m++ {
		if n := session.commands[m]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", m, n))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	_, _ = fmt.Fprintf(w, "Commands: %s\n", strings.Join(parts, " "))
	_, _ = fmt.Fprintf(w, "Auto replies: %d\n", session.auto)
}
