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
	"os"
	"time"

	"github.com/pion/logging"
)

// debugEnabled turns on console debug output.
var debugEnabled = false

// consoleLogger prints debug output when enabled.
var consoleLogger = logging.NewDefaultLeveledLoggerForScope("seio", logging.LogLevelDebug, os.Stderr)

func init() {
	if os.Getenv("SEIO_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf logs a debug message. Messages always go to the session log, if
// one is open, and to the console only when debugging is enabled.
func Debugf(format string, args ...any) {
	debugWrite(fmt.Sprintf(format, args...))
}

// Debugln is Debugf with fmt.Sprint formatting.
func Debugln(args ...any) {
	debugWrite(fmt.Sprint(args...))
}

func debugWrite(message string) {
	if sessionLogWriter != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(sessionLogWriter, "%s DEBUG: %s\n", timestamp, message)
	}
	if debugEnabled {
		consoleLogger.Debug(message)
	}
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// debugLogger is the LeveledLogger used when no LoggerFactory is configured.
// Everything is routed through Debugf so it lands in the session log.
type debugLogger struct{}

var _ logging.LeveledLogger = debugLogger{}

func (debugLogger) Trace(msg string)                  { Debugln("trace: ", msg) }
func (debugLogger) Tracef(format string, args ...any) { Debugf("trace: "+format, args...) }
func (debugLogger) Debug(msg string)                  { Debugln(msg) }
func (debugLogger) Debugf(format string, args ...any) { Debugf(format, args...) }
func (debugLogger) Info(msg string)                   { Debugln("info: ", msg) }
func (debugLogger) Infof(format string, args ...any)  { Debugf("info: "+format, args...) }
func (debugLogger) Warn(msg string)                   { Debugln("warn: ", msg) }
func (debugLogger) Warnf(format string, args ...any)  { Debugf("warn: "+format, args...) }
func (debugLogger) Error(msg string)                  { Debugln("error: ", msg) }
func (debugLogger) Errorf(format string, args ...any) { Debugf("error: "+format, args...) }
