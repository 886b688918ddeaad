/*******************************************************************************
* Copyright (C) 2026 the Eclipse BaSyx Authors and Fraunhofer IESE
*
* Permission is hereby granted, free of charge, to any person obtaining
* a copy of this software and associated documentation files (the
* "Software"), to deal in the Software without restriction, including
* without limitation the rights to use, copy, modify, merge, publish,
* distribute, sublicense, and/or sell copies of the Software, and to
* permit persons to whom the Software is furnished to do so, subject to
* the following conditions:
*
* The above copyright notice and this permission notice shall be
* included in all copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
* EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
* MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
* NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE
* LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION
* OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION
* WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*
* SPDX-License-Identifier: MIT
******************************************************************************/

// Package logger provides component-prefixed logging for the access rule service.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetDebug enables or disables debug output for all component loggers.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether debug output is enabled.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Logger writes messages tagged with a component prefix such as "[ABAC] ".
type Logger struct {
	l *log.Logger
}

// New returns a Logger writing to stderr with the given component name.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter returns a Logger writing to w.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{l: log.New(w, "["+component+"] ", log.LstdFlags|log.Lshortfile)}
}

// LogError logs an error with context information. Nil errors are ignored.
//
// Parameters:
//   - context: A description of where/when the error occurred
//   - err: The error that occurred
func (lg *Logger) LogError(context string, err error) {
	if err != nil {
		lg.output("ERROR: %s: %v", context, err)
	}
}

// LogInfo logs an informational message.
func (lg *Logger) LogInfo(format string, args ...any) {
	lg.output("INFO: "+format, args...)
}

// LogWarning logs a warning message.
func (lg *Logger) LogWarning(format string, args ...any) {
	lg.output("WARN: "+format, args...)
}

// LogDebug logs a debug message when debug output is enabled.
func (lg *Logger) LogDebug(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	lg.output("DEBUG: "+format, args...)
}

func (lg *Logger) output(format string, args ...any) {
	// calldepth 3 points Lshortfile at the caller of LogX.
	_ = lg.l.Output(3, fmt.Sprintf(format, args...))
}
