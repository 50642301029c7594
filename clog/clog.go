// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package clog is the pluggable log facade the protocol stack writes
// through: a four-level provider interface behind an atomic enable gate,
// so a disabled logger costs one load and callers never depend on a
// concrete logging library.
package clog

import (
	"log"
	"os"
	"sync/atomic"
)

// LogProvider is the sink the facade forwards to. Critical, Error, Warn
// and Debug mirror the RFC 5424 levels the stack actually uses.
type LogProvider interface {
	Critical(format string, v ...interface{})
	Error(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Debug(format string, v ...interface{})
}

// Clog gates a LogProvider behind an enable flag. NewLogger returns it
// disabled; LogMode(true) switches output on. Clog is copied by value into
// the components that log, so the enable flag lives behind a shared
// pointer.
type Clog struct {
	provider LogProvider
	enabled  *atomic.Bool
}

// NewLogger returns a Clog writing to stdout with the given prefix,
// output disabled.
func NewLogger(prefix string) Clog {
	return Clog{
		provider: defaultLogger{log.New(os.Stdout, prefix, log.LstdFlags)},
		enabled:  new(atomic.Bool),
	}
}

// LogMode enables or disables log output.
func (c Clog) LogMode(enable bool) {
	c.enabled.Store(enable)
}

// SetLogProvider replaces the sink; nil is ignored so a caller can pass an
// optional provider straight through.
func (c *Clog) SetLogProvider(p LogProvider) {
	if p != nil {
		c.provider = p
	}
}

// Critical logs a CRITICAL level message.
func (c Clog) Critical(format string, v ...interface{}) {
	if c.enabled.Load() {
		c.provider.Critical(format, v...)
	}
}

// Error logs an ERROR level message.
func (c Clog) Error(format string, v ...interface{}) {
	if c.enabled.Load() {
		c.provider.Error(format, v...)
	}
}

// Warn logs a WARN level message.
func (c Clog) Warn(format string, v ...interface{}) {
	if c.enabled.Load() {
		c.provider.Warn(format, v...)
	}
}

// Debug logs a DEBUG level message.
func (c Clog) Debug(format string, v ...interface{}) {
	if c.enabled.Load() {
		c.provider.Debug(format, v...)
	}
}

// defaultLogger adapts the standard library logger with per-level tags.
type defaultLogger struct {
	*log.Logger
}

var _ LogProvider = defaultLogger{}

func (d defaultLogger) Critical(format string, v ...interface{}) {
	d.Printf("[C]: "+format, v...)
}

func (d defaultLogger) Error(format string, v ...interface{}) {
	d.Printf("[E]: "+format, v...)
}

func (d defaultLogger) Warn(format string, v ...interface{}) {
	d.Printf("[W]: "+format, v...)
}

func (d defaultLogger) Debug(format string, v ...interface{}) {
	d.Printf("[D]: "+format, v...)
}
