// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package clog

import "github.com/sirupsen/logrus"

// LogrusProvider adapts a *logrus.Logger onto the LogProvider interface so
// the protocol stack's retry/session traffic lands in the same structured
// log stream as the rest of a host application.
type LogrusProvider struct {
	Entry *logrus.Entry
}

var _ LogProvider = LogrusProvider{}

// NewLogrusProvider wraps l, tagging every record with field "component".
func NewLogrusProvider(l *logrus.Logger, component string) LogrusProvider {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusProvider{Entry: l.WithField("component", component)}
}

// Critical logs at logrus.ErrorLevel; logrus has no level above Error short
// of Fatal/Panic, which would abort the protocol goroutine.
func (p LogrusProvider) Critical(format string, v ...interface{}) {
	p.Entry.Errorf(format, v...)
}

// Error logs an ERROR-level message.
func (p LogrusProvider) Error(format string, v ...interface{}) {
	p.Entry.Errorf(format, v...)
}

// Warn logs a WARN-level message.
func (p LogrusProvider) Warn(format string, v ...interface{}) {
	p.Entry.Warnf(format, v...)
}

// Debug logs a DEBUG-level message.
func (p LogrusProvider) Debug(format string, v ...interface{}) {
	p.Entry.Debugf(format, v...)
}
