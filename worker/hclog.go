/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package worker

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
	"github.com/sirupsen/logrus"
)

// hclogShim adapts a logrus.Entry to hclog.Logger, for the worker
// supervision tree's spawn/health/upgrade tracing, which is modeled on
// the same "named, leveled, with-fields" logger shape hashicorp's own
// supervisors expect.
type hclogShim struct {
	entry *logrus.Entry
	name  string
}

// NewHCLogger wraps entry as an hclog.Logger under name. A nil entry
// falls back to logrus's standard logger so callers that have no
// per-worker log context yet (early spawn, tests) still get a usable
// tracer instead of a nil-pointer panic.
func NewHCLogger(entry *logrus.Entry, name string) hclog.Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &hclogShim{entry: entry.WithField("component", name), name: name}
}

func (h *hclogShim) Trace(msg string, args ...interface{}) { h.log(hclog.Trace, msg, args...) }
func (h *hclogShim) Debug(msg string, args ...interface{}) { h.log(hclog.Debug, msg, args...) }
func (h *hclogShim) Info(msg string, args ...interface{})  { h.log(hclog.Info, msg, args...) }
func (h *hclogShim) Warn(msg string, args ...interface{})  { h.log(hclog.Warn, msg, args...) }
func (h *hclogShim) Error(msg string, args ...interface{}) { h.log(hclog.Error, msg, args...) }

func (h *hclogShim) log(level hclog.Level, msg string, args ...interface{}) {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	entry := h.entry.WithFields(fields)
	switch level {
	case hclog.Trace, hclog.Debug:
		entry.Debug(msg)
	case hclog.Warn:
		entry.Warn(msg)
	case hclog.Error:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}

func (h *hclogShim) IsTrace() bool { return h.entry.Logger.IsLevelEnabled(logrus.TraceLevel) }
func (h *hclogShim) IsDebug() bool { return h.entry.Logger.IsLevelEnabled(logrus.DebugLevel) }
func (h *hclogShim) IsInfo() bool  { return h.entry.Logger.IsLevelEnabled(logrus.InfoLevel) }
func (h *hclogShim) IsWarn() bool  { return h.entry.Logger.IsLevelEnabled(logrus.WarnLevel) }
func (h *hclogShim) IsError() bool { return h.entry.Logger.IsLevelEnabled(logrus.ErrorLevel) }

func (h *hclogShim) ImpliedArgs() []interface{} { return nil }

func (h *hclogShim) With(args ...interface{}) hclog.Logger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return &hclogShim{entry: h.entry.WithFields(fields), name: h.name}
}

func (h *hclogShim) Name() string { return h.name }

func (h *hclogShim) Named(name string) hclog.Logger {
	return &hclogShim{entry: h.entry.WithField("component", name), name: name}
}

func (h *hclogShim) ResetNamed(name string) hclog.Logger {
	return h.Named(name)
}

func (h *hclogShim) SetLevel(level hclog.Level) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.entry.Logger.SetLevel(logrus.DebugLevel)
	case hclog.Warn:
		h.entry.Logger.SetLevel(logrus.WarnLevel)
	case hclog.Error:
		h.entry.Logger.SetLevel(logrus.ErrorLevel)
	default:
		h.entry.Logger.SetLevel(logrus.InfoLevel)
	}
}

func (h *hclogShim) GetLevel() hclog.Level {
	switch h.entry.Logger.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return hclog.Debug
	case logrus.WarnLevel:
		return hclog.Warn
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return hclog.Error
	default:
		return hclog.Info
	}
}

func (h *hclogShim) StandardLogger(opts *hclog.StandardLoggerOpts) *log.Logger {
	return log.New(h.StandardWriter(opts), "", 0)
}

func (h *hclogShim) StandardWriter(opts *hclog.StandardLoggerOpts) io.Writer {
	return h.entry.Writer()
}
