/*
 * Copyright 2021 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package klog

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

var defaultLogger FullLogger = &localLogger{
	logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	level:  LevelInfo,
}

// SetOutput sets the output of the default logger. By default it is stderr.
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// SetLevel sets the level below which logs will not be emitted. The
// default is LevelInfo, matching drti::runtime_config's default in the
// original runtime.
func SetLevel(lv Level) {
	defaultLogger.SetLevel(lv)
}

// DefaultLogger returns the logger used by the package-level functions.
func DefaultLogger() FullLogger {
	return defaultLogger
}

// SetLogger replaces the default logger. Not concurrency-safe; call before
// any other klog function.
func SetLogger(v FullLogger) {
	defaultLogger = v
}

func Fatal(v ...interface{}) { defaultLogger.Fatal(v...) }
func Error(v ...interface{}) { defaultLogger.Error(v...) }
func Warn(v ...interface{})  { defaultLogger.Warn(v...) }
func Info(v ...interface{})  { defaultLogger.Info(v...) }
func Trace(v ...interface{}) { defaultLogger.Trace(v...) }
func Debug(v ...interface{}) { defaultLogger.Debug(v...) }

func Fatalf(format string, v ...interface{}) { defaultLogger.Fatalf(format, v...) }
func Errorf(format string, v ...interface{}) { defaultLogger.Errorf(format, v...) }
func Warnf(format string, v ...interface{})  { defaultLogger.Warnf(format, v...) }
func Infof(format string, v ...interface{})  { defaultLogger.Infof(format, v...) }
func Tracef(format string, v ...interface{}) { defaultLogger.Tracef(format, v...) }
func Debugf(format string, v ...interface{}) { defaultLogger.Debugf(format, v...) }

func CtxErrorf(ctx context.Context, format string, v ...interface{}) {
	defaultLogger.CtxErrorf(ctx, format, v...)
}

func CtxInfof(ctx context.Context, format string, v ...interface{}) {
	defaultLogger.CtxInfof(ctx, format, v...)
}

func CtxDebugf(ctx context.Context, format string, v ...interface{}) {
	defaultLogger.CtxDebugf(ctx, format, v...)
}

type localLogger struct {
	logger *log.Logger
	level  Level
}

func (ll *localLogger) SetOutput(w io.Writer) { ll.logger.SetOutput(w) }
func (ll *localLogger) SetLevel(lv Level)     { ll.level = lv }

func (ll *localLogger) logf(lv Level, format *string, v ...interface{}) {
	if ll.level < lv {
		return
	}
	msg := lv.toString()
	if format != nil {
		msg += fmt.Sprintf(*format, v...)
	} else {
		msg += fmt.Sprint(v...)
	}
	ll.logger.Output(3, msg)
	if lv == LevelFatal {
		os.Exit(1)
	}
}

func (ll *localLogger) Fatal(v ...interface{}) { ll.logf(LevelFatal, nil, v...) }
func (ll *localLogger) Error(v ...interface{}) { ll.logf(LevelError, nil, v...) }
func (ll *localLogger) Warn(v ...interface{})  { ll.logf(LevelWarn, nil, v...) }
func (ll *localLogger) Info(v ...interface{})  { ll.logf(LevelInfo, nil, v...) }
func (ll *localLogger) Trace(v ...interface{}) { ll.logf(LevelTrace, nil, v...) }
func (ll *localLogger) Debug(v ...interface{}) { ll.logf(LevelDebug, nil, v...) }

func (ll *localLogger) Fatalf(format string, v ...interface{}) { ll.logf(LevelFatal, &format, v...) }
func (ll *localLogger) Errorf(format string, v ...interface{}) { ll.logf(LevelError, &format, v...) }
func (ll *localLogger) Warnf(format string, v ...interface{})  { ll.logf(LevelWarn, &format, v...) }
func (ll *localLogger) Infof(format string, v ...interface{})  { ll.logf(LevelInfo, &format, v...) }
func (ll *localLogger) Tracef(format string, v ...interface{}) { ll.logf(LevelTrace, &format, v...) }
func (ll *localLogger) Debugf(format string, v ...interface{}) { ll.logf(LevelDebug, &format, v...) }

func (ll *localLogger) CtxErrorf(_ context.Context, format string, v ...interface{}) {
	ll.logf(LevelError, &format, v...)
}

func (ll *localLogger) CtxInfof(_ context.Context, format string, v ...interface{}) {
	ll.logf(LevelInfo, &format, v...)
}

func (ll *localLogger) CtxDebugf(_ context.Context, format string, v ...interface{}) {
	ll.logf(LevelDebug, &format, v...)
}
