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
	"io"
)

// Logger is the interface the runtime uses for every DRTI log statement.
// It exists so an embedding application can redirect DRTI's own logging
// into its preferred sink without DRTI depending on any specific logging
// library.
type Logger interface {
	Fatal(v ...interface{})
	Error(v ...interface{})
	Warn(v ...interface{})
	Info(v ...interface{})
	Trace(v ...interface{})
	Debug(v ...interface{})

	Fatalf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Tracef(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// CtxLogger is a Logger that can also attribute a log line to a context,
// e.g. to carry a specialization session ID through to every line it logs.
type CtxLogger interface {
	Logger
	CtxErrorf(ctx context.Context, format string, v ...interface{})
	CtxInfof(ctx context.Context, format string, v ...interface{})
	CtxDebugf(ctx context.Context, format string, v ...interface{})
}

type FullLogger interface {
	CtxLogger
	SetLevel(Level)
	SetOutput(w io.Writer)
}
