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

// Level mirrors drti::log_level from the original runtime: fatal is the
// most severe and lowest-numbered, debug is the least severe. A logger
// configured at level L emits everything numerically <= L.
type Level int

const (
	LevelFatal Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelTrace
	LevelDebug
)

func (lv Level) toString() string {
	switch lv {
	case LevelFatal:
		return "[Fatal] "
	case LevelError:
		return "[Error] "
	case LevelWarn:
		return "[Warn] "
	case LevelInfo:
		return "[Info] "
	case LevelTrace:
		return "[Trace] "
	case LevelDebug:
		return "[Debug] "
	default:
		return ""
	}
}
