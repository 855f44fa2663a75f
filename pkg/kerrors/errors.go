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

// Package kerrors implements the error taxonomy of the JIT specializer
// (one sentinel per category, each wrappable with a cause), following the
// shape of the teacher's own pkg/kerrors.
package kerrors

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Basic error types. Each corresponds to one row of the specializer's
// error taxonomy: abi-mismatch is handled separately (it is silently
// ignored, never surfaced as an error) so it has no sentinel here.
var (
	ErrBitcodeParseFailure  = &basicError{"bitcode parse failure"}
	ErrSymbolNotFound       = &basicError{"symbol not found"}
	ErrAddressTableMismatch = &basicError{"address table mismatch"}
	ErrLinkFailure          = &basicError{"link failure"}
	ErrTypeMismatch         = &basicError{"type mismatch"}
	ErrCodegenFailure       = &basicError{"codegen failure"}
	ErrInternal             = &basicError{"internal specializer error"}
)

type basicError struct {
	message string
}

func (be *basicError) Error() string { return be.message }

// WithCause attaches a cause to a basic error, producing a DetailedError.
func (be *basicError) WithCause(cause error) error {
	return &DetailedError{basic: be, cause: cause}
}

// WithCauseAndExtraMsg attaches both a cause and a short extra message,
// e.g. the argument index for a type-mismatch or the symbol name for a
// symbol-not-found.
func (be *basicError) WithCauseAndExtraMsg(cause error, extraMsg string) error {
	return &DetailedError{basic: be, cause: cause, extraMsg: extraMsg}
}

// DetailedError carries a basic taxonomy error plus the specific cause and
// context that produced it.
type DetailedError struct {
	basic    *basicError
	cause    error
	extraMsg string
}

func (de *DetailedError) Error() string {
	msg := appendExtra(de.basic.Error(), de.extraMsg)
	if de.cause != nil {
		return msg + ": " + de.cause.Error()
	}
	return msg
}

func (de *DetailedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			msg := appendExtra(de.basic.Error(), de.extraMsg)
			_, _ = io.WriteString(s, msg)
			if de.cause != nil {
				_, _ = fmt.Fprintf(s, ": %+v", de.cause)
			}
			return
		}
		fallthrough
	case 's', 'q':
		_, _ = io.WriteString(s, de.Error())
	}
}

// ErrorType returns the basic taxonomy error this detail wraps.
func (de *DetailedError) ErrorType() error { return de.basic }

func (de *DetailedError) Unwrap() error { return de.cause }

func (de *DetailedError) Is(target error) bool {
	return de == target || de.basic == target || errors.Is(de.cause, target)
}

func (de *DetailedError) As(target interface{}) bool {
	if errors.As(de.basic, target) {
		return true
	}
	return errors.As(de.cause, target)
}

func appendExtra(errMsg, extra string) string {
	if extra == "" {
		return errMsg
	}
	var b strings.Builder
	b.Grow(len(errMsg) + len(extra) + 2)
	b.WriteString(errMsg)
	b.WriteByte('[')
	b.WriteString(extra)
	b.WriteByte(']')
	return b.String()
}

// IsSpecializerError reports whether err is one raised by the specializer
// (as opposed to, say, an I/O error from the loader's mmap call).
func IsSpecializerError(err error) bool {
	switch err.(type) {
	case *basicError, *DetailedError:
		return true
	default:
		return false
	}
}
