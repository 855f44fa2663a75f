/*
 * Copyright 2022 ByteDance Inc.
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

// Package specializer is the JIT: it turns one Treenode that has just
// latched a landing site into a specialized direct call, installed in
// place of the indirect dispatch that call site started with. It is
// the Go-native compileTreenode of spec.md §4.4.
package specializer

import (
	"github.com/google/uuid"

	"github.com/cloudwego/drti/internal/resolver"
)

// Session is one specialization's JIT context: "large code model,
// aggressive code generation, host target" in spec.md's terms becomes,
// in this implementation, simply "the assembler always emits absolute
// 64-bit addresses and there is exactly one target, the running
// process." What a Session actually owns is its two symbol generators
// and an identifier for logging and metrics correlation.
type Session struct {
	ID       uuid.UUID
	globals  *resolver.ReflectedGlobals
	procsyms *resolver.ProcessSymbols
}

func newSession(globals *resolver.ReflectedGlobals, procsyms *resolver.ProcessSymbols) *Session {
	return &Session{
		ID:       uuid.New(),
		globals:  globals,
		procsyms: procsyms,
	}
}

// Resolve consults the reflected-globals generator first, then the
// process-symbol fallback, matching the priority order spec.md §4.5
// specifies ("misses are passed to other generators").
func (s *Session) Resolve(name string) (uintptr, bool) {
	if addr, ok := s.globals.Lookup(name); ok {
		return addr, true
	}
	if s.procsyms != nil {
		return s.procsyms.Lookup(name)
	}
	return 0, false
}
