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

package specializer

import (
	"testing"

	"github.com/cloudwego/drti/internal/ir"
	"github.com/cloudwego/drti/internal/resolver"
)

func TestSessionResolvePrefersReflectedGlobals(t *testing.T) {
	globals, err := resolver.Build(&ir.Module{Globals: []ir.Global{{Name: "g1"}}}, []uintptr{0x100}, nil)
	if err != nil {
		t.Fatalf("unexpected error building globals: %v", err)
	}
	procsyms := resolver.NewProcessSymbols(map[string]uintptr{"g1": 0x999, "runtime.panic": 0x200})

	s := newSession(globals, procsyms)

	if addr, ok := s.Resolve("g1"); !ok || addr != 0x100 {
		t.Fatalf("g1 = %#x, ok=%v, want reflected-globals address 0x100", addr, ok)
	}
	if addr, ok := s.Resolve("runtime.panic"); !ok || addr != 0x200 {
		t.Fatalf("runtime.panic = %#x, ok=%v, want fallback address 0x200", addr, ok)
	}
	if _, ok := s.Resolve("missing"); ok {
		t.Fatal("expected a miss for a symbol known to neither generator")
	}
}

func TestNewSessionAssignsID(t *testing.T) {
	globals, _ := resolver.Build(&ir.Module{}, nil, nil)
	s := newSession(globals, nil)

	var zero [16]byte
	if [16]byte(s.ID) == zero {
		t.Fatal("expected newSession to assign a non-zero UUID")
	}
}
