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

// Package resolver implements the JIT session's symbol generators: the
// reflected-globals generator of spec.md §4.5, which answers from the
// address tables the decorator embedded in each module's ReflectRecord,
// and a lower-priority process-symbol fallback for a small fixed set of
// runtime support symbols.
package resolver

import (
	"fmt"

	"github.com/cloudwego/drti/internal/ir"
	"github.com/cloudwego/drti/pkg/kerrors"
)

// ReflectedGlobals walks a module's globals and non-intrinsic function
// declarations in declaration order against the address table recorded
// alongside it, in the same order the decorator used to build that
// table, producing a name -> address mapping. Constructing one for the
// caller and one for the callee and merging them (callee entries never
// override caller entries already present) is what internal/specializer
// hands to the JIT session as its first, highest-priority generator.
type ReflectedGlobals struct {
	symbols map[string]uintptr
}

// Build walks mod's globals and function declarations against
// addresses, the module's ReflectRecord.Globals table, producing the
// mapping described by spec.md §4.5:
//
//   - each filtered global (excluding declarations-only, llvm.*
//     intrinsics, and pure constants) consumes the next address, and a
//     mapped global with internal linkage is promoted in mod to
//     available-externally, so the ahead-of-time copy stays the only one;
//   - each non-intrinsic function declaration not defined by
//     otherDefines consumes the next address.
//
// Running past the end of addresses is address-table-mismatch.
// Disagreeing with an already-built mapping for the same name (passed
// in via merge, see Merge) is checked by the caller, not here.
func Build(mod *ir.Module, addresses []uintptr, otherDefines func(name string) bool) (*ReflectedGlobals, error) {
	r := &ReflectedGlobals{symbols: make(map[string]uintptr)}
	idx := 0

	next := func(name string) error {
		if idx >= len(addresses) {
			return kerrors.ErrAddressTableMismatch.WithCauseAndExtraMsg(
				fmt.Errorf("module %q: ran out of addresses at %q", mod.Name, name), mod.Name)
		}
		r.symbols[name] = addresses[idx]
		idx++
		return nil
	}

	for i := range mod.Globals {
		g := &mod.Globals[i]
		if g.IsIntrinsic || g.IsConstant || g.Linkage == ir.LinkageExternal && isDeclarationOnly(*g) {
			continue
		}
		if err := next(g.Name); err != nil {
			return nil, err
		}
		if g.Linkage == ir.LinkageInternal {
			g.Linkage = ir.LinkageAvailableExternally
		}
	}

	for _, fn := range mod.Functions {
		if !fn.IsDeclared || isIntrinsicName(fn.Name) {
			continue
		}
		if otherDefines != nil && otherDefines(fn.Name) {
			continue
		}
		if err := next(fn.Name); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func isDeclarationOnly(g ir.Global) bool {
	return g.Linkage == ir.LinkageExternal
}

func isIntrinsicName(name string) bool {
	return len(name) >= 5 && name[:5] == "llvm."
}

// Merge folds other into r, requiring agreement on any name present in
// both: per spec.md §4.5, "collisions between duplicate symbols across
// modules must agree; disagreement is fatal."
func (r *ReflectedGlobals) Merge(other *ReflectedGlobals) error {
	for name, addr := range other.symbols {
		if existing, ok := r.symbols[name]; ok && existing != addr {
			return kerrors.ErrAddressTableMismatch.WithCause(
				fmt.Errorf("symbol %q resolves to %#x in one module and %#x in the other", name, existing, addr))
		}
		r.symbols[name] = addr
	}
	return nil
}

// Lookup implements the JIT session's symbol generator interface:
// reporting whether name is known, and if so, its address.
func (r *ReflectedGlobals) Lookup(name string) (uintptr, bool) {
	addr, ok := r.symbols[name]
	return addr, ok
}

// ProcessSymbols is the lower-priority fallback generator: a small
// fixed table of process support symbols (the Go-native analog of
// exposing unwinder entry points to the JIT). Consulted only after
// ReflectedGlobals misses.
type ProcessSymbols struct {
	table map[string]uintptr
}

// NewProcessSymbols builds a fallback generator from a fixed table,
// normally populated once at startup with this process's own runtime
// support symbols (e.g. the panic/recover trampoline a specialized
// function might need to call into).
func NewProcessSymbols(table map[string]uintptr) *ProcessSymbols {
	cp := make(map[string]uintptr, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &ProcessSymbols{table: cp}
}

func (p *ProcessSymbols) Lookup(name string) (uintptr, bool) {
	addr, ok := p.table[name]
	return addr, ok
}
