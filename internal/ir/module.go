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

// Package ir is the Go-native stand-in for the decorator's embedded
// bitcode: a small, self-contained module format the specializer parses,
// links, rewrites, and JIT-compiles. A Module is the unit of linkage:
// one per decorated translation unit, serialized (gob, zstd-compressed)
// into the corresponding accounting.ReflectRecord at build time and
// reconstituted here at specialization time.
package ir

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Linkage mirrors the subset of LLVM linkage kinds the specializer
// actually distinguishes: whether a definition is this module's own, is
// expected to come from elsewhere, or has already been promoted to
// available-externally by the reflected-globals generator (§4.5's "the
// address of the ahead-of-time copy is authoritative").
type Linkage int

const (
	LinkageInternal Linkage = iota
	LinkageExternal
	LinkageAvailableExternally
	LinkageWeak
)

// Type is the minimal type system this IR needs to describe function
// signatures and coercions: enough to tell two types apart and to
// recognize pointer-ness, not a general type algebra.
type Type struct {
	Name      string
	IsPointer bool
}

func (t Type) String() string { return t.Name }

// Global is a module-level variable declaration or definition.
type Global struct {
	Name        string
	Type        Type
	Linkage     Linkage
	IsConstant  bool
	IsIntrinsic bool // true for llvm.*-style specials, never reflected
}

// Param is one function parameter.
type Param struct {
	Name string
	Type Type
}

// Instr is one instruction in a function body. This IR only models the
// handful of shapes internal/specializer actually rewrites: calls
// (direct or through a function-pointer operand), comparisons,
// conditional branches, unconditional branches, and returns. Everything
// else a real compiler would track (arithmetic, memory ops) is out of
// scope: specialization never looks inside a block it isn't rewriting.
type Instr struct {
	Op     Opcode
	Dst    string   // result name, empty if the instruction has no result
	Callee string   // Op == OpCall: callee symbol name, or "" if indirect
	Args   []string // Op == OpCall: argument value names
	Target string   // Op == OpBr/OpCondBr: branch target block name
	Else   string   // Op == OpCondBr: false-branch target block name
	Cond   string   // Op == OpCondBr/OpICmpEq: compared value name
	Value  string   // Op == OpICmpEq: comparand; Op == OpRet: returned value
}

// Opcode enumerates the instruction shapes this IR models.
type Opcode int

const (
	OpCall Opcode = iota
	OpICmpEq
	OpBr
	OpCondBr
	OpRet
)

// Block is a basic block: a name and a straight-line instruction list,
// ending (when well formed) in one of OpBr, OpCondBr, or OpRet.
type Block struct {
	Name   string
	Instrs []Instr
}

// CallSite locates one indirect call instruction within a function by
// ordinal, matching the decorator's enumeration (accounting.StaticCallsite
// .CallNumber indexes into this same ordering).
type CallSite struct {
	Number     uint32
	Block      string
	InstrIndex int
}

// Function is a module-level function declaration or definition.
type Function struct {
	Name       string
	Params     []Param
	Ret        Type
	Linkage    Linkage
	IsDeclared bool // true if this is a declaration with no Blocks
	Blocks     []Block
	CallSites  []CallSite
	// IsConverter reports whether this function's name contains the
	// __drti_converter token, making it eligible as a coercion function
	// per spec.md §4.4 step 4.
	IsConverter bool
}

// Module is one translation unit's worth of IR: the unit gob-encodes
// and zstd-compresses into accounting.ReflectRecord.Module.
type Module struct {
	Name      string
	Globals   []Global
	Functions []Function
}

// FindFunction returns the named function, or nil.
func (m *Module) FindFunction(name string) *Function {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i]
		}
	}
	return nil
}

// Encode serializes m with gob and compresses the result with zstd,
// producing the byte slice a decorator would embed into a ReflectRecord.
func Encode(m *Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("drti: ir: gob encode: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("drti: ir: create zstd writer: %w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// Decode reverses Encode. Malformed input (truncated zstd frame, gob
// type mismatch) is reported as a plain error; callers map it to
// kerrors.ErrBitcodeParseFailure.
func Decode(data []byte) (*Module, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("drti: ir: create zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("drti: ir: zstd decode: %w", err)
	}

	var m Module
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return nil, fmt.Errorf("drti: ir: gob decode: %w", err)
	}
	return &m, nil
}

// Verify performs the round-trip self-check spec.md §8 describes for
// bitcode: every function named in a ReflectRecord-equivalent set of
// landing and callsite names must actually be present in m, by name,
// and every non-intrinsic, non-constant global the decorator claims to
// have reflected must be present too. Intended for use in tests and in
// an opt-in development-mode sanity pass, not on the hot path.
func (m *Module) Verify(wantFunctions, wantGlobals []string) error {
	for _, name := range wantFunctions {
		if m.FindFunction(name) == nil {
			return fmt.Errorf("drti: ir: verify: module %q missing function %q", m.Name, name)
		}
	}
	have := make(map[string]bool, len(m.Globals))
	for _, g := range m.Globals {
		have[g.Name] = true
	}
	for _, name := range wantGlobals {
		if !have[name] {
			return fmt.Errorf("drti: ir: verify: module %q missing global %q", m.Name, name)
		}
	}
	return nil
}
