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

// Package asm is the x86-64 code generator backing the JIT specializer.
// It builds the machine code for one specialized call site: a small
// trampoline that sets the carrier register for the callee, stashes the
// call-site identification word retalign bytes before the call's return
// address, and calls the specialized target. Built on
// github.com/chenzhuoyu/iasm/x86_64, the same assembler frugal's own
// code generator uses, so this package reuses its register set,
// program builder, and label/link mechanics rather than re-inventing
// them.
package asm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/chenzhuoyu/iasm/x86_64"

	"github.com/cloudwego/drti/internal/carrier"
)

// callqRAXLen is the encoded length, in bytes, of "CALL RAX" (opcode FF
// D0; RAX's register index is 0, so no REX prefix is needed).
const callqRAXLen = 2

// Emitter accumulates one function's worth of machine code.
type Emitter struct {
	prog    *x86_64.Program
	retalign int
}

// NewEmitter creates an Emitter for a trampoline that will pad its
// guarded calls to retalign bytes. retalign must be a power of two;
// callers normally pass carrier.DefaultRetalign.
func NewEmitter(retalign int) *Emitter {
	return &Emitter{
		prog:     x86_64.DefaultArch.CreateProgram(),
		retalign: retalign,
	}
}

// EmitSetCaller copies RDI (the caller-context pointer, passed as this
// trampoline's sole argument by the code that calls it) into the
// carrier register, implementing the "set-caller" half of the
// register-hijacking pass for reg.
func (e *Emitter) EmitSetCaller(reg carrier.Register) error {
	dst, err := register64(reg)
	if err != nil {
		return err
	}
	e.prog.MOVQ(x86_64.RDI, dst)
	return nil
}

// EmitGuardedCall emits the call-site-identification word
// carrier.StashWord encodes, NOP-padded so that "CALL RAX" (the
// instruction immediately following the padding) pushes a return
// address exactly e.retalign bytes after the stash word, then emits
// that call. This is the "sink" spec.md's back-end pass decorates: a
// JMP hops over the stash and its padding (dead bytes, never executed),
// and the call instruction follows immediately after. target is loaded
// into RAX ahead of the jump so nothing but the call itself sits
// between the stash word and the return address it produces.
func (e *Emitter) EmitGuardedCall(target uintptr, abiVersion int32) {
	e.prog.MOVQ(int64(target), x86_64.RAX)

	skip := x86_64.CreateLabel("_drti_stash_skip")
	e.prog.JMP(skip)

	word := make([]byte, 8)
	binary.LittleEndian.PutUint64(word, carrier.StashWord(abiVersion))
	e.prog.Data(word)

	if pad := e.retalign - len(word) - callqRAXLen; pad > 0 {
		e.prog.Data(bytes.Repeat([]byte{0x90}, pad))
	}

	e.prog.Link(skip)
	e.prog.CALLQ(x86_64.RAX)
}

// EmitReturn emits a bare return, used to end a trampoline after its
// guarded call: the specialized target does the real work and returns
// into the trampoline, which then returns to the original caller.
func (e *Emitter) EmitReturn() {
	e.prog.RET()
}

// Assemble finalizes the program at load address pc and returns the
// encoded machine code. The Emitter must not be reused afterwards.
func (e *Emitter) Assemble(pc uintptr) []byte {
	defer e.prog.Free()
	return e.prog.Assemble(pc)
}

func register64(reg carrier.Register) (x86_64.Register64, error) {
	switch reg.Name {
	case "R14":
		return x86_64.R14, nil
	case "R13":
		return x86_64.R13, nil
	case "R12":
		return x86_64.R12, nil
	case "R15":
		return x86_64.R15, nil
	default:
		return 0, fmt.Errorf("drti: asm: unsupported carrier register %q", reg.Name)
	}
}
