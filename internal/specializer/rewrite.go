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
	"fmt"
	"strings"

	"github.com/cloudwego/drti/internal/ir"
	"github.com/cloudwego/drti/pkg/kerrors"
)

const maxCoercedArguments = 2
const maxCoercedArgumentIndex = 1

// rewriteCallsite implements spec.md §4.4 step 4: the guarded four-block
// split of the block containing the observed indirect call, comparing
// the call's function-pointer operand against target and branching to a
// direct call on match. callee is the already-linked target function
// (from the merged module); converters is the set of coercion functions
// available in the callee's home module, keyed by the parameter index
// they were written for (spec.md restricts coercion to index 0 or 1).
//
// Returns the name of the merge block's result value, if the call
// produces one, so the caller's remaining instructions (already
// referencing the original call's Dst) keep working unmodified.
func rewriteCallsite(caller *ir.Function, site ir.CallSite, target uintptr, callee *ir.Function, converters map[int]*ir.Function) error {
	bi, ok := blockIndex(caller, site.Block)
	if !ok {
		return kerrors.ErrSymbolNotFound.WithCause(
			fmt.Errorf("callsite #%d: block %q not found in %q", site.Number, site.Block, caller.Name))
	}

	blk := &caller.Blocks[bi]
	if site.InstrIndex >= len(blk.Instrs) {
		return kerrors.ErrSymbolNotFound.WithCause(
			fmt.Errorf("callsite #%d: instruction index %d out of range in block %q", site.Number, site.InstrIndex, blk.Name))
	}

	call := blk.Instrs[site.InstrIndex]
	if call.Op != ir.OpCall {
		return kerrors.ErrSymbolNotFound.WithCause(
			fmt.Errorf("callsite #%d: instruction at index %d is not a call", site.Number, site.InstrIndex))
	}
	if call.Callee != "" {
		// The decorator should already have inlined a known-direct
		// target; nothing to rewrite.
		return nil
	}

	args, err := coerceArguments(call.Args, callee, converters)
	if err != nil {
		return err
	}

	before := blk.Instrs[:site.InstrIndex]
	after := blk.Instrs[site.InstrIndex+1:]

	tag := fmt.Sprintf("%s.cs%d", blk.Name, site.Number)
	b1Name := tag + ".match"
	b2Name := tag + ".fast"
	b3Name := tag + ".slow"
	b4Name := tag + ".merge"

	cmpValue := tag + ".target"
	mergeValue := call.Dst

	b1 := ir.Block{
		Name: b1Name,
		Instrs: append(append([]ir.Instr{}, before...),
			ir.Instr{Op: ir.OpICmpEq, Dst: cmpValue, Cond: call.Callee, Value: fmt.Sprintf("%#x", target)},
			ir.Instr{Op: ir.OpCondBr, Cond: cmpValue, Target: b2Name, Else: b3Name},
		),
	}

	fastDst := ""
	if mergeValue != "" {
		fastDst = mergeValue + ".fast"
	}
	b2 := ir.Block{
		Name: b2Name,
		Instrs: []ir.Instr{
			{Op: ir.OpCall, Dst: fastDst, Callee: callee.Name, Args: args},
			{Op: ir.OpBr, Target: b4Name},
		},
	}

	slowDst := ""
	if mergeValue != "" {
		slowDst = mergeValue + ".slow"
	}
	b3 := ir.Block{
		Name: b3Name,
		Instrs: []ir.Instr{
			{Op: ir.OpCall, Dst: slowDst, Args: call.Args},
			{Op: ir.OpBr, Target: b4Name},
		},
	}

	var mergeInstrs []ir.Instr
	if mergeValue != "" {
		mergeInstrs = append(mergeInstrs, ir.Instr{
			Op: ir.OpCall, Dst: mergeValue, Callee: "__drti_phi", Args: []string{fastDst, slowDst},
		})
	}
	b4 := ir.Block{
		Name:   b4Name,
		Instrs: append(mergeInstrs, after...),
	}

	rewritten := make([]ir.Block, 0, len(caller.Blocks)+3)
	rewritten = append(rewritten, caller.Blocks[:bi]...)
	rewritten = append(rewritten, b1, b2, b3, b4)
	rewritten = append(rewritten, caller.Blocks[bi+1:]...)
	caller.Blocks = rewritten

	return nil
}

func blockIndex(fn *ir.Function, name string) (int, bool) {
	for i, b := range fn.Blocks {
		if b.Name == name {
			return i, true
		}
	}
	return 0, false
}

// coerceArguments checks that call's argument count matches callee's
// arity and wraps every argument at parameter index 0 or 1 that has an
// entry in converters in that converter, within spec.md §4.4 step 4's
// limits: at most one coercion per argument, at most two coerced
// arguments total, and never past parameter index 1. Argument and
// parameter types are not compared: a converter is applied whenever one
// is present for the index, whether or not the types differ.
func coerceArguments(args []string, callee *ir.Function, converters map[int]*ir.Function) ([]string, error) {
	if len(args) != len(callee.Params) {
		return nil, kerrors.ErrTypeMismatch.WithCauseAndExtraMsg(
			fmt.Errorf("argument count %d does not match callee %q arity %d", len(args), callee.Name, len(callee.Params)),
			callee.Name)
	}

	out := make([]string, len(args))
	coerced := 0

	for i, a := range args {
		out[i] = a
		if i > maxCoercedArgumentIndex {
			continue
		}
		conv, needed := converters[i]
		if !needed {
			continue
		}
		if coerced >= maxCoercedArguments {
			return nil, kerrors.ErrTypeMismatch.WithCauseAndExtraMsg(
				fmt.Errorf("argument %d would exceed the two-coercion limit", i), fmt.Sprint(i))
		}
		if conv == nil {
			return nil, kerrors.ErrTypeMismatch.WithCauseAndExtraMsg(
				fmt.Errorf("no __drti_converter available for argument %d", i), fmt.Sprint(i))
		}
		out[i] = fmt.Sprintf("%s(%s)", conv.Name, a)
		coerced++
	}

	return out, nil
}

// findConverters locates every function in mod whose name contains the
// __drti_converter token, keyed by the parameter index convention
// spec.md documents: the function's own ordinal among converters
// determines which argument position it applies to (0 then 1), matching
// how a decorator would emit one converter per coercible parameter in
// declaration order.
func findConverters(mod *ir.Module) map[int]*ir.Function {
	out := make(map[int]*ir.Function)
	idx := 0
	for i := range mod.Functions {
		fn := &mod.Functions[i]
		if strings.Contains(fn.Name, "__drti_converter") {
			if idx > maxCoercedArgumentIndex {
				break
			}
			out[idx] = fn
			idx++
		}
	}
	return out
}
