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
)

func callerWithIndirectCall() *ir.Function {
	return &ir.Function{
		Name: "caller",
		Blocks: []ir.Block{
			{
				Name: "entry",
				Instrs: []ir.Instr{
					{Op: ir.OpCall, Dst: "r", Args: []string{"a0"}},
					{Op: ir.OpRet, Value: "r"},
				},
			},
		},
	}
}

func TestRewriteCallsiteSplitsIntoFourBlocks(t *testing.T) {
	caller := callerWithIndirectCall()
	callee := &ir.Function{Name: "callee", Params: []ir.Param{{Name: "p0"}}}
	site := ir.CallSite{Number: 0, Block: "entry", InstrIndex: 0}

	if err := rewriteCallsite(caller, site, 0x4000, callee, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(caller.Blocks) != 4 {
		t.Fatalf("expected 4 blocks after the guarded split, got %d", len(caller.Blocks))
	}

	names := []string{caller.Blocks[0].Name, caller.Blocks[1].Name, caller.Blocks[2].Name, caller.Blocks[3].Name}
	wantSuffixes := []string{".match", ".fast", ".slow", ".merge"}
	for i, suffix := range wantSuffixes {
		if got := names[i]; len(got) < len(suffix) || got[len(got)-len(suffix):] != suffix {
			t.Fatalf("block %d named %q, want suffix %q", i, got, suffix)
		}
	}

	fast := caller.Blocks[1]
	if fast.Instrs[0].Callee != "callee" {
		t.Fatalf("fast path should call the linked callee directly, got %+v", fast.Instrs[0])
	}

	merge := caller.Blocks[3]
	if merge.Instrs[0].Callee != "__drti_phi" {
		t.Fatalf("expected a phi merge for the call's result, got %+v", merge.Instrs[0])
	}
	if merge.Instrs[1].Op != ir.OpRet || merge.Instrs[1].Value != "r" {
		t.Fatalf("expected the original return instruction to survive in the merge block, got %+v", merge.Instrs[1])
	}
}

func TestRewriteCallsiteSkipsAlreadyDirectCalls(t *testing.T) {
	caller := &ir.Function{
		Name: "caller",
		Blocks: []ir.Block{
			{Name: "entry", Instrs: []ir.Instr{{Op: ir.OpCall, Callee: "already_direct"}, {Op: ir.OpRet}}},
		},
	}
	site := ir.CallSite{Number: 0, Block: "entry", InstrIndex: 0}

	if err := rewriteCallsite(caller, site, 0x4000, &ir.Function{Name: "callee"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(caller.Blocks) != 1 {
		t.Fatalf("expected no rewrite for an already-direct call, got %d blocks", len(caller.Blocks))
	}
}

func TestRewriteCallsiteUnknownBlock(t *testing.T) {
	caller := callerWithIndirectCall()
	site := ir.CallSite{Number: 0, Block: "nope", InstrIndex: 0}

	if err := rewriteCallsite(caller, site, 0x4000, &ir.Function{Name: "callee"}, nil); err == nil {
		t.Fatal("expected an error for an unknown block name")
	}
}

func TestCoerceArgumentsAppliesConverter(t *testing.T) {
	callee := &ir.Function{Params: []ir.Param{{Name: "p0"}}}
	converters := map[int]*ir.Function{0: {Name: "__drti_converter_0"}}

	out, err := coerceArguments([]string{"a0"}, callee, converters)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != "__drti_converter_0(a0)" {
		t.Fatalf("got %q, want a wrapped converter call", out[0])
	}
}

func TestCoerceArgumentsArityMismatch(t *testing.T) {
	callee := &ir.Function{Params: []ir.Param{{Name: "p0"}, {Name: "p1"}}}

	if _, err := coerceArguments([]string{"a0"}, callee, nil); err == nil {
		t.Fatal("expected an arity-mismatch error")
	}
}

func TestCoerceArgumentsMissingConverter(t *testing.T) {
	callee := &ir.Function{Params: []ir.Param{{Name: "p0"}}}
	converters := map[int]*ir.Function{0: nil}

	if _, err := coerceArguments([]string{"a0"}, callee, converters); err == nil {
		t.Fatal("expected an error when a needed converter is missing")
	}
}

func TestCoerceArgumentsAllowsTwoCoercions(t *testing.T) {
	callee := &ir.Function{Params: []ir.Param{{Name: "p0"}, {Name: "p1"}}}
	converters := map[int]*ir.Function{
		0: {Name: "conv0"},
		1: {Name: "conv1"},
	}

	// Two coercible arguments is exactly the limit; it must succeed.
	if _, err := coerceArguments([]string{"a0", "a1"}, callee, converters); err != nil {
		t.Fatalf("expected exactly two coercions to be allowed, got error: %v", err)
	}
}

func TestFindConvertersOrdersByDeclaration(t *testing.T) {
	mod := &ir.Module{
		Functions: []ir.Function{
			{Name: "unrelated"},
			{Name: "__drti_converter_first"},
			{Name: "__drti_converter_second"},
			{Name: "__drti_converter_third"},
		},
	}

	out := findConverters(mod)
	if len(out) != 2 {
		t.Fatalf("expected at most two converters (index 0 and 1), got %d", len(out))
	}
	if out[0].Name != "__drti_converter_first" || out[1].Name != "__drti_converter_second" {
		t.Fatalf("unexpected converter ordering: %+v", out)
	}
}
