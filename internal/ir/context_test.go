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

package ir

import "testing"

func TestLinkNeededPullsOnlyReferencedFunctions(t *testing.T) {
	dst := &Module{
		Name: "caller",
		Functions: []Function{
			{
				Name: "main",
				Blocks: []Block{
					{Name: "entry", Instrs: []Instr{
						{Op: OpCall, Callee: "needed"},
						{Op: OpRet},
					}},
				},
			},
		},
	}
	src := &Module{
		Name: "callee",
		Functions: []Function{
			{Name: "needed", Blocks: []Block{{Name: "entry"}}},
			{Name: "unused", Blocks: []Block{{Name: "entry"}}},
		},
	}

	out, err := LinkNeeded(dst, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.FindFunction("needed") == nil {
		t.Fatal("expected 'needed' to be linked in")
	}
	if out.FindFunction("unused") != nil {
		t.Fatal("expected 'unused' to be left behind")
	}
}

func TestLinkNeededDstDefinitionWins(t *testing.T) {
	dst := &Module{
		Name: "caller",
		Functions: []Function{
			{Name: "shared", Blocks: []Block{{Name: "entry", Instrs: []Instr{{Op: OpRet, Value: "dst"}}}}},
			{Name: "main", Blocks: []Block{{Name: "entry", Instrs: []Instr{{Op: OpCall, Callee: "shared"}, {Op: OpRet}}}}},
		},
	}
	src := &Module{
		Name: "callee",
		Functions: []Function{
			{Name: "shared", Blocks: []Block{{Name: "entry", Instrs: []Instr{{Op: OpRet, Value: "src"}}}}},
		},
	}

	out, err := LinkNeeded(dst, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for _, fn := range out.Functions {
		if fn.Name == "shared" {
			count++
			if fn.Blocks[0].Instrs[0].Value != "dst" {
				t.Fatalf("expected dst's definition of 'shared' to win, got %q", fn.Blocks[0].Instrs[0].Value)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one 'shared' definition after linking, got %d", count)
	}
}

func TestLinkNeededIgnoresIndirectCalls(t *testing.T) {
	dst := &Module{
		Name: "caller",
		Functions: []Function{
			{Name: "main", Blocks: []Block{{Name: "entry", Instrs: []Instr{{Op: OpCall, Callee: ""}, {Op: OpRet}}}}},
		},
	}
	src := &Module{
		Name:      "callee",
		Functions: []Function{{Name: "anything"}},
	}

	out, err := LinkNeeded(dst, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.FindFunction("anything") != nil {
		t.Fatal("an indirect call must not pull in any callee definition")
	}
}
