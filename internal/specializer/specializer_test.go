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
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/drti/internal/ir"
	"github.com/cloudwego/drti/pkg/accounting"
	"github.com/cloudwego/drti/pkg/kerrors"
)

func TestCompileRejectsRootNode(t *testing.T) {
	site := &accounting.StaticCallsite{}
	node := site.LookupOrInsert(nil, 0x1000) // no parent: a chain root.

	err := Compile(node)
	if err == nil {
		t.Fatal("expected an error for a node with no parent")
	}
	if !errors.Is(err, kerrors.ErrInternal) {
		t.Fatalf("err = %v, want kerrors.ErrInternal", err)
	}
}

func TestCompileFailsOnUndecodableCallerModule(t *testing.T) {
	callerLanding := &accounting.LandingSite{
		FunctionName: "caller_fn",
		Self:         &accounting.ReflectRecord{Module: []byte("not a valid zstd+gob module")},
	}
	callerSite := &accounting.StaticCallsite{Landing: callerLanding}
	parent := callerSite.LookupOrInsert(nil, 0x2000)

	calleeLanding := &accounting.LandingSite{
		FunctionName: "callee_fn",
		Self:         &accounting.ReflectRecord{Module: []byte("also not valid")},
	}
	calleeSite := &accounting.StaticCallsite{CallNumber: 0}
	node := calleeSite.LookupOrInsert(parent, 0x3000)
	calleeLanding.Observe(node)

	if node.State() != accounting.StateLatched {
		t.Fatalf("precondition failed: node.State() = %v, want StateLatched", node.State())
	}

	err := Compile(node)
	if err == nil {
		t.Fatal("expected a bitcode parse failure")
	}
	if !errors.Is(err, kerrors.ErrBitcodeParseFailure) {
		t.Fatalf("err = %v, want kerrors.ErrBitcodeParseFailure", err)
	}
	if node.State() != accounting.StateFailed {
		t.Fatalf("node.State() = %v, want StateFailed", node.State())
	}
}

func TestCompileFailsWhenLandingNotLatched(t *testing.T) {
	callerSite := &accounting.StaticCallsite{Landing: &accounting.LandingSite{}}
	parent := callerSite.LookupOrInsert(nil, 0x2000)

	calleeSite := &accounting.StaticCallsite{}
	node := calleeSite.LookupOrInsert(parent, 0x3000) // never Observe'd: no landing latched.

	err := Compile(node)
	if !errors.Is(err, kerrors.ErrInternal) {
		t.Fatalf("err = %v, want kerrors.ErrInternal", err)
	}
}

func TestCompileInvokesAttemptAndResultHooks(t *testing.T) {
	defer func() { OnAttempt = nil; OnResult = nil }()

	var attempted bool
	var resultNode *accounting.Treenode
	var resultErr error
	OnAttempt = func() { attempted = true }
	OnResult = func(node *accounting.Treenode, err error, elapsed time.Duration) {
		resultNode = node
		resultErr = err
	}

	site := &accounting.StaticCallsite{}
	node := site.LookupOrInsert(nil, 0x1000)

	err := Compile(node)

	if !attempted {
		t.Fatal("expected OnAttempt to be invoked")
	}
	if resultNode != node {
		t.Fatal("expected OnResult to be invoked with the same node")
	}
	if !errors.Is(resultErr, kerrors.ErrInternal) || !errors.Is(err, kerrors.ErrInternal) {
		t.Fatalf("resultErr = %v, Compile's own return = %v, want both kerrors.ErrInternal", resultErr, err)
	}
}

func TestFindCallSiteFound(t *testing.T) {
	fn := &ir.Function{
		CallSites: []ir.CallSite{
			{Number: 0, Block: "entry", InstrIndex: 0},
			{Number: 1, Block: "entry", InstrIndex: 2},
		},
	}
	cs, ok := findCallSite(fn, 1)
	if !ok {
		t.Fatal("expected call site 1 to be found")
	}
	if cs.InstrIndex != 2 {
		t.Fatalf("InstrIndex = %d, want 2", cs.InstrIndex)
	}
}

func TestFindCallSiteMissing(t *testing.T) {
	fn := &ir.Function{}
	if _, ok := findCallSite(fn, 0); ok {
		t.Fatal("expected no call site to be found in an empty function")
	}
}
