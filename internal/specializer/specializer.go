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
	"sync"
	"time"

	"github.com/cloudwego/drti/internal/asm"
	"github.com/cloudwego/drti/internal/carrier"
	"github.com/cloudwego/drti/internal/ir"
	"github.com/cloudwego/drti/internal/loader"
	"github.com/cloudwego/drti/internal/resolver"
	"github.com/cloudwego/drti/internal/rt"
	"github.com/cloudwego/drti/pkg/accounting"
	"github.com/cloudwego/drti/pkg/kerrors"
	"github.com/cloudwego/drti/pkg/klog"
)

// Retalign is the stash alignment this build's generated code uses. It
// is a package variable rather than a constant so pkg/config can set it
// once at startup from the embedding application's configuration; it
// must not change after the first call to Compile.
var Retalign = carrier.DefaultRetalign

// leak holds every installed loader.Loader this process has ever JIT
// compiled. It is never drained: spec.md §9's "arena per specialization
// that is never freed" means the emitted code must outlive the process,
// and the simplest way to guarantee the Go garbage collector agrees is
// to keep a live reference to it forever.
var (
	leakMu sync.Mutex
	leak   []leakedSpecialization
)

type leakedSpecialization struct {
	session *Session
	code    loader.Loader
	entry   loader.Function
}

// onCompiled is an optional hook invoked after every successful
// Compile. Nothing in this module sets it; tests may set it to observe
// completion synchronously, since Compile itself runs on whatever
// goroutine first latched the treenode.
var onCompiled func(node *accounting.Treenode, session *Session)

// OnAttempt and OnResult are optional hooks invoked by Compile around
// its work, wired up by pkg/metrics so the attempt/success/failure
// counters and latency sample it keeps stay accurate without coupling
// this package to a specific metrics backend.
var (
	OnAttempt func()
	OnResult  func(node *accounting.Treenode, err error, elapsed time.Duration)
)

// Compile implements compileTreenode from spec.md §4.4: it is invoked
// at most once per treenode, guaranteed by the landed-once latch in
// pkg/accounting. Every failure is reported as an error and leaves
// ActiveTarget untouched; node.Resolve is called only on full success.
// Failures from parsing onward also move node to accounting.StateFailed;
// the two precondition errors (node has no parent, node has not latched
// a landing site) return before that and leave node's state unchanged.
func Compile(node *accounting.Treenode) error {
	if OnAttempt != nil {
		OnAttempt()
	}
	start := time.Now()
	err := compile(node)
	if OnResult != nil {
		OnResult(node, err, time.Since(start))
	}
	return err
}

func compile(node *accounting.Treenode) error {
	if node.Parent == nil {
		return kerrors.ErrInternal.WithCause(fmt.Errorf("treenode has no parent, nothing to specialize"))
	}

	ir.ContextLock.Lock()
	defer ir.ContextLock.Unlock()

	callerSite := node.Parent.Location
	callerLanding := callerSite.Landing
	calleeLanding := node.Landing()
	if calleeLanding == nil {
		return kerrors.ErrInternal.WithCause(fmt.Errorf("treenode has not latched a landing site"))
	}

	callerMod, err := ir.Decode(callerLanding.Self.Module)
	if err != nil {
		klog.Errorf("drti: specializer: parse caller module %q failed: %v", callerLanding.FunctionName, err)
		node.Fail()
		return kerrors.ErrBitcodeParseFailure.WithCause(err)
	}
	calleeMod, err := ir.Decode(calleeLanding.Self.Module)
	if err != nil {
		klog.Errorf("drti: specializer: parse callee module %q failed: %v", calleeLanding.FunctionName, err)
		node.Fail()
		return kerrors.ErrBitcodeParseFailure.WithCause(err)
	}

	callerFn := callerMod.FindFunction(callerLanding.FunctionName)
	if callerFn == nil {
		node.Fail()
		return kerrors.ErrSymbolNotFound.WithCauseAndExtraMsg(
			fmt.Errorf("caller module has no function named %q", callerLanding.FunctionName), callerLanding.FunctionName)
	}
	calleeFn := calleeMod.FindFunction(calleeLanding.FunctionName)
	if calleeFn == nil {
		node.Fail()
		return kerrors.ErrSymbolNotFound.WithCauseAndExtraMsg(
			fmt.Errorf("callee module has no function named %q", calleeLanding.FunctionName), calleeLanding.FunctionName)
	}

	definedIn := func(mod *ir.Module) func(string) bool {
		return func(name string) bool { return mod.FindFunction(name) != nil }
	}

	callerGlobals, err := resolver.Build(callerMod, callerLanding.Self.Globals, definedIn(calleeMod))
	if err != nil {
		node.Fail()
		return err
	}
	calleeGlobals, err := resolver.Build(calleeMod, calleeLanding.Self.Globals, definedIn(callerMod))
	if err != nil {
		node.Fail()
		return err
	}
	if err := callerGlobals.Merge(calleeGlobals); err != nil {
		node.Fail()
		return err
	}

	session := newSession(callerGlobals, procSymbols())

	calleeFn.Linkage = ir.LinkageWeak
	callerFn.Linkage = ir.LinkageExternal
	if _, err := ir.LinkNeeded(callerMod, calleeMod); err != nil {
		node.Fail()
		return kerrors.ErrLinkFailure.WithCause(err)
	}

	site, ok := findCallSite(callerFn, node.Location.CallNumber)
	if !ok {
		node.Fail()
		return kerrors.ErrSymbolNotFound.WithCauseAndExtraMsg(
			fmt.Errorf("call number %d not found in %q", node.Location.CallNumber, callerFn.Name), callerFn.Name)
	}

	if err := rewriteCallsite(callerFn, site, node.Target, calleeFn, findConverters(calleeMod)); err != nil {
		node.Fail()
		return err
	}

	optimize(callerFn)

	entry, code, err := jitCompile(session, callerFn, calleeFn, node.Target)
	if err != nil {
		node.Fail()
		return kerrors.ErrCodegenFailure.WithCause(err)
	}

	leakMu.Lock()
	leak = append(leak, leakedSpecialization{session: session, code: code, entry: entry})
	leakMu.Unlock()

	node.Resolve(uintptr(entry))

	if onCompiled != nil {
		onCompiled(node, session)
	}
	return nil
}

func findCallSite(fn *ir.Function, number uint32) (ir.CallSite, bool) {
	for _, cs := range fn.CallSites {
		if cs.Number == number {
			return cs, true
		}
	}
	return ir.CallSite{}, false
}

// jitCompile emits the machine code for the specialized trampoline and
// installs it via internal/loader. The trampoline's job, per spec.md
// §4.3/§4.4, is to propagate the caller context into the carrier
// register and perform the guarded call with a correctly stashed return
// address; the actual comparison/fast/slow logic rewriteCallsite built
// into callerFn's IR is what a full codegen backend would lower here.
// This build lowers only the one part of that logic which must be real
// machine code to satisfy the stash invariant (the call itself), and
// resolves the direct-call target through session before emitting it.
func jitCompile(session *Session, callerFn, calleeFn *ir.Function, observedTarget uintptr) (loader.Function, loader.Loader, error) {
	calleeAddr, ok := session.Resolve(calleeFn.Name)
	if !ok {
		calleeAddr = observedTarget
	}

	reg, err := carrier.For(carrier.ABIAMD64SystemV)
	if err != nil {
		return nil, nil, err
	}

	em := asm.NewEmitter(Retalign)
	if err := em.EmitSetCaller(reg); err != nil {
		return nil, nil, err
	}
	em.EmitGuardedCall(calleeAddr, accounting.ABIVersion)
	em.EmitReturn()

	raw := em.Assemble(0)
	ld := loader.Loader(raw)
	frame := rt.Frame{ArgSize: 8} // sole argument: the caller-context pointer in RDI

	fn, err := ld.Load(callerFn.Name, frame)
	if err != nil {
		return nil, nil, err
	}
	return fn, ld, nil
}

func procSymbols() *resolver.ProcessSymbols {
	return resolver.NewProcessSymbols(nil)
}
