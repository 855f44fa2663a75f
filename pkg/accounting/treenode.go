/*
 * Copyright 2021 CloudWeGo Authors
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

package accounting

import (
	"sync/atomic"

	"github.com/cloudwego/drti/pkg/klog"
)

// State is a Treenode's position in the observe/latch/resolve state
// machine described in spec.md §4.6. States only ever move forward;
// there is no transition back to an earlier state.
type State int32

const (
	// StateObserved is the state of a freshly created Treenode: a call
	// from Parent to Target has been seen at Location at least once, but
	// the call has not yet landed anywhere the runtime can identify.
	StateObserved State = iota
	// StateLatched means a LandingSite has observed this node as its
	// caller and latched itself into the node's landing pointer. The
	// node is now eligible for specialization.
	StateLatched
	// StateResolved means the specializer successfully compiled and
	// installed a specialized call for this node. ActiveTarget may have
	// changed as a result.
	StateResolved
	// StateFailed means the specializer attempted this node and gave up
	// permanently; it will not be retried.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateObserved:
		return "observed"
	case StateLatched:
		return "latched"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Treenode is one node of the call-chain accounting tree: the record of
// a single (parent chain, call site, target) combination observed at run
// time. Treenodes are created once by StaticCallsite.LookupOrInsert and
// never freed; every field but the atomics is immutable after
// construction.
type Treenode struct {
	// ChainCalls counts calls observed for exactly this (parent, target)
	// combination, as opposed to Location.TotalCalls which counts every
	// call through the site regardless of target.
	ChainCalls atomic.Int64

	// ABIVersion is the accounting-graph ABI version the decorated
	// caller was compiled against, captured at construction time.
	ABIVersion int32
	// Location is the call site this node belongs to.
	Location *StaticCallsite
	// Parent is the caller's own treenode, or nil if this node is a
	// chain root (the call was not itself made from instrumented code,
	// or no caller context was available).
	Parent *Treenode
	// Target is the callee address observed when this node was first
	// created. It never changes; ActiveTarget tracks what the call site
	// currently dispatches to.
	Target uintptr

	activeTarget atomic.Uintptr
	landing      atomic.Pointer[LandingSite]
	state        atomic.Int32
}

// State returns the node's current position in the state machine.
func (n *Treenode) State() State {
	return State(n.state.Load())
}

// ActiveTarget returns the address the call site currently dispatches
// to for this chain: Target until the specializer installs a
// specialization, the specialized entry point after.
func (n *Treenode) ActiveTarget() uintptr {
	return n.activeTarget.Load()
}

// Landing returns the LandingSite latched onto this node, or nil if the
// node has not yet reached StateLatched.
func (n *Treenode) Landing() *LandingSite {
	return n.landing.Load()
}

// transition moves the node from "from" to "to", logging and otherwise
// ignoring the attempt if the node is no longer in "from": a node that
// has already moved on (or been failed by a prior specialization attempt)
// is not an error, just a stale observation.
func (n *Treenode) transition(from, to State) bool {
	if n.state.CompareAndSwap(int32(from), int32(to)) {
		return true
	}
	klog.Tracef("drti: treenode transition %s->%s dropped, currently %s", from, to, n.State())
	return false
}

// Resolve moves the node to StateResolved and updates ActiveTarget to
// the specialized entry point the specializer installed. Called by
// internal/specializer after a successful JIT compile.
func (n *Treenode) Resolve(specializedTarget uintptr) {
	n.activeTarget.Store(specializedTarget)
	n.transition(StateLatched, StateResolved)
}

// Fail moves the node to StateFailed. ActiveTarget is left untouched, so
// the call site keeps dispatching to the original target.
func (n *Treenode) Fail() {
	n.transition(StateLatched, StateFailed)
}
