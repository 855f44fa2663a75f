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
	"sync"
	"sync/atomic"
)

// StaticCallsite is the per-indirect-call-instruction accounting record.
// One is statically initialized for every indirect call site in a
// decorated function body.
type StaticCallsite struct {
	// TotalCalls counts every call through this site, regardless of
	// caller chain or target. Advisory, same caveats as
	// LandingSite.TotalCalled.
	TotalCalls atomic.Int64

	// Landing is the entry point of the function containing this call
	// site.
	Landing *LandingSite
	// CallNumber is the ordinal of the call instruction within the
	// containing function, counting from zero in the order the
	// decorator enumerated call instructions. The specializer uses it
	// to find the same call instruction again when re-parsing the
	// function's IR.
	CallNumber uint32

	mu    sync.Mutex
	nodes []*Treenode
}

// Nodes returns a snapshot of the treenodes currently recorded for this
// call site. Safe to call concurrently with LookupOrInsert; the returned
// slice is never itself mutated after being handed out.
func (s *StaticCallsite) Nodes() []*Treenode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Treenode, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// LookupOrInsert implements the "call_from" scan-or-create half of
// spec.md §4.2: for each (parent, target) pair within a single call site
// there is at most one Treenode (invariant ii), so this first scans the
// existing nodes (bounded by polymorphic fan-out, expected to stay small)
// before appending a fresh one. caller may be nil, which creates a tree
// root.
func (s *StaticCallsite) LookupOrInsert(caller *Treenode, target uintptr) *Treenode {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.nodes {
		if n.Parent == caller && n.Target == target {
			return n
		}
	}

	node := &Treenode{
		ABIVersion: ABIVersion,
		Location:   s,
		Parent:     caller,
		Target:     target,
	}
	node.activeTarget.Store(target)
	node.state.Store(int32(StateObserved))

	s.nodes = append(s.nodes, node)
	return node
}
