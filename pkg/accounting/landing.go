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

// LandingSite is the per-decorated-function entry-point accounting
// record. One is statically initialized for every decorated function and
// lives for the process lifetime.
type LandingSite struct {
	// TotalCalled counts every entry to this function, regardless of
	// whether a caller treenode is available. Advisory only: relaxed
	// atomic adds may be lost under contention, which is acceptable
	// because nothing downstream keys a decision off its exact value.
	TotalCalled atomic.Int64

	// GlobalName is the name of the global variable through which this
	// landing site's address is referenced (the function-pointer-typed
	// global the decorator emits for the function).
	GlobalName string
	// FunctionName is the unique function name to look up in Self's
	// parsed module when specializing a call into this landing site.
	FunctionName string
	// Self links back to the ReflectRecord for the module containing
	// this function's definition.
	Self *ReflectRecord
}

// Observe implements the "landed" half of the landing-latch described in
// spec.md §4.2: the first time a given caller treenode is observed to
// reach this landing site, the treenode's landing pointer is latched to
// this site and the inspector (normally the JIT specializer) is notified
// exactly once. Every other invocation (caller without a treenode yet, a
// caller whose landing was already latched by a previous visit, or a
// caller whose ABI version differs from ABIVersion) is a no-op past the
// counter bump.
func (site *LandingSite) Observe(caller *Treenode) {
	site.TotalCalled.Add(1)

	if caller == nil {
		return
	}
	if caller.ABIVersion != ABIVersion {
		return
	}

	if !caller.landing.CompareAndSwap(nil, site) {
		if existing := caller.landing.Load(); existing != site {
			klog.Errorf("drti: treenode landing mismatch: latched to %s, observed landing at %s",
				existing.FunctionName, site.FunctionName)
		}
		return
	}

	caller.transition(StateObserved, StateLatched)
	notifyInspector(caller)
}
