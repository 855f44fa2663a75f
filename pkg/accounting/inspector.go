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

import "sync/atomic"

// Inspector receives a callback for every Treenode that reaches
// StateLatched, i.e. every chain that has become eligible for
// specialization. Exactly one Inspector is active at a time (see
// SetInspector); callers that need to fan a latch out to more than one
// observer compose them into a single Inspector before installing it;
// the root package does this at startup for the specializer and
// pkg/introspect.
//
// Inspect runs synchronously on the goroutine executing the "landed"
// intrinsic, inline in decorated code, so whatever it does delays that
// goroutine. The root package's Inspector runs the specializer inline
// when one worker is configured and hands it to internal/pool
// otherwise.
type Inspector interface {
	Inspect(node *Treenode)
}

var currentInspector atomic.Pointer[Inspector]

// SetInspector installs the process-wide Inspector. Only one may be
// active; installing a new one replaces the previous. Passing nil
// disables notification, which is the state before any specializer is
// wired up: every latch is then a no-op past the counters.
func SetInspector(i Inspector) {
	if i == nil {
		currentInspector.Store(nil)
		return
	}
	currentInspector.Store(&i)
}

// notifyInspector invokes the installed Inspector, if any, for node.
func notifyInspector(node *Treenode) {
	p := currentInspector.Load()
	if p == nil {
		return
	}
	(*p).Inspect(node)
}
