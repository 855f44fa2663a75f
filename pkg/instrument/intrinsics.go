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

// Package instrument is the stable contract decorated code is built
// against: the two call-ins (CallFrom, Landed) that spec.md §4.2 names
// "call_from" and "landed". A decorator that emits calls to these two
// functions around every indirect call site and every decorated function
// entry, in the order and with the arguments documented here, needs
// nothing else from this module to participate in the accounting graph.
//
// Where the original intrinsics relied on a hidden carrier register to
// smuggle the caller's Treenode across an ordinary function call without
// widening its signature, decorated Go code instead passes the caller
// explicitly: Go's calling convention has no free general-purpose
// register to hijack without also changing the compiler that emits the
// call, and decorated code in this implementation is ordinary Go source,
// not compiler output. The one place this module does reach for the
// original's register-smuggling technique is internal/carrier, used
// exclusively by internal/specializer's own code generator, where the
// emitted machine code is free to make whatever ABI promises it wants to
// itself.
package instrument

import (
	"unsafe"

	"github.com/cloudwego/drti/pkg/accounting"
)

// CallFrom implements "call_from": the decorator-inserted call made
// immediately before dispatching an indirect call. site is the
// statically initialized StaticCallsite for this call instruction;
// caller is the Treenode the enclosing function itself landed at, or nil
// if the enclosing function is not itself decorated or has not yet
// landed; target is the address about to be called.
//
// The returned Treenode is the caller context to pass into the call
// about to be made: the callee's own CallFrom/Landed calls expect it as
// their caller argument. ActiveTarget() on the returned node may differ
// from target if the specializer has already installed a
// specialization; callers that want to honor it should branch there
// instead of invoking the original target directly.
func CallFrom(site *accounting.StaticCallsite, caller *accounting.Treenode, target unsafe.Pointer) *accounting.Treenode {
	site.TotalCalls.Add(1)
	node := site.LookupOrInsert(caller, uintptr(target))
	node.ChainCalls.Add(1)
	return node
}

// Landed implements "landed": the decorator-inserted call made on entry
// to a decorated function, before any other instrumented code in its
// body runs. site is the function's statically initialized LandingSite;
// caller is the Treenode returned by the CallFrom that led here (nil if
// entered by a non-instrumented path, e.g. directly from process
// startup or from code outside this build's decoration).
func Landed(site *accounting.LandingSite, caller *accounting.Treenode) {
	site.Observe(caller)
}
