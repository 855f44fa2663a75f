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

// Package accounting implements the call-chain accounting graph: the
// read-only ReflectRecord each decorated translation unit exports, and the
// per-function, per-callsite, and per-call-chain records instrumentation
// maintains at run time. The graph is process-global, append-only, and
// never freed: entities are referenced by stable pointer for the lifetime
// of the process, so raw back-references between them (StaticCallsite ->
// Treenode -> StaticCallsite via Location, Treenode -> Treenode via
// Parent) are always safe to dereference.
package accounting

// ABIVersion is the accounting-graph ABI version compiled into this build
// of the runtime. Every Treenode records the ABI version its caller was
// compiled against; a mismatch means the decorated binary and this runtime
// disagree about record layout, and the treenode is ignored rather than
// trusted.
const ABIVersion int32 = 1

// ReflectRecord is the runtime's view of one decorated translation unit's
// module: its serialized IR ("bitcode") and the table of addresses for
// every global and external function declaration the module references,
// in the enumeration order documented by the decoration contract (the
// order internal/resolver.Build walks a module in). The decorator emits one of these per translation
// unit as a statically initialized, read-only value; it is never mutated
// after the containing module's package init runs.
type ReflectRecord struct {
	// Module holds the module's serialized (and, in this implementation,
	// zstd-compressed) IR, the Go-native stand-in for embedded bitcode.
	Module []byte
	// Globals holds the runtime address of every non-trivial global
	// variable and non-intrinsic external function declaration the
	// module refers to, in the decorator's enumeration order.
	Globals []uintptr
}
