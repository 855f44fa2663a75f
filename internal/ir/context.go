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

import "sync"

// ContextLock is the process-wide IR context lock: the specializer is
// not reentrant, and holds this for the duration of one specialization
// (parse through install). It is a package-level value rather than a
// type because there is exactly one IR context in this process, the
// same way the original runtime keeps exactly one LLVMContext.
var ContextLock sync.Mutex

// LinkNeeded links src into dst with "link only needed" semantics:
// every src function or global whose name is the callee of a direct call
// in dst, and which dst does not already define, is copied in; anything
// else in src is left behind (other references to globals do not count
// as uses). It mutates dst in place and returns it.
//
// Collisions are resolved in dst's favor: if dst already defines a name
// src also defines, dst's definition wins (this is what lets the caller
// module "win" over a callee body that would otherwise shadow it).
func LinkNeeded(dst, src *Module) (*Module, error) {
	defined := make(map[string]bool, len(dst.Functions)+len(dst.Globals))
	for _, f := range dst.Functions {
		if !f.IsDeclared {
			defined[f.Name] = true
		}
	}
	for _, g := range dst.Globals {
		if g.Linkage != LinkageExternal {
			defined[g.Name] = true
		}
	}

	needed := needCalleeSymbols(dst)

	for _, f := range src.Functions {
		if !needed[f.Name] || defined[f.Name] {
			continue
		}
		dst.Functions = append(dst.Functions, f)
		defined[f.Name] = true
	}
	for _, g := range src.Globals {
		if !needed[g.Name] || defined[g.Name] {
			continue
		}
		dst.Globals = append(dst.Globals, g)
		defined[g.Name] = true
	}

	return dst, nil
}

// needCalleeSymbols collects every callee name referenced by a direct
// call anywhere in dst, the "needed" set LinkNeeded pulls definitions
// in for. Indirect calls (empty Callee) contribute nothing; they are
// resolved at run time, not link time.
func needCalleeSymbols(dst *Module) map[string]bool {
	needed := make(map[string]bool)
	for _, fn := range dst.Functions {
		for _, blk := range fn.Blocks {
			for _, in := range blk.Instrs {
				if in.Op == OpCall && in.Callee != "" {
					needed[in.Callee] = true
				}
			}
		}
	}
	return needed
}
