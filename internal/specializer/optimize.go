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

import "github.com/cloudwego/drti/internal/ir"

// optimize is the Go-native analog of spec.md §4.4 step 5's "aggressive
// inliner threshold 1000 then a function pass on the caller only": the
// callee is assumed already optimized (it came from its own ahead-of-time
// build), so the only work left is cheap and local to the caller: drop
// every block that is unreachable from the entry block. The guarded
// comparison is not folded and no inlining is done, so both the fast and
// the slow path of the rewritten call site stay in place.
func optimize(fn *ir.Function) {
	fn.Blocks = removeUnreachableBlocks(fn)
}

// removeUnreachableBlocks drops blocks with no incoming branch (other
// than the entry block), the Go-native equivalent of the function-level
// dead-block elimination pass spec.md describes running on the caller
// after rewriting.
func removeUnreachableBlocks(fn *ir.Function) []ir.Block {
	if len(fn.Blocks) == 0 {
		return fn.Blocks
	}

	reachable := map[string]bool{fn.Blocks[0].Name: true}
	changed := true
	for changed {
		changed = false
		for _, b := range fn.Blocks {
			if !reachable[b.Name] {
				continue
			}
			for _, in := range b.Instrs {
				for _, succ := range []string{in.Target, in.Else} {
					if succ != "" && !reachable[succ] {
						reachable[succ] = true
						changed = true
					}
				}
			}
		}
	}

	out := make([]ir.Block, 0, len(fn.Blocks))
	for _, b := range fn.Blocks {
		if reachable[b.Name] {
			out = append(out, b)
		}
	}
	return out
}
