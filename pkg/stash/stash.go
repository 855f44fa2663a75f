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

// Package stash implements the two recovery procedures spec.md §6
// documents for the decorated-binary stash format: backward validation
// from a bare return address (an exception unwinder or sampling
// profiler's only clue), and a forward disassembly scan of a decorated
// function's code for candidate call sites, grounded on
// golang.org/x/arch/x86/x86asm, the same disassembler frugal's own
// internal/atm/rtx package uses to walk machine code it did not
// generate itself.
package stash

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/cloudwego/drti/internal/carrier"
)

// Identity is what a stash word, once validated, tells a caller about
// the call site that produced it.
type Identity struct {
	ABIVersion int32
	// StashAddress is the address the magic word itself was read from,
	// i.e. AlignedReturnAddress(returnAddress, retalign) - retalign.
	StashAddress uintptr
}

// ValidateReturnAddress implements spec.md §6's backward recovery: given
// only a return address into decorated code and a reader for the
// process' memory, it recovers the stashed call-site identity. mem must
// return at least 8 bytes starting at the requested address.
func ValidateReturnAddress(returnAddress uintptr, retalign int, mem func(addr uintptr, n int) ([]byte, error)) (Identity, error) {
	if retalign <= 0 || retalign&(retalign-1) != 0 {
		return Identity{}, fmt.Errorf("drti: stash: retalign %d is not a power of two", retalign)
	}

	aligned := carrier.AlignedReturnAddress(returnAddress, retalign)
	stashAddr := aligned - uintptr(carrier.StashOffset(retalign))

	buf, err := mem(stashAddr, 8)
	if err != nil {
		return Identity{}, fmt.Errorf("drti: stash: read stash word at %#x: %w", stashAddr, err)
	}

	word, ok := carrier.ReadStashWord(buf)
	if !ok {
		return Identity{}, fmt.Errorf("drti: stash: short read at %#x", stashAddr)
	}

	abiVersion, ok := carrier.SplitStashWord(word)
	if !ok {
		return Identity{}, fmt.Errorf("drti: stash: no magic word at %#x (got %#016x)", stashAddr, word)
	}

	return Identity{ABIVersion: abiVersion, StashAddress: stashAddr}, nil
}

// CallSite is one candidate guarded call the forward scanner found:
// the offset, within the scanned code, of the CALL instruction itself,
// and the offset its return address would land at.
type CallSite struct {
	CallOffset   int
	ReturnOffset int
}

// ScanCallSites disassembles code (x86-64, per x86asm.Decode's mode 64)
// looking for CALL instructions (direct or indirect) whose return address offset is
// a multiple of retalign and which is immediately preceded, at
// -retalign, by a valid magic word: candidates that are actually
// guarded calls this runtime's trampolines emitted, not just any call
// instruction that happens to land on a retalign boundary by chance.
func ScanCallSites(code []byte, retalign int) ([]CallSite, error) {
	if retalign <= 0 || retalign&(retalign-1) != 0 {
		return nil, fmt.Errorf("drti: stash: retalign %d is not a power of two", retalign)
	}

	var sites []CallSite
	for off := 0; off < len(code); {
		ins, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			// Not every byte range in a real function disassembles
			// cleanly from an arbitrary offset (data interleaved with
			// code, e.g. our own stash words); skip forward one byte
			// and keep scanning rather than aborting the whole scan.
			off++
			continue
		}

		next := off + ins.Len
		if ins.Op == x86asm.CALL && next%retalign == 0 && next >= retalign {
			stashOff := next - retalign
			if word, ok := carrier.ReadStashWord(code[stashOff:]); ok {
				if _, ok := carrier.SplitStashWord(word); ok {
					sites = append(sites, CallSite{CallOffset: off, ReturnOffset: next})
				}
			}
		}

		off = next
	}
	return sites, nil
}
