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

// Package rt holds the small amount of Go-runtime-layout knowledge
// internal/loader needs to register JIT-emitted machine code as a real
// Go module: the slice header trick used to alias a byte slice onto
// mmap'd memory, and the stack-map bitmap format the runtime's GC and
// stack-copying machinery read out of funcdata.
package rt

import "unsafe"

// GoSlice is the runtime layout of a slice header, used to alias an
// arbitrary memory range as a []byte without a copy.
type GoSlice struct {
	Ptr unsafe.Pointer
	Len int
	Cap int
}

// BytesFrom builds a []byte that aliases the n (cap c) bytes at p,
// without copying. Used to view mmap'd JIT memory as a byte slice so it
// can be written with copy().
func BytesFrom(p unsafe.Pointer, n int, c int) (r []byte) {
	(*GoSlice)(unsafe.Pointer(&r)).Ptr = p
	(*GoSlice)(unsafe.Pointer(&r)).Len = n
	(*GoSlice)(unsafe.Pointer(&r)).Cap = c
	return
}

// StackMap is the runtime's bitmap format for describing which words of
// an argument or local area hold pointers: n is the bit count, bytedata
// the packed bits, one per word, least significant bit first.
type StackMap struct {
	N        int32
	BitData  []byte
}

// Pin returns the address of the bitmap's data for use in a _Func
// record. It does not copy: the address points at m.BitData[0], or, for
// a nil or empty map, at a package-level empty StackMap.
// Every JIT function generated by this build treats its entire argument
// and local area as pointer-free, which holds for every specialization
// this module emits (trampolines that only ever carry integer/pointer
// arguments already accounted for by the caller's own stack map), so the
// bitmap is always empty; the type still exists so internal/loader does
// not need to special-case "no pointers".
func (m *StackMap) Pin() uintptr {
	if m == nil || len(m.BitData) == 0 {
		return uintptr(unsafe.Pointer(&emptyStackMap))
	}
	return uintptr(unsafe.Pointer(&m.BitData[0]))
}

var emptyStackMap StackMap

// StackMapBuilder accumulates pointer/non-pointer words in order and
// produces a StackMap. Unused by the conservative all-empty maps this
// build emits today, but kept as the extension point internal/asm would
// use if a future specialization needed to describe a mixed stack
// frame.
type StackMapBuilder struct {
	bits []bool
}

func (b *StackMapBuilder) AddField(isPointer bool) {
	b.bits = append(b.bits, isPointer)
}

func (b *StackMapBuilder) Build() *StackMap {
	data := make([]byte, (len(b.bits)+7)/8)
	for i, p := range b.bits {
		if p {
			data[i/8] |= 1 << uint(i%8)
		}
	}
	return &StackMap{N: int32(len(b.bits)), BitData: data}
}

// Frame describes the calling convention of one JIT-emitted function,
// as internal/loader needs to know it to build a synthetic _Func: the
// size of its argument area and the pointer bitmaps for its arguments
// and locals.
type Frame struct {
	ArgSize   int
	ArgPtrs   *StackMap
	LocalPtrs *StackMap
}
