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

// Package loader turns a buffer of machine code produced by
// internal/asm into a callable Go function value: it mmaps RWX (well,
// RW then mprotect'd to RX) memory, copies the code in, and registers a
// synthetic one-function module so the runtime's stack scanner and
// traceback machinery know how to walk frames that call into it.
package loader

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/cloudwego/drti/internal/rt"
)

const (
	_AP = syscall.MAP_ANON | syscall.MAP_PRIVATE
	_RX = syscall.PROT_READ | syscall.PROT_EXEC
	_RW = syscall.PROT_READ | syscall.PROT_WRITE
)

// Loader is a buffer of finished machine code, ready to be installed.
type Loader []byte

// Function is the address of an installed, callable function.
type Function unsafe.Pointer

var loadSeq atomic.Uint64

func mkptr(m uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&m))
}

func alignUp(n uintptr, a int) uintptr {
	return (n + uintptr(a) - 1) &^ (uintptr(a) - 1)
}

// Load installs self as a new function named fn, described by frame,
// and returns its callable address. fn is decorated with a sequence
// number and the load address to keep synthetic module names unique
// across repeated specializations of the same original function.
func (self Loader) Load(fn string, frame rt.Frame) (f Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("drti: loader: %v", r)
		}
	}()

	nf := uintptr(len(self))
	nb := alignUp(nf, os.Getpagesize())

	mm, _, errno := syscall.Syscall6(syscall.SYS_MMAP, 0, nb, _RW, uintptr(_AP), 0, 0)
	if errno != 0 {
		return nil, fmt.Errorf("drti: mmap: %w", errno)
	}

	copy(rt.BytesFrom(mkptr(mm), len(self), int(nb)), self)
	seq := loadSeq.Add(1)
	registerFunction(fmt.Sprintf("(drti-jit).%s#%d@%x", fn, seq, mm), mm, nf, frame)

	if _, _, errno = syscall.Syscall(syscall.SYS_MPROTECT, mm, nb, _RX); errno != 0 {
		return nil, fmt.Errorf("drti: mprotect: %w", errno)
	}
	return Function(mkptr(mm)), nil
}
