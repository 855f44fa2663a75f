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

package main

import (
	"os"
	"testing"
	"unsafe"
)

// knownBytes is read back through /proc/self/mem to exercise procMem
// against this process' own live address space, the same access pattern
// drti-stash-scan uses against its target.
var knownBytes = [8]byte{0x11, 0xd5, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}

func TestOpenProcMemReadsSelf(t *testing.T) {
	p, err := openProcMem(os.Getpid())
	if err != nil {
		t.Fatalf("openProcMem(self): %v", err)
	}
	defer p.Close()

	addr := uintptr(unsafe.Pointer(&knownBytes[0]))
	got, err := p.ReadAt(addr, len(knownBytes))
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != string(knownBytes[:]) {
		t.Fatalf("ReadAt = %x, want %x", got, knownBytes)
	}
}

func TestOpenProcMemNonexistentPID(t *testing.T) {
	if _, err := openProcMem(-1); err == nil {
		t.Fatal("expected an error opening /proc/-1/mem")
	}
}

func TestProcMemClose(t *testing.T) {
	p, err := openProcMem(os.Getpid())
	if err != nil {
		t.Fatalf("openProcMem(self): %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
