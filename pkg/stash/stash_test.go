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

package stash

import (
	"encoding/binary"
	"testing"

	"github.com/cloudwego/drti/internal/carrier"
)

// fakeMemory backs ValidateReturnAddress's mem callback with a flat,
// zero-based buffer addressed directly by uintptr.
type fakeMemory []byte

func (m fakeMemory) read(addr uintptr, n int) ([]byte, error) {
	if int(addr)+n > len(m) {
		return nil, errShortRead
	}
	return m[addr : int(addr)+n], nil
}

var errShortRead = &shortReadError{}

type shortReadError struct{}

func (*shortReadError) Error() string { return "short read" }

func buildDecoratedCode(retalign int, abiVersion int32) []byte {
	code := make([]byte, retalign)
	binary.LittleEndian.PutUint64(code[:8], carrier.StashWord(abiVersion))
	for i := 8; i < retalign-2; i++ {
		code[i] = 0x90
	}
	// CALL RAX, two bytes, ending exactly at retalign.
	code[retalign-2] = 0xff
	code[retalign-1] = 0xd0
	return code
}

func TestValidateReturnAddressSucceeds(t *testing.T) {
	const retalign = 32
	mem := fakeMemory(buildDecoratedCode(retalign, 3))
	returnAddress := uintptr(retalign)

	id, err := ValidateReturnAddress(returnAddress, retalign, mem.read)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ABIVersion != 3 {
		t.Fatalf("ABIVersion = %d, want 3", id.ABIVersion)
	}
	if id.StashAddress != 0 {
		t.Fatalf("StashAddress = %#x, want 0", id.StashAddress)
	}
}

func TestValidateReturnAddressRejectsBadRetalign(t *testing.T) {
	mem := fakeMemory(buildDecoratedCode(32, 1))
	if _, err := ValidateReturnAddress(32, 17, mem.read); err == nil {
		t.Fatal("expected an error for a non-power-of-two retalign")
	}
}

func TestValidateReturnAddressRejectsGarbage(t *testing.T) {
	mem := fakeMemory(make([]byte, 64))
	if _, err := ValidateReturnAddress(32, 32, mem.read); err == nil {
		t.Fatal("expected an error when no magic word is present")
	}
}

func TestScanCallSitesFindsGuardedCall(t *testing.T) {
	const retalign = 32
	code := buildDecoratedCode(retalign, 2)

	sites, err := ScanCallSites(code, retalign)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected exactly one candidate site, got %d: %+v", len(sites), sites)
	}
	if sites[0].ReturnOffset != retalign {
		t.Fatalf("ReturnOffset = %d, want %d", sites[0].ReturnOffset, retalign)
	}
}

func TestScanCallSitesIgnoresUnguardedCalls(t *testing.T) {
	// A bare "CALL RAX" with no preceding stash word at a retalign
	// boundary must not be reported as a candidate.
	code := make([]byte, 32)
	code[30] = 0xff
	code[31] = 0xd0

	sites, err := ScanCallSites(code, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sites) != 0 {
		t.Fatalf("expected no candidates, got %+v", sites)
	}
}

func TestScanCallSitesRejectsBadRetalign(t *testing.T) {
	if _, err := ScanCallSites(nil, 3); err == nil {
		t.Fatal("expected an error for a non-power-of-two retalign")
	}
}
