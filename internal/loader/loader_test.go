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

package loader

import (
	"testing"
	"unsafe"
)

func TestAlignUpAlreadyAligned(t *testing.T) {
	if got := alignUp(4096, 4096); got != 4096 {
		t.Fatalf("alignUp(4096, 4096) = %d, want 4096", got)
	}
}

func TestAlignUpRoundsToNextPage(t *testing.T) {
	if got := alignUp(1, 4096); got != 4096 {
		t.Fatalf("alignUp(1, 4096) = %d, want 4096", got)
	}
	if got := alignUp(4097, 4096); got != 8192 {
		t.Fatalf("alignUp(4097, 4096) = %d, want 8192", got)
	}
}

func TestAlignUpZero(t *testing.T) {
	if got := alignUp(0, 4096); got != 0 {
		t.Fatalf("alignUp(0, 4096) = %d, want 0", got)
	}
}

func TestMkptrRoundTrips(t *testing.T) {
	var x int
	want := uintptr(unsafe.Pointer(&x))
	if got := uintptr(mkptr(want)); got != want {
		t.Fatalf("mkptr round trip = %#x, want %#x", got, want)
	}
}
