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

//go:build go1.21 && !go1.23

package loader

import "testing"

// These exercise only the pcln-table byte encoders moduledata.go builds
// by hand; registerFunction itself hands its output straight to the
// real runtime's moduledataverify1 and is not something a unit test can
// safely drive without actually linking in a JIT-compiled function.

func TestToZigzagNonNegative(t *testing.T) {
	if got := toZigzag(0); got != 0 {
		t.Fatalf("toZigzag(0) = %d, want 0", got)
	}
	if got := toZigzag(1); got != 2 {
		t.Fatalf("toZigzag(1) = %d, want 2", got)
	}
}

func TestToZigzagNegative(t *testing.T) {
	if got := toZigzag(-1); got != 1 {
		t.Fatalf("toZigzag(-1) = %d, want 1", got)
	}
}

func TestEncodeVariantSmallValue(t *testing.T) {
	got := encodeVariant(5)
	want := []byte{5}
	if string(got) != string(want) {
		t.Fatalf("encodeVariant(5) = %v, want %v", got, want)
	}
}

func TestEncodeVariantZero(t *testing.T) {
	if got := encodeVariant(0); len(got) != 0 {
		t.Fatalf("encodeVariant(0) = %v, want empty", got)
	}
}

func TestEncodeVariantMultiByte(t *testing.T) {
	// 300 = 0b1_0010_1100 needs two continuation-style bytes.
	got := encodeVariant(300)
	want := []byte{0xac, 0x02}
	if string(got) != string(want) {
		t.Fatalf("encodeVariant(300) = %#v, want %#v", got, want)
	}
}

func TestEncodeFirstIsEncodeValuePlusOne(t *testing.T) {
	got := encodeFirst(4)
	want := encodeValue(5)
	if string(got) != string(want) {
		t.Fatalf("encodeFirst(4) = %v, want %v (encodeValue(5))", got, want)
	}
}
