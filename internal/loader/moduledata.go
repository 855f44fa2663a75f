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

import (
	"sync"
	"unsafe"

	"github.com/cloudwego/drti/internal/rt"
)

// This file mirrors the go1.21/1.22 runtime's moduledata and _func
// layouts closely enough to synthesize a one-function module at run
// time, so the stack scanner, GC, and traceback machinery treat
// JIT-installed specializations exactly like any other compiled
// function. Only the single Go minor-version range this build targets
// is supported; a toolchain outside it needs its own copy of this file
// with the matching struct layout, the same way upstream vendors one
// file per version bracket.

const _ModuleMagic = 0xfffffff1

type _FuncTab struct {
	entry   uint32
	funcoff uint32
}

type _PCHeader struct {
	magic          uint32
	pad1, pad2     uint8
	minLC          uint8
	ptrSize        uint8
	nfunc          int
	nfiles         uint
	textStart      uintptr
	funcnameOffset uintptr
	cuOffset       uintptr
	filetabOffset  uintptr
	pctabOffset    uintptr
	pclnOffset     uintptr
}

type _BitVector struct {
	n        int32
	bytedata *uint8
}

type _FindFuncBucket struct {
	idx        uint32
	subbuckets [16]byte
}

type _Func struct {
	entryOff    uint32
	nameoff     int32
	args        int32
	deferreturn uint32
	pcsp        uint32
	pcfile      uint32
	pcln        uint32
	npcdata     uint32
	cuOffset    uint32
	startLine   int32
	funcID      uint8
	flag        uint8
	_           [1]byte
	nfuncdata   uint8
	pcdata      [2]uint32
	argptrs     uint32
	localptrs   uint32
}

type _ModuleData struct {
	pcHeader              *_PCHeader
	funcnametab           []byte
	cutab                 []uint32
	filetab               []byte
	pctab                 []byte
	pclntable             []byte
	ftab                  []_FuncTab
	findfunctab           uintptr
	minpc, maxpc          uintptr
	text, etext           uintptr
	noptrdata, enoptrdata uintptr
	data, edata           uintptr
	bss, ebss             uintptr
	noptrbss, enoptrbss   uintptr
	covctrs, ecovctrs     uintptr
	end, gcdata, gcbss    uintptr
	types, etypes         uintptr
	rodata                uintptr
	gofunc                uintptr
	textsectmap           [][3]uintptr
	typelinks             []int32
	itablinks             []unsafe.Pointer
	ptab                  [][2]int32
	pluginpath            string
	pkghashes             []struct{}
	inittasks             []unsafe.Pointer
	modulename            string
	modulehashes          []struct{}
	hasmain               uint8
	gcdatamask, gcbssmask _BitVector
	typemap               map[int32]unsafe.Pointer
	bad                   bool
	next                  *_ModuleData
}

//go:linkname lastmoduledatap runtime.lastmoduledatap
var lastmoduledatap *_ModuleData

//go:linkname moduledataverify1 runtime.moduledataverify1
func moduledataverify1(_ *_ModuleData)

var (
	modLock sync.Mutex
	modList []*_ModuleData

	emptyByte byte
)

func toZigzag(v int) int {
	return (v << 1) ^ (v >> 31)
}

func encodeFirst(v int) []byte {
	return encodeValue(v + 1)
}

func encodeValue(v int) []byte {
	return encodeVariant(toZigzag(v))
}

func encodeVariant(v int) []byte {
	var u int
	var r []byte

	for v > 127 {
		u = v & 0x7f
		v = v >> 7
		r = append(r, byte(u)|0x80)
	}
	if v == 0 {
		return r
	}
	return append(r, byte(v))
}

func registerModule(mod *_ModuleData) {
	modLock.Lock()
	defer modLock.Unlock()
	modList = append(modList, mod)
	lastmoduledatap.next = mod
	lastmoduledatap = mod
}

const (
	_PCDATA_UnsafePoint       = 0
	_PCDATA_StackMapIndex     = 1
	_PCDATA_UnsafePointUnsafe = -2

	minfunc      = 16
	pcbucketsize = 256 * minfunc
)

// registerFunction installs a single-function module spanning
// [pc, pc+size) under the given name, describing its calling frame with
// frame. Called once per JIT-compiled specialization, immediately after
// it is written into executable memory.
func registerFunction(name string, pc uintptr, size uintptr, frame rt.Frame) {
	minpc := pc
	maxpc := pc + size

	pctab := []byte{0}
	ffunc := make([]_FindFuncBucket, size/pcbucketsize+1)
	ftabEntry := &ffunc[0]

	fn := _Func{
		entryOff:  0,
		nameoff:   1,
		args:      int32(frame.ArgSize),
		npcdata:   2,
		nfuncdata: 2,
		argptrs:   0,
		localptrs: 0,
	}

	argptrs := frame.ArgPtrs.Pin()
	localptrs := frame.LocalPtrs.Pin()
	base := argptrs
	if localptrs < base {
		base = localptrs
	}
	fn.argptrs = uint32(argptrs - base)
	fn.localptrs = uint32(localptrs - base)

	fn.pcsp = uint32(len(pctab))
	pctab = append(pctab, encodeFirst(0)...)
	pctab = append(pctab, encodeVariant(int(size))...)
	pctab = append(pctab, 0)

	fn.pcln = uint32(len(pctab))
	fn.pcfile = uint32(len(pctab))
	pctab = append(pctab, encodeFirst(1)...)
	pctab = append(pctab, encodeVariant(int(size))...)
	pctab = append(pctab, 0)

	fn.pcdata[_PCDATA_StackMapIndex] = uint32(len(pctab))
	pctab = append(pctab, encodeFirst(0)...)
	pctab = append(pctab, encodeVariant(int(size))...)
	pctab = append(pctab, 0)

	fn.pcdata[_PCDATA_UnsafePoint] = uint32(len(pctab))
	pctab = append(pctab, encodeFirst(_PCDATA_UnsafePointUnsafe)...)
	pctab = append(pctab, encodeVariant(int(size))...)
	pctab = append(pctab, 0)

	hdr := &_PCHeader{
		magic:     _ModuleMagic,
		minLC:     1,
		nfunc:     1,
		ptrSize:   4 << (^uintptr(0) >> 63),
		textStart: minpc,
	}

	tab := []_FuncTab{
		{entry: 0},
		{entry: uint32(size)},
	}

	mod := &_ModuleData{
		pcHeader:    hdr,
		funcnametab: append(append([]byte{0}, name...), 0),
		cutab:       []uint32{0, 0, 1},
		filetab:     []byte("\x00(drti-jit)\x00"),
		pctab:       pctab,
		pclntable:   (*[unsafe.Sizeof(_Func{})]byte)(unsafe.Pointer(&fn))[:],
		ftab:        tab,
		findfunctab: uintptr(unsafe.Pointer(ftabEntry)),
		minpc:       minpc,
		maxpc:       maxpc,
		text:        minpc,
		etext:       maxpc,
		modulename:  name,
		gcdata:      uintptr(unsafe.Pointer(&emptyByte)),
		gcbss:       uintptr(unsafe.Pointer(&emptyByte)),
		gofunc:      base,
	}

	moduledataverify1(mod)
	registerModule(mod)
}
