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
	"fmt"
	"os"
)

// procMem reads another process' address space through /proc/<pid>/mem,
// the only portal Linux offers a tool with ptrace-less read access
// (given CAP_SYS_PTRACE or the same uid) to a live process' memory.
type procMem struct {
	f *os.File
}

func openProcMem(pid int) (*procMem, error) {
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open /proc/%d/mem: %w", pid, err)
	}
	return &procMem{f: f}, nil
}

func (p *procMem) ReadAt(addr uintptr, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := p.f.ReadAt(buf, int64(addr)); err != nil {
		return nil, fmt.Errorf("read %d bytes at %#x: %w", n, addr, err)
	}
	return buf, nil
}

func (p *procMem) Close() error {
	return p.f.Close()
}
