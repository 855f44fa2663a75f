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

// Command drti-stash-scan validates a decorated call site's stash word
// given only a target process and a return address, operationalizing
// spec.md §6's "tooling can scan for this magic to recover call-site
// identity" as a runnable tool rather than a capability claim.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/drti/internal/carrier"
	"github.com/cloudwego/drti/pkg/klog"
	"github.com/cloudwego/drti/pkg/stash"
)

func main() {
	var (
		pid      int
		addr     string
		retalign int
	)
	flag.IntVar(&pid, "pid", 0, "target process ID")
	flag.StringVar(&addr, "addr", "", "return address into decorated code, hex (e.g. 0x4512a0)")
	flag.IntVar(&retalign, "retalign", carrier.DefaultRetalign, "stash alignment the target binary was built with")
	flag.Parse()

	if pid == 0 || addr == "" {
		fmt.Fprintln(os.Stderr, "usage: drti-stash-scan -pid <pid> -addr <hex return address> [-retalign N]")
		os.Exit(2)
	}

	returnAddress, err := strconv.ParseUint(trimHexPrefix(addr), 16, 64)
	if err != nil {
		klog.Fatalf("drti-stash-scan: invalid -addr %q: %v", addr, err)
	}

	mem, err := openProcMem(pid)
	if err != nil {
		klog.Fatalf("drti-stash-scan: %v", err)
	}
	defer mem.Close()

	identity, err := stash.ValidateReturnAddress(uintptr(returnAddress), retalign, mem.ReadAt)
	if err != nil {
		fmt.Printf("no valid stash at %#x: %v\n", returnAddress, err)
		os.Exit(1)
	}

	fmt.Printf("valid stash: abi-version=%d stash-address=%#x\n", identity.ABIVersion, identity.StashAddress)
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
