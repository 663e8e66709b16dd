// Copyright 2025 go-kerneljit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides a diagnostic tool to print the CPU features the
// kernel generators dispatch on.
package main

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/ajroetker/go-kerneljit/kjit"
)

func main() {
	fmt.Printf("GOOS: %s\n", runtime.GOOS)
	fmt.Printf("GOARCH: %s\n", runtime.GOARCH)
	fmt.Printf("NumCPU: %d\n", runtime.NumCPU())
	fmt.Println()

	tier := kjit.CurrentTier()
	fmt.Printf("kjit tier: %s\n", tier)
	if tier != kjit.TierNone {
		fmt.Printf("kjit vector width: %d bytes (%d float32 lanes)\n", tier.VectorBytes(), tier.Lanes())
		fmt.Printf("kjit vector registers: %d\n", tier.NumVecRegs())
	}
	fmt.Printf("kjit exec memory: %v\n", kjit.ExecSupported())
	fmt.Printf("KJIT_NO_JIT: %v\n", kjit.NoJITEnv())
	fmt.Println()

	if runtime.GOARCH == "amd64" {
		printAMD64Features()
	}
}

func printAMD64Features() {
	fmt.Println("=== golang.org/x/sys/cpu.X86 ===")
	fmt.Printf("  HasAVX:      %v\n", cpu.X86.HasAVX)
	fmt.Printf("  HasAVX2:     %v\n", cpu.X86.HasAVX2)
	fmt.Printf("  HasFMA:      %v\n", cpu.X86.HasFMA)
	fmt.Printf("  HasAVX512F:  %v\n", cpu.X86.HasAVX512F)
	fmt.Printf("  HasAVX512BW: %v\n", cpu.X86.HasAVX512BW)
	fmt.Printf("  HasAVX512DQ: %v\n", cpu.X86.HasAVX512DQ)
	fmt.Printf("  HasAVX512VL: %v\n", cpu.X86.HasAVX512VL)
}
