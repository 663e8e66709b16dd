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

//go:build amd64

package kjit

import "golang.org/x/sys/cpu"

func init() {
	// Check if JIT is disabled via environment variable
	if NoJITEnv() {
		currentTier = TierNone
		return
	}

	detectCPUFeatures()
}

func detectCPUFeatures() {
	// The AVX-512 kernels use zmm vxorps (DQ), byte/word multiply-adds (BW)
	// and opmask loads/stores (F). VL/DQ are also required so the scalar
	// xmm ops mixed into the stream behave uniformly on every target.
	switch {
	case cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW &&
		cpu.X86.HasAVX512DQ && cpu.X86.HasAVX512VL:
		currentTier = TierAVX512
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		currentTier = TierAVX2
	default:
		currentTier = TierNone
	}
}
