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

package kjit

import (
	"os"

	"github.com/ajroetker/go-kerneljit/kjit/asm"
)

// Tier is an instruction-set extension level the generators can target.
// TierNone means no supported vector extension was detected and callers
// must take their portable reference path.
type Tier int

const (
	TierNone Tier = iota
	TierAVX2
	TierAVX512
)

func (t Tier) String() string {
	switch t {
	case TierAVX2:
		return "avx2"
	case TierAVX512:
		return "avx512"
	default:
		return "none"
	}
}

// Lanes returns the number of 32-bit lanes per vector register.
func (t Tier) Lanes() int {
	if t == TierAVX512 {
		return 16
	}
	return 8
}

// VectorBytes returns the vector register width in bytes.
func (t Tier) VectorBytes() int {
	if t == TierAVX512 {
		return 64
	}
	return 32
}

// NumVecRegs returns the size of the vector register file.
func (t Tier) NumVecRegs() int {
	if t == TierAVX512 {
		return 32
	}
	return 16
}

// VecReg returns register i at the tier's native width.
func (t Tier) VecReg(i int) asm.VecReg {
	if t == TierAVX512 {
		return asm.Zmm(i)
	}
	return asm.Ymm(i)
}

var currentTier Tier

// CurrentTier returns the instruction-set tier detected at startup.
func CurrentTier() Tier { return currentTier }

// NoJITEnv reports whether the KJIT_NO_JIT environment variable disables
// code generation, forcing the reference paths everywhere.
func NoJITEnv() bool {
	v := os.Getenv("KJIT_NO_JIT")
	return v != "" && v != "0"
}
