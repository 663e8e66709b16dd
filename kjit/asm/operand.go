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

package asm

import "fmt"

// GPReg is a 64-bit general-purpose register. The constant values match the
// hardware register numbers used in ModRM/SIB encoding.
type GPReg uint8

const (
	RAX GPReg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

func (r GPReg) String() string {
	names := [...]string{
		"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}
	if int(r) < len(names) {
		return names[r]
	}
	return fmt.Sprintf("gp%d", uint8(r))
}

// VecReg is a SIMD register of a specific width. The width selects the
// encoding: 16/32-byte registers below index 16 use VEX, 64-byte registers
// and indices 16-31 require EVEX.
type VecReg struct {
	idx   uint8
	bytes uint8
}

// Xmm returns the 128-bit register xmm(i).
func Xmm(i int) VecReg { return vecReg(i, 16) }

// Ymm returns the 256-bit register ymm(i).
func Ymm(i int) VecReg { return vecReg(i, 32) }

// Zmm returns the 512-bit register zmm(i).
func Zmm(i int) VecReg { return vecReg(i, 64) }

func vecReg(i, bytes int) VecReg {
	if i < 0 || i > 31 {
		panic(fmt.Sprintf("asm: vector register index %d out of range", i))
	}
	return VecReg{idx: uint8(i), bytes: uint8(bytes)}
}

// Index returns the hardware register number.
func (v VecReg) Index() int { return int(v.idx) }

// Bytes returns the register width in bytes (16, 32 or 64).
func (v VecReg) Bytes() int { return int(v.bytes) }

func (v VecReg) String() string {
	switch v.bytes {
	case 16:
		return fmt.Sprintf("xmm%d", v.idx)
	case 32:
		return fmt.Sprintf("ymm%d", v.idx)
	default:
		return fmt.Sprintf("zmm%d", v.idx)
	}
}

// KReg is an AVX-512 opmask register. K0 means "no masking" when passed as
// the mask operand of an EVEX instruction.
type KReg uint8

const (
	K0 KReg = iota
	K1
	K2
	K3
	K4
	K5
	K6
	K7
)

// Mem is a base+index*scale+disp memory operand. Scale 0 means no index
// register. The encoder always emits the SIB + disp32 form; generated
// kernels are tiny compared to the tables they walk, so the fixed-size
// encoding is not worth optimizing.
type Mem struct {
	Base  GPReg
	Index GPReg
	Scale uint8
	Disp  int32
}

// Ptr returns a [base+disp] operand.
func Ptr(base GPReg, disp int32) Mem {
	return Mem{Base: base, Disp: disp}
}

// PtrIdx returns a [base+index*scale+disp] operand. The index register
// cannot be RSP.
func PtrIdx(base, index GPReg, scale uint8, disp int32) Mem {
	if index == RSP {
		panic("asm: rsp cannot be an index register")
	}
	switch scale {
	case 1, 2, 4, 8:
	default:
		panic(fmt.Sprintf("asm: invalid scale %d", scale))
	}
	return Mem{Base: base, Index: index, Scale: scale, Disp: disp}
}
