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

// Cond is a condition code for Jcc.
type Cond byte

const (
	JE  Cond = 0x4
	JNE Cond = 0x5
	JL  Cond = 0xC
	JGE Cond = 0xD
	JLE Cond = 0xE
	JG  Cond = 0xF
)

// rex emits a REX prefix when any of its fields is set, or when forced.
func (a *Assembler) rex(w bool, r, x, b byte, force bool) {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	v |= (r & 1) << 2
	v |= (x & 1) << 1
	v |= b & 1
	if v != 0x40 || force {
		a.byte(v)
	}
}

func (a *Assembler) rexRR(w bool, reg, rm GPReg) {
	a.rex(w, byte(reg)>>3, 0, byte(rm)>>3, false)
}

func (a *Assembler) rexRM(w bool, reg byte, m Mem) {
	a.rex(w, reg>>3, m.xBit(), m.bBit(), false)
}

// MovRR emits mov dst, src (64-bit).
func (a *Assembler) MovRR(dst, src GPReg) {
	a.rexRR(true, src, dst)
	a.byte(0x89)
	a.modRM(byte(src), byte(dst))
}

// MovRI emits mov dst, imm. Immediates outside the int32 range use the
// 10-byte movabs form.
func (a *Assembler) MovRI(dst GPReg, imm int64) {
	if imm == int64(int32(imm)) {
		a.rexRR(true, 0, dst)
		a.byte(0xC7)
		a.modRM(0, byte(dst))
		a.u32(uint32(imm))
		return
	}
	a.rexRR(true, 0, dst)
	a.byte(0xB8 | byte(dst)&7)
	a.u64(uint64(imm))
}

// MovRI32 emits mov dst32, imm32 (zero-extends into the full register).
func (a *Assembler) MovRI32(dst GPReg, imm int32) {
	a.rexRR(false, 0, dst)
	a.byte(0xC7)
	a.modRM(0, byte(dst))
	a.u32(uint32(imm))
}

// MovRM emits mov dst, qword [m].
func (a *Assembler) MovRM(dst GPReg, m Mem) {
	a.rexRM(true, byte(dst), m)
	a.byte(0x8B)
	a.memOperand(byte(dst), m)
}

// MovRM32 emits mov dst32, dword [m] (zero-extends).
func (a *Assembler) MovRM32(dst GPReg, m Mem) {
	a.rexRM(false, byte(dst), m)
	a.byte(0x8B)
	a.memOperand(byte(dst), m)
}

// MovsxdRM emits movsxd dst, dword [m] (sign-extends).
func (a *Assembler) MovsxdRM(dst GPReg, m Mem) {
	a.rexRM(true, byte(dst), m)
	a.byte(0x63)
	a.memOperand(byte(dst), m)
}

// MovMR emits mov qword [m], src.
func (a *Assembler) MovMR(m Mem, src GPReg) {
	a.rexRM(true, byte(src), m)
	a.byte(0x89)
	a.memOperand(byte(src), m)
}

// MovMI32 emits mov dword [m], imm32.
func (a *Assembler) MovMI32(m Mem, imm int32) {
	a.rexRM(false, 0, m)
	a.byte(0xC7)
	a.memOperand(0, m)
	a.u32(uint32(imm))
}

// AddRR emits add dst, src (64-bit).
func (a *Assembler) AddRR(dst, src GPReg) {
	a.rexRR(true, src, dst)
	a.byte(0x01)
	a.modRM(byte(src), byte(dst))
}

// AddRI emits add dst, imm32 (64-bit).
func (a *Assembler) AddRI(dst GPReg, imm int32) {
	a.rexRR(true, 0, dst)
	a.byte(0x81)
	a.modRM(0, byte(dst))
	a.u32(uint32(imm))
}

// SubRR emits sub dst, src (64-bit).
func (a *Assembler) SubRR(dst, src GPReg) {
	a.rexRR(true, src, dst)
	a.byte(0x29)
	a.modRM(byte(src), byte(dst))
}

// SubRI emits sub dst, imm32 (64-bit).
func (a *Assembler) SubRI(dst GPReg, imm int32) {
	a.rexRR(true, 0, dst)
	a.byte(0x81)
	a.modRM(5, byte(dst))
	a.u32(uint32(imm))
}

// ImulRRI emits imul dst, src, imm32 (64-bit three-operand form).
func (a *Assembler) ImulRRI(dst, src GPReg, imm int32) {
	a.rexRR(true, dst, src)
	a.byte(0x69)
	a.modRM(byte(dst), byte(src))
	a.u32(uint32(imm))
}

// ImulRI emits imul dst, imm32, i.e. dst *= imm.
func (a *Assembler) ImulRI(dst GPReg, imm int32) {
	a.ImulRRI(dst, dst, imm)
}

// CmpRR emits cmp x, y (64-bit).
func (a *Assembler) CmpRR(x, y GPReg) {
	a.rexRR(true, y, x)
	a.byte(0x39)
	a.modRM(byte(y), byte(x))
}

// CmpRI emits cmp x, imm32 (64-bit).
func (a *Assembler) CmpRI(x GPReg, imm int32) {
	a.rexRR(true, 0, x)
	a.byte(0x81)
	a.modRM(7, byte(x))
	a.u32(uint32(imm))
}

// CmpMI32 emits cmp dword [m], imm32.
func (a *Assembler) CmpMI32(m Mem, imm int32) {
	a.rexRM(false, 7, m)
	a.byte(0x81)
	a.memOperand(7, m)
	a.u32(uint32(imm))
}

// DecR emits dec dst (64-bit).
func (a *Assembler) DecR(dst GPReg) {
	a.rexRR(true, 0, dst)
	a.byte(0xFF)
	a.modRM(1, byte(dst))
}

// DecR32 emits dec dst32.
func (a *Assembler) DecR32(dst GPReg) {
	a.rexRR(false, 0, dst)
	a.byte(0xFF)
	a.modRM(1, byte(dst))
}

// IncR emits inc dst (64-bit).
func (a *Assembler) IncR(dst GPReg) {
	a.rexRR(true, 0, dst)
	a.byte(0xFF)
	a.modRM(0, byte(dst))
}

// Lea emits lea dst, [m].
func (a *Assembler) Lea(dst GPReg, m Mem) {
	a.rexRM(true, byte(dst), m)
	a.byte(0x8D)
	a.memOperand(byte(dst), m)
}

// Jcc emits a conditional branch to l (rel32 form).
func (a *Assembler) Jcc(c Cond, l Label) {
	a.bytes(0x0F, 0x80|byte(c))
	a.rel32(l)
}

// Jmp emits an unconditional branch to l (rel32 form).
func (a *Assembler) Jmp(l Label) {
	a.byte(0xE9)
	a.rel32(l)
}

// Ret emits a near return.
func (a *Assembler) Ret() { a.byte(0xC3) }

// Prefetcht0 emits prefetcht0 [m].
func (a *Assembler) Prefetcht0(m Mem) {
	a.rexRM(false, 1, m)
	a.bytes(0x0F, 0x18)
	a.memOperand(1, m)
}

// KmovwKR emits kmovw k, src32. Requires AVX-512F.
func (a *Assembler) KmovwKR(k KReg, src GPReg) {
	if k == K0 {
		panic("asm: kmovw into k0")
	}
	a.emitVexReg(ppNone, mm0F, 0, 0, 0x92, byte(k), 0, byte(src))
}

// Vzeroupper emits vzeroupper.
func (a *Assembler) Vzeroupper() {
	a.bytes(0xC5, 0xF8, 0x77)
}
