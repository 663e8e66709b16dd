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

// Prefix groups for VEX/EVEX encoding.
const (
	ppNone byte = 0
	pp66   byte = 1
	ppF3   byte = 2

	mm0F   byte = 1
	mm0F38 byte = 2
	mm0F3A byte = 3
)

// vexL returns the VEX.L bit for a register width.
func vexL(v VecReg) byte {
	if v.bytes == 32 {
		return 1
	}
	return 0
}

// evexLL returns the EVEX.L'L field for a register width.
func evexLL(v VecReg) byte {
	switch v.bytes {
	case 16:
		return 0
	case 32:
		return 1
	default:
		return 2
	}
}

// needsEvex reports whether any operand forces the EVEX encoding.
func needsEvex(regs ...VecReg) bool {
	for _, r := range regs {
		if r.bytes == 64 || r.idx >= 16 {
			return true
		}
	}
	return false
}

// emitVexReg encodes a VEX instruction with a register rm operand.
func (a *Assembler) emitVexReg(pp, mm, w, l byte, op byte, reg, vvvv, rm byte) {
	r := reg >> 3
	b := rm >> 3
	if b == 0 && w == 0 && mm == mm0F {
		a.byte(0xC5)
		a.byte((^r&1)<<7 | (^vvvv&0xF)<<3 | l<<2 | pp)
	} else {
		a.byte(0xC4)
		a.byte((^r&1)<<7 | 1<<6 | (^b&1)<<5 | mm)
		a.byte(w<<7 | (^vvvv&0xF)<<3 | l<<2 | pp)
	}
	a.byte(op)
	a.modRM(reg, rm)
}

// emitVexMem encodes a VEX instruction with a memory rm operand.
func (a *Assembler) emitVexMem(pp, mm, w, l byte, op byte, reg, vvvv byte, m Mem) {
	r := reg >> 3
	x := m.xBit()
	b := m.bBit()
	if b == 0 && x == 0 && w == 0 && mm == mm0F {
		a.byte(0xC5)
		a.byte((^r&1)<<7 | (^vvvv&0xF)<<3 | l<<2 | pp)
	} else {
		a.byte(0xC4)
		a.byte((^r&1)<<7 | (^x&1)<<6 | (^b&1)<<5 | mm)
		a.byte(w<<7 | (^vvvv&0xF)<<3 | l<<2 | pp)
	}
	a.byte(op)
	a.memOperand(reg, m)
}

// emitEvexReg encodes an EVEX instruction with a register rm operand.
func (a *Assembler) emitEvexReg(pp, mm, w, ll byte, op byte, reg, vvvv, rm byte, mask KReg) {
	a.byte(0x62)
	a.byte((^reg>>3&1)<<7 | (^rm>>4&1)<<6 | (^rm>>3&1)<<5 | (^reg>>4&1)<<4 | mm)
	a.byte(w<<7 | (^vvvv&0xF)<<3 | 0x04 | pp)
	a.byte(ll<<5 | (^vvvv>>4&1)<<3 | byte(mask))
	a.byte(op)
	a.modRM(reg, rm)
}

// emitEvexMem encodes an EVEX instruction with a memory rm operand.
// Displacements are always emitted as disp32, which EVEX leaves uncompressed.
func (a *Assembler) emitEvexMem(pp, mm, w, ll byte, op byte, reg, vvvv byte, m Mem, mask KReg) {
	a.byte(0x62)
	a.byte((^reg>>3&1)<<7 | (^m.xBit()&1)<<6 | (^m.bBit()&1)<<5 | (^reg>>4&1)<<4 | mm)
	a.byte(w<<7 | (^vvvv&0xF)<<3 | 0x04 | pp)
	a.byte(ll<<5 | (^vvvv>>4&1)<<3 | byte(mask))
	a.byte(op)
	a.memOperand(reg, m)
}

// rvm encodes a three-register-operand instruction, picking VEX or EVEX.
func (a *Assembler) rvm(pp, mm byte, op byte, dst, s1, s2 VecReg) {
	if needsEvex(dst, s1, s2) {
		a.emitEvexReg(pp, mm, 0, evexLL(dst), op, dst.idx, s1.idx, s2.idx, K0)
	} else {
		a.emitVexReg(pp, mm, 0, vexL(dst), op, dst.idx, s1.idx, s2.idx)
	}
}

// rvmMem encodes a reg, reg, mem instruction, picking VEX or EVEX.
func (a *Assembler) rvmMem(pp, mm byte, op byte, dst, s1 VecReg, m Mem) {
	if needsEvex(dst, s1) {
		a.emitEvexMem(pp, mm, 0, evexLL(dst), op, dst.idx, s1.idx, m, K0)
	} else {
		a.emitVexMem(pp, mm, 0, vexL(dst), op, dst.idx, s1.idx, m)
	}
}

// Vxorps emits vxorps dst, s1, s2.
func (a *Assembler) Vxorps(dst, s1, s2 VecReg) {
	a.rvm(ppNone, mm0F, 0x57, dst, s1, s2)
}

// VmovupsLoad emits vmovups dst, [m].
func (a *Assembler) VmovupsLoad(dst VecReg, m Mem) {
	if needsEvex(dst) {
		a.emitEvexMem(ppNone, mm0F, 0, evexLL(dst), 0x10, dst.idx, 0, m, K0)
	} else {
		a.emitVexMem(ppNone, mm0F, 0, vexL(dst), 0x10, dst.idx, 0, m)
	}
}

// VmovupsStore emits vmovups [m], src.
func (a *Assembler) VmovupsStore(m Mem, src VecReg) {
	if needsEvex(src) {
		a.emitEvexMem(ppNone, mm0F, 0, evexLL(src), 0x11, src.idx, 0, m, K0)
	} else {
		a.emitVexMem(ppNone, mm0F, 0, vexL(src), 0x11, src.idx, 0, m)
	}
}

// VmovupsStoreK emits vmovups [m]{k}, src.
func (a *Assembler) VmovupsStoreK(m Mem, src VecReg, k KReg) {
	a.emitEvexMem(ppNone, mm0F, 0, evexLL(src), 0x11, src.idx, 0, m, k)
}

// Vaddps emits vaddps dst, s1, s2.
func (a *Assembler) Vaddps(dst, s1, s2 VecReg) {
	a.rvm(ppNone, mm0F, 0x58, dst, s1, s2)
}

// VaddpsK emits vaddps dst{k}, s1, s2.
func (a *Assembler) VaddpsK(dst, s1, s2 VecReg, k KReg) {
	a.emitEvexReg(ppNone, mm0F, 0, evexLL(dst), 0x58, dst.idx, s1.idx, s2.idx, k)
}

// VaddpsMem emits vaddps dst, s1, [m].
func (a *Assembler) VaddpsMem(dst, s1 VecReg, m Mem) {
	a.rvmMem(ppNone, mm0F, 0x58, dst, s1, m)
}

// VaddpsMemK emits vaddps dst{k}, s1, [m].
func (a *Assembler) VaddpsMemK(dst, s1 VecReg, m Mem, k KReg) {
	a.emitEvexMem(ppNone, mm0F, 0, evexLL(dst), 0x58, dst.idx, s1.idx, m, k)
}

// Vmulps emits vmulps dst, s1, s2.
func (a *Assembler) Vmulps(dst, s1, s2 VecReg) {
	a.rvm(ppNone, mm0F, 0x59, dst, s1, s2)
}

// Vdivps emits vdivps dst, s1, s2.
func (a *Assembler) Vdivps(dst, s1, s2 VecReg) {
	a.rvm(ppNone, mm0F, 0x5E, dst, s1, s2)
}

// Vdivss emits vdivss dst, s1, s2 (xmm scalar form).
func (a *Assembler) Vdivss(dst, s1, s2 VecReg) {
	a.rvm(ppF3, mm0F, 0x5E, dst, s1, s2)
}

// Vcvtsi2ss emits vcvtsi2ss dst, s1, src32.
func (a *Assembler) Vcvtsi2ss(dst, s1 VecReg, src GPReg) {
	a.emitVexReg(ppF3, mm0F, 0, 0, 0x2A, dst.idx, s1.idx, byte(src))
}

// Vcvtsi2ssMem emits vcvtsi2ss dst, s1, dword [m].
func (a *Assembler) Vcvtsi2ssMem(dst, s1 VecReg, m Mem) {
	a.emitVexMem(ppF3, mm0F, 0, 0, 0x2A, dst.idx, s1.idx, m)
}

// Vfmadd231ps emits vfmadd231ps dst, s2, s3: dst += s2 * s3.
func (a *Assembler) Vfmadd231ps(dst, s2, s3 VecReg) {
	a.rvm(pp66, mm0F38, 0xB8, dst, s2, s3)
}

// Vfmadd231psK emits vfmadd231ps dst{k}, s2, s3.
func (a *Assembler) Vfmadd231psK(dst, s2, s3 VecReg, k KReg) {
	a.emitEvexReg(pp66, mm0F38, 0, evexLL(dst), 0xB8, dst.idx, s2.idx, s3.idx, k)
}

// Vfmadd231psMem emits vfmadd231ps dst, s2, [m].
func (a *Assembler) Vfmadd231psMem(dst, s2 VecReg, m Mem) {
	a.rvmMem(pp66, mm0F38, 0xB8, dst, s2, m)
}

// Vfmadd231psMemK emits vfmadd231ps dst{k}, s2, [m].
func (a *Assembler) Vfmadd231psMemK(dst, s2 VecReg, m Mem, k KReg) {
	a.emitEvexMem(pp66, mm0F38, 0, evexLL(dst), 0xB8, dst.idx, s2.idx, m, k)
}

// VbroadcastssMem emits vbroadcastss dst, dword [m].
func (a *Assembler) VbroadcastssMem(dst VecReg, m Mem) {
	if needsEvex(dst) {
		a.emitEvexMem(pp66, mm0F38, 0, evexLL(dst), 0x18, dst.idx, 0, m, K0)
	} else {
		a.emitVexMem(pp66, mm0F38, 0, vexL(dst), 0x18, dst.idx, 0, m)
	}
}

// Vpbroadcastd emits vpbroadcastd dst, src (src is an xmm register).
func (a *Assembler) Vpbroadcastd(dst, src VecReg) {
	if needsEvex(dst, src) {
		a.emitEvexReg(pp66, mm0F38, 0, evexLL(dst), 0x58, dst.idx, 0, src.idx, K0)
	} else {
		a.emitVexReg(pp66, mm0F38, 0, vexL(dst), 0x58, dst.idx, 0, src.idx)
	}
}

// VpbroadcastdMem emits vpbroadcastd dst, dword [m].
func (a *Assembler) VpbroadcastdMem(dst VecReg, m Mem) {
	if needsEvex(dst) {
		a.emitEvexMem(pp66, mm0F38, 0, evexLL(dst), 0x58, dst.idx, 0, m, K0)
	} else {
		a.emitVexMem(pp66, mm0F38, 0, vexL(dst), 0x58, dst.idx, 0, m)
	}
}

// VpmovzxbdMem emits vpmovzxbd dst, [m].
func (a *Assembler) VpmovzxbdMem(dst VecReg, m Mem) {
	if needsEvex(dst) {
		a.emitEvexMem(pp66, mm0F38, 0, evexLL(dst), 0x31, dst.idx, 0, m, K0)
	} else {
		a.emitVexMem(pp66, mm0F38, 0, vexL(dst), 0x31, dst.idx, 0, m)
	}
}

// VpmovzxbdMemK emits vpmovzxbd dst{k}, [m].
func (a *Assembler) VpmovzxbdMemK(dst VecReg, m Mem, k KReg) {
	a.emitEvexMem(pp66, mm0F38, 0, evexLL(dst), 0x31, dst.idx, 0, m, k)
}

// Vcvtdq2ps emits vcvtdq2ps dst, src.
func (a *Assembler) Vcvtdq2ps(dst, src VecReg) {
	if needsEvex(dst, src) {
		a.emitEvexReg(ppNone, mm0F, 0, evexLL(dst), 0x5B, dst.idx, 0, src.idx, K0)
	} else {
		a.emitVexReg(ppNone, mm0F, 0, vexL(dst), 0x5B, dst.idx, 0, src.idx)
	}
}

// Vcvtdq2psK emits vcvtdq2ps dst{k}, src.
func (a *Assembler) Vcvtdq2psK(dst, src VecReg, k KReg) {
	a.emitEvexReg(ppNone, mm0F, 0, evexLL(dst), 0x5B, dst.idx, 0, src.idx, k)
}

// VmaskmovpsLoad emits vmaskmovps dst, mask, [m] (AVX2 conditional load).
func (a *Assembler) VmaskmovpsLoad(dst, mask VecReg, m Mem) {
	a.emitVexMem(pp66, mm0F38, 0, vexL(dst), 0x2C, dst.idx, mask.idx, m)
}

// VmaskmovpsStore emits vmaskmovps [m], mask, src (AVX2 conditional store).
func (a *Assembler) VmaskmovpsStore(m Mem, mask, src VecReg) {
	a.emitVexMem(pp66, mm0F38, 0, vexL(src), 0x2E, src.idx, mask.idx, m)
}

// Vpmaddubsw emits vpmaddubsw dst, s1, s2: pairwise u8*s8 products summed
// into saturating 16-bit lanes.
func (a *Assembler) Vpmaddubsw(dst, s1, s2 VecReg) {
	a.rvm(pp66, mm0F38, 0x04, dst, s1, s2)
}

// Vpmaddwd emits vpmaddwd dst, s1, s2: pairwise 16-bit products summed into
// 32-bit lanes.
func (a *Assembler) Vpmaddwd(dst, s1, s2 VecReg) {
	a.rvm(pp66, mm0F, 0xF5, dst, s1, s2)
}

// Vpaddd emits vpaddd dst, s1, s2.
func (a *Assembler) Vpaddd(dst, s1, s2 VecReg) {
	a.rvm(pp66, mm0F, 0xFE, dst, s1, s2)
}

// VpadddMem emits vpaddd dst, s1, [m].
func (a *Assembler) VpadddMem(dst, s1 VecReg, m Mem) {
	a.rvmMem(pp66, mm0F, 0xFE, dst, s1, m)
}

// Vpcmpeqw emits vpcmpeqw dst, s1, s2 (VEX only; used to build all-ones).
func (a *Assembler) Vpcmpeqw(dst, s1, s2 VecReg) {
	a.emitVexReg(pp66, mm0F, 0, vexL(dst), 0x75, dst.idx, s1.idx, s2.idx)
}

// VpsrlwI emits vpsrlw dst, src, imm8.
func (a *Assembler) VpsrlwI(dst, src VecReg, imm byte) {
	// Shift-by-immediate encodes the destination in vvvv and the opcode
	// extension /2 in the reg field.
	if needsEvex(dst, src) {
		a.emitEvexReg(pp66, mm0F, 0, evexLL(dst), 0x71, 2, dst.idx, src.idx, K0)
	} else {
		a.emitVexReg(pp66, mm0F, 0, vexL(dst), 0x71, 2, dst.idx, src.idx)
	}
	a.byte(imm)
}

// Vpternlogd emits vpternlogd dst, s1, s2, imm8 (EVEX only).
func (a *Assembler) Vpternlogd(dst, s1, s2 VecReg, imm byte) {
	a.emitEvexReg(pp66, mm0F3A, 0, evexLL(dst), 0x25, dst.idx, s1.idx, s2.idx, K0)
	a.byte(imm)
}
