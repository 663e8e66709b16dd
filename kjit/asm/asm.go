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

// Package asm is a small amd64 instruction encoder covering the GP, VEX and
// EVEX instructions the kernel generators emit. It is not a general-purpose
// assembler: unsupported operand combinations panic, because an encoding
// mistake is a programming error in a generator, never a data condition.
package asm

import "fmt"

// Label identifies a branch target within one Assembler.
type Label int

const unbound = -1

type fixup struct {
	pos   int // offset of the rel32 field
	label Label
}

// Assembler accumulates encoded instructions and resolves label fixups.
// All branches use rel32 displacements so binding order never matters.
type Assembler struct {
	buf    []byte
	labels []int
	fixups []fixup
}

// New returns an empty Assembler.
func New() *Assembler {
	return &Assembler{buf: make([]byte, 0, 512)}
}

// NewLabel allocates an unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, unbound)
	return Label(len(a.labels) - 1)
}

// Bind attaches l to the current position. A label can be bound once.
func (a *Assembler) Bind(l Label) {
	if a.labels[l] != unbound {
		panic(fmt.Sprintf("asm: label %d bound twice", l))
	}
	a.labels[l] = len(a.buf)
}

// Len returns the number of bytes emitted so far.
func (a *Assembler) Len() int { return len(a.buf) }

// Code resolves all fixups and returns the finished instruction stream.
// It fails if any referenced label was never bound.
func (a *Assembler) Code() ([]byte, error) {
	for _, f := range a.fixups {
		target := a.labels[f.label]
		if target == unbound {
			return nil, fmt.Errorf("asm: unbound label %d", f.label)
		}
		rel := int32(target - (f.pos + 4))
		a.buf[f.pos] = byte(rel)
		a.buf[f.pos+1] = byte(rel >> 8)
		a.buf[f.pos+2] = byte(rel >> 16)
		a.buf[f.pos+3] = byte(rel >> 24)
	}
	return a.buf, nil
}

func (a *Assembler) byte(b byte)     { a.buf = append(a.buf, b) }
func (a *Assembler) bytes(b ...byte) { a.buf = append(a.buf, b...) }

func (a *Assembler) u32(v uint32) {
	a.bytes(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (a *Assembler) u64(v uint64) {
	a.u32(uint32(v))
	a.u32(uint32(v >> 32))
}

func (a *Assembler) rel32(l Label) {
	a.fixups = append(a.fixups, fixup{pos: len(a.buf), label: l})
	a.u32(0)
}

// modRM emits a register-direct ModRM byte.
func (a *Assembler) modRM(reg, rm byte) {
	a.byte(0xC0 | (reg&7)<<3 | rm&7)
}

// memOperand emits the ModRM/SIB/disp32 bytes for m with the given reg
// field. The SIB + disp32 form is used unconditionally.
func (a *Assembler) memOperand(reg byte, m Mem) {
	a.byte(0x80 | (reg&7)<<3 | 0x04) // mod=10, rm=100 (SIB follows)
	var ss, idx byte
	if m.Scale == 0 {
		idx = 0x04 // no index
	} else {
		idx = byte(m.Index) & 7
		switch m.Scale {
		case 1:
			ss = 0
		case 2:
			ss = 1
		case 4:
			ss = 2
		case 8:
			ss = 3
		}
	}
	a.byte(ss<<6 | idx<<3 | byte(m.Base)&7)
	a.u32(uint32(m.Disp))
}

func (m Mem) xBit() byte {
	if m.Scale == 0 {
		return 0
	}
	return byte(m.Index) >> 3
}

func (m Mem) bBit() byte {
	return byte(m.Base) >> 3
}
