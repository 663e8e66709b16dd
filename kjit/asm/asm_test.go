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

import (
	"bytes"
	"testing"
)

// TestGoldenEncodings pins hand-verified byte sequences for one instruction
// of each encoding family: plain REX, REX with extended registers, 2-byte
// VEX, 3-byte VEX, and EVEX.
func TestGoldenEncodings(t *testing.T) {
	cases := []struct {
		name string
		emit func(a *Assembler)
		want []byte
	}{
		{
			"mov_rsi_rdi",
			func(a *Assembler) { a.MovRR(RSI, RDI) },
			[]byte{0x48, 0x89, 0xFE},
		},
		{
			"mov_rax_imm1",
			func(a *Assembler) { a.MovRI(RAX, 1) },
			[]byte{0x48, 0xC7, 0xC0, 0x01, 0x00, 0x00, 0x00},
		},
		{
			"add_r8_imm8",
			func(a *Assembler) { a.AddRI(R8, 8) },
			[]byte{0x49, 0x81, 0xC0, 0x08, 0x00, 0x00, 0x00},
		},
		{
			"ret",
			func(a *Assembler) { a.Ret() },
			[]byte{0xC3},
		},
		{
			"vxorps_ymm0",
			func(a *Assembler) { a.Vxorps(Ymm(0), Ymm(0), Ymm(0)) },
			[]byte{0xC5, 0xFC, 0x57, 0xC0},
		},
		{
			"vxorps_zmm2",
			func(a *Assembler) { a.Vxorps(Zmm(2), Zmm(2), Zmm(2)) },
			[]byte{0x62, 0xF1, 0x6C, 0x48, 0x57, 0xD2},
		},
		{
			"vfmadd231ps_ymm0_ymm1_ymm2",
			func(a *Assembler) { a.Vfmadd231ps(Ymm(0), Ymm(1), Ymm(2)) },
			[]byte{0xC4, 0xE2, 0x75, 0xB8, 0xC2},
		},
		{
			"kmovw_k1_r13d",
			func(a *Assembler) { a.KmovwKR(K1, R13) },
			[]byte{0xC4, 0xC1, 0x78, 0x92, 0xCD},
		},
		{
			"vmovups_ymm1_mem",
			func(a *Assembler) { a.VmovupsLoad(Ymm(1), Ptr(RAX, 16)) },
			[]byte{0xC5, 0xFC, 0x10, 0x8C, 0x20, 0x10, 0x00, 0x00, 0x00},
		},
		{
			"prefetcht0_mem",
			func(a *Assembler) { a.Prefetcht0(Ptr(RAX, 0)) },
			[]byte{0x0F, 0x18, 0x8C, 0x20, 0x00, 0x00, 0x00, 0x00},
		},
		{
			"vzeroupper",
			func(a *Assembler) { a.Vzeroupper() },
			[]byte{0xC5, 0xF8, 0x77},
		},
		{
			"vpsrlw_ymm1_ymm2_15",
			func(a *Assembler) { a.VpsrlwI(Ymm(1), Ymm(2), 15) },
			[]byte{0xC5, 0xF5, 0x71, 0xD2, 0x0F},
		},
		{
			"vpsrlw_zmm29_zmm29_15",
			func(a *Assembler) { a.VpsrlwI(Zmm(29), Zmm(29), 15) },
			[]byte{0x62, 0x91, 0x15, 0x40, 0x71, 0xD5, 0x0F},
		},
		{
			"vpternlogd_zmm29_all_ones",
			func(a *Assembler) { a.Vpternlogd(Zmm(29), Zmm(29), Zmm(29), 0xFF) },
			[]byte{0x62, 0x03, 0x15, 0x40, 0x25, 0xED, 0xFF},
		},
		{
			"vpcmpeqw_ymm15",
			func(a *Assembler) { a.Vpcmpeqw(Ymm(15), Ymm(15), Ymm(15)) },
			[]byte{0xC4, 0x41, 0x05, 0x75, 0xFF},
		},
		{
			"vpmaddubsw_ymm14_ymm12_ymm13",
			func(a *Assembler) { a.Vpmaddubsw(Ymm(14), Ymm(12), Ymm(13)) },
			[]byte{0xC4, 0x42, 0x1D, 0x04, 0xF5},
		},
		{
			"vpmaddubsw_zmm28_zmm31_zmm30",
			func(a *Assembler) { a.Vpmaddubsw(Zmm(28), Zmm(31), Zmm(30)) },
			[]byte{0x62, 0x02, 0x05, 0x40, 0x04, 0xE6},
		},
		{
			"vpmaddwd_ymm14_ymm15_ymm14",
			func(a *Assembler) { a.Vpmaddwd(Ymm(14), Ymm(15), Ymm(14)) },
			[]byte{0xC4, 0x41, 0x05, 0xF5, 0xF6},
		},
		{
			"vpmaddwd_zmm28_zmm29_zmm28",
			func(a *Assembler) { a.Vpmaddwd(Zmm(28), Zmm(29), Zmm(28)) },
			[]byte{0x62, 0x01, 0x15, 0x40, 0xF5, 0xE4},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := New()
			tc.emit(a)
			got, err := a.Code()
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("got % X, want % X", got, tc.want)
			}
		})
	}
}

// TestLabelFixups checks forward and backward rel32 resolution.
func TestLabelFixups(t *testing.T) {
	a := New()
	top := a.NewLabel()
	a.Bind(top)
	a.DecR(RDI) // 3 bytes
	a.Jcc(JL, top)
	fwd := a.NewLabel()
	a.Jmp(fwd)
	a.Bind(fwd)
	a.Ret()

	code, err := a.Code()
	if err != nil {
		t.Fatal(err)
	}
	// jl rel32 at offset 3: target 0, next instruction at 9 -> -9.
	want := []byte{
		0x48, 0xFF, 0xCF,
		0x0F, 0x8C, 0xF7, 0xFF, 0xFF, 0xFF,
		0xE9, 0x00, 0x00, 0x00, 0x00,
		0xC3,
	}
	if !bytes.Equal(code, want) {
		t.Errorf("got % X, want % X", code, want)
	}
}

// TestUnboundLabel checks Code fails rather than emitting a wild branch.
func TestUnboundLabel(t *testing.T) {
	a := New()
	l := a.NewLabel()
	a.Jmp(l)
	if _, err := a.Code(); err == nil {
		t.Error("want error for unbound label")
	}
}

// TestMemOperandIndex checks base+index*scale+disp SIB encoding.
func TestMemOperandIndex(t *testing.T) {
	a := New()
	// lea rax, [rcx + r13*1 + 0x40]
	a.Lea(RAX, PtrIdx(RCX, R13, 1, 0x40))
	code, err := a.Code()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x4A, 0x8D, 0x84, 0x29, 0x40, 0x00, 0x00, 0x00}
	if !bytes.Equal(code, want) {
		t.Errorf("got % X, want % X", code, want)
	}
}

// TestOperandPanics checks programmer errors fail loudly at emit time.
func TestOperandPanics(t *testing.T) {
	check := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s: expected panic", name)
			}
		}()
		fn()
	}
	check("rsp index", func() { PtrIdx(RAX, RSP, 1, 0) })
	check("bad scale", func() { PtrIdx(RAX, RCX, 3, 0) })
	check("vec reg out of range", func() { Zmm(32) })
	check("kmovw into k0", func() { New().KmovwKR(K0, RAX) })
}
