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

package gemm

import (
	"fmt"

	"github.com/ajroetker/go-kerneljit/kjit"
	"github.com/ajroetker/go-kerneljit/kjit/asm"
)

// kernelKey is the micro-kernel specialization key.
type kernelKey struct {
	tier   kjit.Tier
	accum  bool
	mc     int
	nc     int
	kc     int
	nBlock int
	kBlock int
	mr     int
	nr     int
	nrMin  int
}

// Register assignment. The args block arrives in DI and is unpacked before
// the loops; DI then walks packed A.
const (
	regA       = asm.RDI
	regB       = asm.RSI
	regBPf     = asm.RDX
	regC       = asm.RCX
	regKSize   = asm.R8
	regLdc     = asm.R9 // premultiplied by 4 at entry
	regBSaved  = asm.R10
	regCOffset = asm.R11 // also scratch between tiles
	regBPfSave = asm.R12
	regIIdx    = asm.R13
	regJIdx    = asm.R14
	regKIdx    = asm.R15
)

// emitter carries the per-tier scratch register assignment through the three
// sub-stages. Accumulators are registers [0, rowRegs*colRegs); the scratch
// registers sit at the top of the file.
type emitter struct {
	a      *asm.Assembler
	tier   kjit.Tier
	aReg   asm.VecReg // A element broadcast
	bReg   asm.VecReg // B column tile
	oneReg asm.VecReg // 16-bit ones for the pairwise fold
	tmpReg asm.VecReg
}

func newEmitter(a *asm.Assembler, t kjit.Tier) *emitter {
	e := &emitter{a: a, tier: t}
	if t == kjit.TierAVX512 {
		e.aReg = asm.Zmm(31)
		e.bReg = asm.Zmm(30)
		e.oneReg = asm.Zmm(29)
		e.tmpReg = asm.Zmm(28)
	} else {
		e.aReg = asm.Ymm(12)
		e.bReg = asm.Ymm(13)
		e.tmpReg = asm.Ymm(14)
		e.oneReg = asm.Ymm(15)
	}
	return e
}

func (e *emitter) cReg(i int) asm.VecReg { return e.tier.VecReg(i) }

// initCRegs zeroes the rowRegs x colRegs accumulator grid.
func (e *emitter) initCRegs(rowRegs, colRegs int) {
	for i := 0; i < rowRegs; i++ {
		for j := 0; j < colRegs; j++ {
			c := e.cReg(i*colRegs + j)
			e.a.Vxorps(c, c, c)
		}
	}
}

// computeBlock emits one k-step: load each B column tile once, broadcast one
// interleaved A dword per row against it, and fold into the accumulators.
// The column-outer, row-inner order amortizes the B load across all rows.
func (e *emitter) computeBlock(rowRegs, colRegs, lda int) {
	vlenBytes := e.tier.VectorBytes()
	for j := 0; j < colRegs; j++ {
		e.a.VmovupsLoad(e.bReg, asm.Ptr(regB, int32(j*vlenBytes)))
		for i := 0; i < rowRegs; i++ {
			c := e.cReg(i*colRegs + j)
			e.a.VpbroadcastdMem(e.aReg, asm.Ptr(regA, int32(i*lda)))
			e.a.Vpmaddubsw(e.tmpReg, e.aReg, e.bReg)
			e.a.Vpmaddwd(e.tmpReg, e.oneReg, e.tmpReg)
			e.a.Vpaddd(c, e.tmpReg, c)
		}
		e.a.Prefetcht0(asm.Ptr(regBPf, int32(j*vlenBytes)))
	}
}

// storeCRegs writes the accumulator grid to C, accumulating into the
// existing values first when accum is set. The row stride (ldc, already in
// bytes) is a runtime value walked through regCOffset.
func (e *emitter) storeCRegs(rowRegs, colRegs int, accum bool) {
	laneBytes := e.tier.Lanes() * 4
	for i := 0; i < rowRegs; i++ {
		if i == 0 {
			e.a.MovRI(regCOffset, 0)
		} else {
			e.a.AddRR(regCOffset, regLdc)
		}
		for j := 0; j < colRegs; j++ {
			c := e.cReg(i*colRegs + j)
			dst := asm.PtrIdx(regC, regCOffset, 1, int32(j*laneBytes))
			if accum {
				e.a.VpadddMem(c, c, dst)
			}
			e.a.VmovupsStore(dst, c)
		}
	}
}

// GenerateCode lowers one micro-kernel specialization to machine code
// without registering or running it. Intended for inspection tooling;
// dispatch goes through Generator.Multiply. Blocking and tile shapes are
// validated the same way the Generator validates them.
func GenerateCode(tier kjit.Tier, p BlockingParams, accum bool, mc, nc, kc int) ([]byte, error) {
	p.validate(tier)
	if kc <= 0 || kc%p.RowInterleave != 0 || kc > p.KCB {
		return nil, fmt.Errorf("gemm: kc %d incompatible with KCB %d / row interleave %d", kc, p.KCB, p.RowInterleave)
	}
	if nc <= 0 || nc%p.NRMin != 0 || nc > p.NCB {
		return nil, fmt.Errorf("gemm: nc %d incompatible with NCB %d / NR_MIN %d", nc, p.NCB, p.NRMin)
	}
	if mc <= 0 || mc > p.MCB {
		return nil, fmt.Errorf("gemm: mc %d outside (0, %d]", mc, p.MCB)
	}
	return generate(kernelKey{
		tier:   tier,
		accum:  accum,
		mc:     mc,
		nc:     nc,
		kc:     kc,
		nBlock: p.NCB,
		kBlock: p.KCB,
		mr:     p.MR,
		nr:     p.NR,
		nrMin:  p.NRMin,
	})
}

// generate emits the micro-kernel for one specialization key. The generated
// function takes a *kernelArgs in DI; it has no failure mode at run time.
func generate(key kernelKey) ([]byte, error) {
	t := key.tier
	if t != kjit.TierAVX2 && t != kjit.TierAVX512 {
		return nil, fmt.Errorf("gemm: no generator for tier %s", t)
	}

	vlenBytes := t.VectorBytes()
	ri := 4
	maxNRegs := key.nr * ri / vlenBytes
	currColRegs := key.nc * ri / vlenBytes
	colRegs := min(currColRegs, maxNRegs)
	jLoopTrips := max(1, currColRegs/maxNRegs)
	mRegBlocks := key.mc / key.mr
	mRegBlocksRem := key.mc % key.mr

	a := asm.New()
	e := newEmitter(a, t)

	// Unpack the args block; DI last since it is the base.
	a.MovRM(regB, asm.Ptr(asm.RDI, 8))
	a.MovRM(regBPf, asm.Ptr(asm.RDI, 16))
	a.MovRM(regC, asm.Ptr(asm.RDI, 24))
	a.MovRM(regKSize, asm.Ptr(asm.RDI, 32))
	a.MovRM(regLdc, asm.Ptr(asm.RDI, 40))
	a.MovRM(regA, asm.Ptr(asm.RDI, 0))

	// Build the 16-bit all-ones register in code: flood with ones, then
	// shift each word right by 15.
	if t == kjit.TierAVX512 {
		a.Vpternlogd(e.oneReg, e.oneReg, e.oneReg, 0xFF)
	} else {
		a.Vpcmpeqw(e.oneReg, e.oneReg, e.oneReg)
	}
	a.VpsrlwI(e.oneReg, e.oneReg, 15)

	// ldc arrives in elements; all addressing below wants bytes.
	a.ImulRI(regLdc, 4)

	a.MovRR(regBSaved, regB)
	a.MovRR(regBPfSave, regBPf)

	bStep := int32(key.nBlock * ri)     // B advance per k-step
	jStep := int32(key.nr * ri)         // B advance per column-loop trip
	cColStep := int32(key.nr * 4)       // C advance per column-loop trip
	aBlockStep := int32(key.mr * key.kBlock)

	if mRegBlocks > 0 {
		loopM := a.NewLabel()
		loopN := a.NewLabel()
		loopK := a.NewLabel()
		rowRegs := key.mr

		a.MovRI(regIIdx, 0)
		a.Bind(loopM)
		a.IncR(regIIdx)
		a.MovRI(regJIdx, 0)

		a.Bind(loopN)
		a.IncR(regJIdx)

		e.initCRegs(rowRegs, colRegs)

		a.MovRI(regKIdx, 0)
		a.Bind(loopK)
		a.AddRI(regKIdx, int32(ri))

		e.computeBlock(rowRegs, colRegs, key.kBlock)

		a.AddRI(regA, int32(ri))
		a.AddRI(regB, bStep)
		a.AddRI(regBPf, bStep)

		a.CmpRR(regKIdx, regKSize)
		a.Jcc(asm.JL, loopK)

		e.storeCRegs(rowRegs, colRegs, key.accum)

		// Rewind A, point B (and its prefetch shadow) at the next column
		// block, and advance C one register tile of columns.
		a.SubRR(regA, regKSize)
		a.MovRR(regB, regBSaved)
		a.ImulRRI(regCOffset, regJIdx, jStep)
		a.AddRR(regB, regCOffset)
		a.MovRR(regBPf, regBPfSave)
		a.AddRR(regBPf, regCOffset)
		a.AddRI(regC, cColStep)

		a.CmpRI(regJIdx, int32(jLoopTrips))
		a.Jcc(asm.JL, loopN)

		// Next row block: advance A past this block's rows, step C down
		// rowRegs rows and back to the first column tile, reset B.
		a.AddRI(regA, aBlockStep)
		a.SubRI(regC, int32(jLoopTrips)*cColStep)
		a.ImulRRI(regCOffset, regLdc, int32(rowRegs))
		a.AddRR(regC, regCOffset)
		a.MovRR(regB, regBSaved)
		a.MovRR(regBPf, regBPfSave)

		a.CmpRI(regIIdx, int32(mRegBlocks))
		a.Jcc(asm.JL, loopM)
	}

	if mRegBlocksRem > 0 {
		loopN := a.NewLabel()
		loopK := a.NewLabel()
		rowRegs := mRegBlocksRem

		a.MovRI(regJIdx, 0)
		a.Bind(loopN)
		a.IncR(regJIdx)

		e.initCRegs(rowRegs, colRegs)

		a.MovRI(regKIdx, 0)
		a.Bind(loopK)
		a.AddRI(regKIdx, int32(ri))

		e.computeBlock(rowRegs, colRegs, key.kBlock)

		a.AddRI(regA, int32(ri))
		a.AddRI(regB, bStep)
		a.AddRI(regBPf, bStep)

		a.CmpRR(regKIdx, regKSize)
		a.Jcc(asm.JL, loopK)

		a.SubRR(regA, regKSize)
		a.ImulRRI(regCOffset, regJIdx, jStep)
		a.MovRR(regB, regBSaved)
		a.AddRR(regB, regCOffset)
		a.MovRR(regBPf, regBPfSave)
		a.AddRR(regBPf, regCOffset)

		e.storeCRegs(rowRegs, colRegs, key.accum)

		a.AddRI(regC, cColStep)

		a.CmpRI(regJIdx, int32(jLoopTrips))
		a.Jcc(asm.JL, loopN)
	}

	a.MovRI32(asm.RAX, 0)
	a.Ret()

	return a.Code()
}
