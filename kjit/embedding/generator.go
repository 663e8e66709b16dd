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

package embedding

import (
	"fmt"

	"github.com/ajroetker/go-kerneljit/kjit"
	"github.com/ajroetker/go-kerneljit/kjit/asm"
)

// kernelKey is the specialization key: every axis that changes the emitted
// instruction stream. Two distinct keys never share a kernel.
type kernelKey struct {
	tier       kjit.Tier
	blockSize  int
	hasWeight  bool
	positional bool
	normalize  bool
	prefetch   int
	is8bit     bool
	indices64  bool
}

// Register assignment for the generated kernel. The args block arrives in DI
// and is unpacked into these before the loops begin; DI itself ends up
// holding the output-row countdown.
const (
	regOutputRows = asm.RDI // counts down to -1
	regIndexEnd   = asm.RSI // one past the last index (precomputed address)
	regDataRows   = asm.RDX
	regInput      = asm.RCX
	regIndices    = asm.R8
	regLengths    = asm.R9
	regWeights    = asm.R10
	regOut        = asm.R11
	regLen        = asm.R12 // remaining indices in the current row (32-bit)
	regScratch    = asm.R13
	regPrefetch   = asm.R14
	regWeightBase = asm.R15 // weight array base, for positional mode
)

// regPool hands out vector registers from the top of the file down, one per
// named role, so accumulators can use [0, Free()) without overlapping any
// role register.
type regPool struct {
	tier kjit.Tier
	free int
}

func newRegPool(t kjit.Tier) *regPool {
	return &regPool{tier: t, free: t.NumVecRegs()}
}

// take claims the highest free register for a role. At least one register
// must remain for accumulators.
func (p *regPool) take() asm.VecReg {
	p.free--
	if p.free < 1 {
		panic("embedding: vector register budget exhausted")
	}
	return p.tier.VecReg(p.free)
}

// Free returns how many registers remain for accumulators (the unroll
// factor).
func (p *regPool) Free() int { return p.free }

// kernelRoles is the vector-register role assignment for one specialization,
// plus the accumulator count left after all roles are reserved.
type kernelRoles struct {
	scale   asm.VecReg
	bias    asm.VecReg
	cvt     asm.VecReg
	weight  asm.VecReg
	mask    asm.VecReg
	temp    asm.VecReg
	vlenInv asm.VecReg
	unroll  int
}

// reserveRoles hands out role registers from the top of the file so
// accumulators keep the low indices. The order mirrors the reservation
// priority: dequantization first, then weighting, remainder handling,
// normalization.
func reserveRoles(key kernelKey, remainder int) kernelRoles {
	pool := newRegPool(key.tier)
	var r kernelRoles
	if key.is8bit {
		r.scale = pool.take()
		r.bias = pool.take()
		r.cvt = pool.take()
	}
	if key.hasWeight {
		r.weight = pool.take()
	}
	if remainder != 0 && key.tier != kjit.TierAVX512 {
		// AVX2 needs a mask vector and a conditional-load scratch; AVX512
		// masks tail loads and stores through k1 and reserves nothing.
		r.mask = pool.take()
		r.temp = pool.take()
	}
	if key.normalize {
		r.vlenInv = pool.take()
	}
	r.unroll = pool.Free()
	return r
}

// KernelSpec names one kernel specialization for diagnostic code
// generation. It mirrors the cache key SparseLengthsSum builds internally.
type KernelSpec struct {
	Tier       kjit.Tier
	BlockSize  int
	Weighted   bool
	Positional bool
	Normalize  bool
	Prefetch   int
	Quantized8 bool
	Indices64  bool
}

// GenerateCode lowers a specialization to machine code without registering
// or running it. Intended for inspection tooling; dispatch goes through
// SparseLengthsSum.
func GenerateCode(s KernelSpec) ([]byte, error) {
	return generate(kernelKey{
		tier:       s.Tier,
		blockSize:  s.BlockSize,
		hasWeight:  s.Weighted,
		positional: s.Weighted && s.Positional,
		normalize:  s.Normalize,
		prefetch:   s.Prefetch,
		is8bit:     s.Quantized8,
		indices64:  s.Indices64,
	})
}

// generate emits the kernel for one specialization key. The generated
// function takes a *kernelArgs in DI and returns 1 in AX on success, 0 on a
// data validation failure (bad index, length overrun, cursor mismatch).
func generate(key kernelKey) ([]byte, error) {
	t := key.tier
	if t != kjit.TierAVX2 && t != kjit.TierAVX512 {
		return nil, fmt.Errorf("embedding: no generator for tier %s", t)
	}
	if key.blockSize <= 0 {
		return nil, fmt.Errorf("embedding: invalid block size %d", key.blockSize)
	}
	avx512 := t == kjit.TierAVX512

	vlen := t.Lanes()
	numBlocks := (key.blockSize + vlen - 1) / vlen
	remainder := key.blockSize % vlen

	idxSize := 4
	if key.indices64 {
		idxSize = 8
	}
	inSize := 4
	rowBytes := key.blockSize * 4
	if key.is8bit {
		inSize = 1
		// Row bytes plus the trailing scale and bias floats.
		rowBytes = key.blockSize + 8
	}

	roles := reserveRoles(key, remainder)
	scaleV, biasV, cvtV := roles.scale, roles.bias, roles.cvt
	weightV := roles.weight
	maskV, tempV := roles.mask, roles.temp
	vlenInvV := roles.vlenInv
	unroll := roles.unroll

	a := asm.New()

	// Unpack the args block. DI is loaded last since it is the base.
	a.MovRM(regIndexEnd, asm.Ptr(asm.RDI, 8))
	a.MovRM(regDataRows, asm.Ptr(asm.RDI, 16))
	a.MovRM(regInput, asm.Ptr(asm.RDI, 24))
	a.MovRM(regIndices, asm.Ptr(asm.RDI, 32))
	a.MovRM(regLengths, asm.Ptr(asm.RDI, 40))
	a.MovRM(regWeights, asm.Ptr(asm.RDI, 48))
	a.MovRM(regOut, asm.Ptr(asm.RDI, 56))
	a.MovRM(regOutputRows, asm.Ptr(asm.RDI, 0))

	if remainder != 0 {
		if avx512 {
			a.MovRI(regScratch, int64(1<<remainder)-1)
			a.KmovwKR(asm.K1, regScratch)
		} else {
			// Build the lane mask on the stack: -1 for live lanes, 0 for
			// dead ones.
			a.Lea(asm.RSP, asm.Ptr(asm.RSP, int32(-vlen*4)))
			for i := 0; i < remainder; i++ {
				a.MovMI32(asm.Ptr(asm.RSP, int32(i*4)), -1)
			}
			for i := remainder; i < vlen; i++ {
				a.MovMI32(asm.Ptr(asm.RSP, int32(i*4)), 0)
			}
			a.VmovupsLoad(maskV, asm.Ptr(asm.RSP, 0))
			a.Lea(asm.RSP, asm.Ptr(asm.RSP, int32(vlen*4)))
		}
	}

	// Turn the index count into the end address of the index buffer; the
	// final cursor check and the per-row overrun check compare against it.
	a.ImulRRI(regScratch, regIndexEnd, int32(idxSize))
	a.AddRR(regScratch, regIndices)
	a.MovRR(regIndexEnd, regScratch)

	exit := a.NewLabel()
	errOut := a.NewLabel()
	rowLoop := a.NewLabel()
	rowDone := a.NewLabel()

	if key.hasWeight && key.positional {
		a.MovRR(regWeightBase, regWeights)
	}

	// Output-row loop: iterate outputRows times.
	a.Bind(rowLoop)
	a.DecR(regOutputRows)
	a.Jcc(asm.JL, rowDone)

	if key.normalize {
		// Compute 1/lengths[r] once per output row; a row with length < 1
		// keeps the zeroed reciprocal so its output stays zero.
		lenDone := a.NewLabel()
		a.CmpMI32(asm.Ptr(regLengths, 0), 1)
		a.Vxorps(vlenInvV, vlenInvV, vlenInvV)
		a.Jcc(asm.JL, lenDone)

		if avx512 {
			a.MovRI32(regLen, 1)
			a.Vcvtsi2ss(asm.Xmm(0), asm.Xmm(0), regLen)
			a.Vpbroadcastd(vlenInvV, asm.Xmm(0))
			divisor := t.VecReg(0)
			if key.is8bit {
				divisor = cvtV
			}
			a.VpbroadcastdMem(divisor, asm.Ptr(regLengths, 0))
			a.Vcvtdq2ps(divisor, divisor)
			a.Vdivps(vlenInvV, vlenInvV, divisor)
		} else {
			invX := asm.Xmm(vlenInvV.Index())
			tempX := asm.Xmm(0)
			if key.is8bit {
				tempX = asm.Xmm(cvtV.Index())
			}
			a.MovRI32(regLen, 1)
			a.Vcvtsi2ss(invX, invX, regLen)
			a.Vcvtsi2ssMem(tempX, tempX, asm.Ptr(regLengths, 0))
			a.Vdivss(invX, invX, tempX)
			a.Vpbroadcastd(vlenInvV, invX)
		}
		a.Bind(lenDone)
	}

	// The embedding dimension is processed unroll registers at a time; each
	// chunk re-runs the whole index list for this row, rewinding the index
	// and weight cursors in between.
	for vecIdx := 0; vecIdx < numBlocks; vecIdx += unroll {
		cur := min(unroll, numBlocks-vecIdx)

		for v := 0; v < cur; v++ {
			acc := t.VecReg(v)
			a.Vxorps(acc, acc, acc)
		}

		a.MovRM32(regLen, asm.Ptr(regLengths, 0))

		// Fail if this row's length would consume past the index buffer.
		a.ImulRRI(regScratch, regLen, int32(idxSize))
		a.AddRR(regScratch, regIndices)
		a.CmpRR(regScratch, regIndexEnd)
		a.Jcc(asm.JG, errOut)

		idxLoop := a.NewLabel()
		idxDone := a.NewLabel()

		if key.hasWeight && key.positional {
			a.MovRR(regWeights, regWeightBase)
		}

		// Index loop: iterate lengths[r] times.
		a.Bind(idxLoop)
		a.DecR32(regLen)
		a.Jcc(asm.JL, idxDone)

		if key.indices64 {
			a.MovRM(regScratch, asm.Ptr(regIndices, 0))
		} else {
			a.MovsxdRM(regScratch, asm.Ptr(regIndices, 0))
		}
		a.CmpRI(regScratch, 0)
		a.Jcc(asm.JL, errOut)
		a.CmpRR(regScratch, regDataRows)
		a.Jcc(asm.JGE, errOut)
		a.ImulRI(regScratch, int32(rowBytes))

		if key.prefetch > 0 {
			// Prefetch the row pref indices ahead; if the look-ahead runs
			// off the index buffer or holds an out-of-range value, clamp to
			// the current row. Prefetch must never fault.
			clamp := a.NewLabel()
			resolved := a.NewLabel()
			a.MovRR(regPrefetch, regIndices)
			a.AddRI(regPrefetch, int32(key.prefetch*idxSize))
			a.CmpRR(regPrefetch, regIndexEnd)
			a.Jcc(asm.JGE, clamp)

			ahead := asm.Ptr(regIndices, int32(key.prefetch*idxSize))
			if key.indices64 {
				a.MovRM(regPrefetch, ahead)
			} else {
				a.MovsxdRM(regPrefetch, ahead)
			}
			a.CmpRI(regPrefetch, 0)
			a.Jcc(asm.JL, clamp)
			a.CmpRR(regPrefetch, regDataRows)
			a.Jcc(asm.JGE, clamp)
			a.Jmp(resolved)

			a.Bind(clamp)
			if key.indices64 {
				a.MovRM(regPrefetch, asm.Ptr(regIndices, 0))
			} else {
				a.MovsxdRM(regPrefetch, asm.Ptr(regIndices, 0))
			}
			a.Bind(resolved)
			a.ImulRI(regPrefetch, int32(rowBytes))
		}

		a.AddRI(regIndices, int32(idxSize))

		if key.is8bit {
			a.VbroadcastssMem(scaleV, asm.PtrIdx(regInput, regScratch, 1, int32(key.blockSize)))
			a.VbroadcastssMem(biasV, asm.PtrIdx(regInput, regScratch, 1, int32(key.blockSize+4)))
		}

		if key.hasWeight {
			a.VbroadcastssMem(weightV, asm.Ptr(regWeights, 0))
			if key.is8bit {
				// Pre-multiply scale and bias by the weight so the per-lane
				// op stays a single fused multiply-add.
				a.Vmulps(scaleV, scaleV, weightV)
				a.Vmulps(biasV, biasV, weightV)
			}
			a.AddRI(regWeights, 4)
		}

		for v := 0; v < cur; v++ {
			acc := t.VecReg(v)
			src := asm.PtrIdx(regInput, regScratch, 1, int32((vecIdx+v)*vlen*inSize))
			last := remainder != 0 && vecIdx+v == numBlocks-1

			if key.is8bit {
				if last && avx512 {
					a.VpmovzxbdMemK(cvtV, src, asm.K1)
					a.Vcvtdq2psK(cvtV, cvtV, asm.K1)
					a.VaddpsK(acc, acc, biasV, asm.K1)
					a.Vfmadd231psK(acc, cvtV, scaleV, asm.K1)
				} else {
					// AVX2 loads the tail unmasked: the trailing scale/bias
					// floats pad the row, so the extra lanes never read out
					// of bounds and the masked store drops them.
					a.VpmovzxbdMem(cvtV, src)
					a.Vcvtdq2ps(cvtV, cvtV)
					a.Vaddps(acc, acc, biasV)
					a.Vfmadd231ps(acc, cvtV, scaleV)
				}
			} else {
				if last && !avx512 {
					a.VmaskmovpsLoad(tempV, maskV, src)
				}
				if key.hasWeight {
					switch {
					case last && !avx512:
						a.Vfmadd231ps(acc, weightV, tempV)
					case last:
						a.Vfmadd231psMemK(acc, weightV, src, asm.K1)
					default:
						a.Vfmadd231psMem(acc, weightV, src)
					}
				} else {
					switch {
					case last && !avx512:
						a.Vaddps(acc, acc, tempV)
					case last:
						a.VaddpsMemK(acc, acc, src, asm.K1)
					default:
						a.VaddpsMem(acc, acc, src)
					}
				}
			}

			// One prefetch covers a 64-byte line; skip registers that share
			// the line of an already-issued prefetch.
			if key.prefetch > 0 && v%(64/(vlen*inSize)) == 0 {
				a.Prefetcht0(asm.PtrIdx(regInput, regPrefetch, 1, int32((vecIdx+v)*vlen*inSize)))
			}
		}

		a.Jmp(idxLoop)
		a.Bind(idxDone)

		for v := 0; v < cur; v++ {
			acc := t.VecReg(v)
			dst := asm.Ptr(regOut, int32((vecIdx+v)*vlen*4))
			last := remainder != 0 && vecIdx+v == numBlocks-1

			if key.normalize {
				a.Vmulps(acc, acc, vlenInvV)
			}
			switch {
			case last && !avx512:
				a.VmaskmovpsStore(dst, maskV, acc)
			case last:
				a.VmovupsStoreK(dst, acc, asm.K1)
			default:
				a.VmovupsStore(dst, acc)
			}
		}

		if vecIdx+unroll < numBlocks {
			// Another chunk follows: rewind the index and weight cursors so
			// it re-runs this row's index list.
			a.MovRM32(regLen, asm.Ptr(regLengths, 0))
			if key.hasWeight {
				a.ImulRRI(regScratch, regLen, 4)
				a.SubRR(regWeights, regScratch)
				a.ImulRI(regScratch, int32(idxSize/4))
				a.SubRR(regIndices, regScratch)
			} else {
				a.ImulRRI(regScratch, regLen, int32(idxSize))
				a.SubRR(regIndices, regScratch)
			}
		}
	}

	a.AddRI(regLengths, 4)
	a.AddRI(regOut, int32(key.blockSize*4))
	a.Jmp(rowLoop)
	a.Bind(rowDone)

	// The cursor must land exactly on the end of the index buffer.
	a.CmpRR(regIndices, regIndexEnd)
	a.Jcc(asm.JNE, errOut)
	a.MovRI32(asm.RAX, 1)
	a.Jmp(exit)
	a.Bind(errOut)
	a.MovRI32(asm.RAX, 0)
	a.Bind(exit)
	a.Ret()

	return a.Code()
}
