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
	"runtime"
	"unsafe"

	"github.com/ajroetker/go-kerneljit/kjit"
)

// Generator produces and caches micro-kernels for one blocking
// configuration. The zero value is not usable; construct with NewGenerator.
// A Generator is safe for concurrent use.
type Generator struct {
	tier    kjit.Tier
	rt      *kjit.Runtime
	params  BlockingParams
	kernels kjit.Cache[kernelKey]
}

// NewGenerator returns a Generator for the detected tier. params overrides
// the tier defaults; nil selects DefaultBlocking. Illegal blocking
// parameters panic: they are caller misconfiguration, not data conditions.
func NewGenerator(rt *kjit.Runtime, params *BlockingParams) *Generator {
	tier := kjit.CurrentTier()
	p := DefaultBlocking(tier)
	if params != nil {
		p = *params
	}
	p.validate(tier)
	if rt == nil {
		rt = kjit.DefaultRuntime()
	}
	return &Generator{tier: tier, rt: rt, params: p}
}

// Params returns the blocking configuration in effect.
func (g *Generator) Params() BlockingParams { return g.params }

// Tier returns the instruction-set tier the Generator emits for.
func (g *Generator) Tier() kjit.Tier { return g.tier }

// checkTile panics when a tile shape does not fit the packed layout the
// blocking parameters promise.
func (g *Generator) checkTile(mc, nc, kc int) {
	p := g.params
	if mc <= 0 || mc > p.MCB {
		panic(fmt.Sprintf("gemm: mc %d outside (0, %d]", mc, p.MCB))
	}
	if nc <= 0 || nc > p.NCB {
		panic(fmt.Sprintf("gemm: nc %d outside (0, %d]", nc, p.NCB))
	}
	if nc%p.NRMin != 0 {
		panic(fmt.Sprintf("gemm: nc %d must be a multiple of NR_MIN %d", nc, p.NRMin))
	}
	if kc <= 0 || kc > p.KCB {
		panic(fmt.Sprintf("gemm: kc %d outside (0, %d]", kc, p.KCB))
	}
	if kc%p.RowInterleave != 0 {
		panic(fmt.Sprintf("gemm: kc %d must be a multiple of the row interleave %d", kc, p.RowInterleave))
	}
}

// Kernel returns the compiled micro-kernel for one tile shape, generating
// and caching it on first use. The zero Kernel means no fast path is
// available (no tier, or registration failed) and the caller must use
// BaseKernelU8S8S32.
func (g *Generator) Kernel(accum bool, mc, nc, kc int) kjit.Kernel {
	g.checkTile(mc, nc, kc)
	if g.tier == kjit.TierNone || !kjit.ExecSupported() {
		return kjit.Kernel{}
	}
	key := kernelKey{
		tier:   g.tier,
		accum:  accum,
		mc:     mc,
		nc:     nc,
		kc:     kc,
		nBlock: g.params.NCB,
		kBlock: g.params.KCB,
		mr:     g.params.MR,
		nr:     g.params.NR,
		nrMin:  g.params.NRMin,
	}
	return g.kernels.GetOrCreate(key, func() kjit.Kernel {
		code, err := generate(key)
		if err != nil {
			return kjit.Kernel{}
		}
		k, err := g.rt.Register(code)
		if err != nil {
			return kjit.Kernel{}
		}
		return k
	})
}

// kernelArgs is the block handed to generated code; field order and sizes
// are the kernel's ABI.
type kernelArgs struct {
	a     unsafe.Pointer
	b     unsafe.Pointer
	bPf   unsafe.Pointer
	c     unsafe.Pointer
	kSize int64
	ldc   int64 // in elements; the kernel converts to bytes
}

// Multiply runs C[mc,nc] (+)= A * B on packed tiles. a is the packed A block
// (row stride KCB bytes, kc valid per row), b the packed B block
// (RowInterleave-grouped, NCB columns per k-slice), bPf an optional prefetch
// target for the next B block (nil prefetches b itself), c the output base
// with row stride ldc elements. Tile shapes that violate the blocking
// parameters panic; hosts without a JIT tier take the reference path.
func (g *Generator) Multiply(accum bool, mc, nc, kc int, a []uint8, b []int8, bPf []int8, c []int32, ldc int) {
	p := g.params
	if len(a) < (mc-1)*p.KCB+kc {
		panic(fmt.Sprintf("gemm: packed A has %d bytes, tile needs %d", len(a), (mc-1)*p.KCB+kc))
	}
	if len(b) < kc*p.NCB {
		panic(fmt.Sprintf("gemm: packed B has %d bytes, tile needs %d", len(b), kc*p.NCB))
	}
	if ldc < nc || len(c) < (mc-1)*ldc+nc {
		panic(fmt.Sprintf("gemm: C has %d elements, tile needs %d with ldc %d", len(c), (mc-1)*ldc+nc, ldc))
	}

	k := g.Kernel(accum, mc, nc, kc)
	if !k.Valid() {
		BaseKernelU8S8S32(accum, mc, nc, kc, ldc, a, b, c, p)
		return
	}

	if bPf == nil {
		bPf = b
	}
	args := kernelArgs{
		a:     unsafe.Pointer(unsafe.SliceData(a)),
		b:     unsafe.Pointer(unsafe.SliceData(b)),
		bPf:   unsafe.Pointer(unsafe.SliceData(bPf)),
		c:     unsafe.Pointer(unsafe.SliceData(c)),
		kSize: int64(kc),
		ldc:   int64(ldc),
	}
	k.Call(unsafe.Pointer(&args))
	runtime.KeepAlive(&args)
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
	runtime.KeepAlive(bPf)
	runtime.KeepAlive(c)
}
