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
)

// BlockingParams describe the tile shape the packed A/B buffers were built
// for and the register tiling of the micro-kernel. Illegal parameters are a
// programming error, checked fatally at generator construction rather than
// tolerated at run time.
type BlockingParams struct {
	MCB int // row cache block: rows per packed A block
	NCB int // column cache block: columns per packed B block
	KCB int // k cache block: packed A row stride in bytes

	MR    int // rows per register tile
	NR    int // columns per register tile (one column-loop trip)
	NRMin int // minimum column granularity: columns per vector register

	RowInterleave int // k-values packed together per column of B
}

// accumBudget is the number of vector registers available for the C tile
// after the A broadcast, B tile, all-ones and temporary registers are
// reserved.
func accumBudget(t kjit.Tier) int {
	if t == kjit.TierAVX512 {
		return 28
	}
	return 12
}

// DefaultBlocking returns the tile shape tuned for a tier. TierNone gets the
// narrow-register shape so reference-path packing stays consistent.
func DefaultBlocking(t kjit.Tier) BlockingParams {
	if t == kjit.TierAVX512 {
		return BlockingParams{
			MCB: 56, NCB: 64, KCB: 256,
			MR: 14, NR: 32, NRMin: 16,
			RowInterleave: 4,
		}
	}
	return BlockingParams{
		MCB: 120, NCB: 8, KCB: 256,
		MR: 12, NR: 8, NRMin: 8,
		RowInterleave: 4,
	}
}

// validate panics on any parameter combination the emitter cannot lower.
func (p BlockingParams) validate(t kjit.Tier) {
	if p.RowInterleave != 4 {
		panic(fmt.Sprintf("gemm: row interleave must be 4 for 32-bit accumulation, got %d", p.RowInterleave))
	}
	if p.KCB%p.RowInterleave != 0 {
		panic(fmt.Sprintf("gemm: KCB %d must be a multiple of the row interleave %d", p.KCB, p.RowInterleave))
	}
	if p.NRMin <= 0 || p.NCB%p.NRMin != 0 {
		panic(fmt.Sprintf("gemm: NCB %d must be a multiple of NR_MIN %d", p.NCB, p.NRMin))
	}
	if p.NR%p.NRMin != 0 {
		panic(fmt.Sprintf("gemm: NR %d must be a multiple of NR_MIN %d", p.NR, p.NRMin))
	}
	if t == kjit.TierNone {
		return
	}
	vlenBytes := t.VectorBytes()
	if p.NRMin*p.RowInterleave != vlenBytes {
		panic(fmt.Sprintf("gemm: NR_MIN %d * row interleave %d must fill one %d-byte vector", p.NRMin, p.RowInterleave, vlenBytes))
	}
	maxNRegs := p.NR * p.RowInterleave / vlenBytes
	if p.MR*maxNRegs > accumBudget(t) {
		panic(fmt.Sprintf("gemm: MR %d x %d column registers exceeds the %d-register accumulator budget", p.MR, maxNRegs, accumBudget(t)))
	}
}

// maxNRegs is the column-register count of one full register tile.
func (p BlockingParams) maxNRegs(vlenBytes int) int {
	return p.NR * p.RowInterleave / vlenBytes
}
