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

// BaseKernelU8S8S32 is the portable reference for the micro-kernel,
// operating on the same packed A/B layouts. It reproduces the vectorized
// arithmetic exactly, including the 16-bit saturation of the pairwise u8*s8
// step, so outputs match the JIT path bit-for-bit.
func BaseKernelU8S8S32(accum bool, mc, nc, kc, ldc int, a []uint8, b []int8, c []int32, p BlockingParams) {
	ri := p.RowInterleave

	// Column coverage mirrors the generated loop structure: one trip when
	// the tile fits a single register block, otherwise whole NR-column
	// trips with any leftover columns untouched.
	trips := 1
	colsPerTrip := nc
	if nc > p.NR {
		trips = nc / p.NR
		colsPerTrip = p.NR
	}

	for i := 0; i < mc; i++ {
		aRow := a[i*p.KCB:]
		for trip := 0; trip < trips; trip++ {
			for jc := 0; jc < colsPerTrip; jc++ {
				col := trip*p.NR + jc
				var acc int32
				if accum {
					acc = c[i*ldc+col]
				}
				for k := 0; k < kc; k += ri {
					off := (k/ri)*p.NCB*ri + col*ri
					p0 := int32(aRow[k]) * int32(b[off])
					p1 := int32(aRow[k+1]) * int32(b[off+1])
					p2 := int32(aRow[k+2]) * int32(b[off+2])
					p3 := int32(aRow[k+3]) * int32(b[off+3])
					acc += int32(sat16(p0+p1)) + int32(sat16(p2+p3))
				}
				c[i*ldc+col] = acc
			}
		}
	}
}

// sat16 clamps to the int16 range, matching vpmaddubsw's saturation.
func sat16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
