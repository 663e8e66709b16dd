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
	"math"
	"unsafe"
)

// BaseSparseLengthsSum is the portable reference implementation of
// SparseLengthsSum, used when no vector extension is available and as the
// oracle in tests. It accumulates each output element in the same order and
// with the same fused-multiply-add rounding the generated kernels use, so
// results match the JIT path exactly for pure float summation.
func BaseSparseLengthsSum[T Input, I Index](blockSize int, input []T, indices []I, lengths []int32, weights []float32, out []float32, opts Opts) bool {
	if blockSize <= 0 || len(out) < len(lengths)*blockSize {
		return false
	}
	var zero T
	if unsafe.Sizeof(zero) == 1 {
		rows := unsafe.Slice((*uint8)(unsafe.Pointer(unsafe.SliceData(input))), len(input))
		return baseFused8(blockSize, rows, indices, lengths, weights, out, opts)
	}
	rows := unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(input))), len(input))
	return baseFloat32(blockSize, rows, indices, lengths, weights, out, opts)
}

func baseFloat32[I Index](blockSize int, input []float32, indices []I, lengths []int32, weights []float32, out []float32, opts Opts) bool {
	dataRows := int64(len(input) / blockSize)
	cur := 0
	for r, n32 := range lengths {
		n := int(n32)
		if n > 0 && cur+n > len(indices) {
			return false
		}
		dst := out[r*blockSize : (r+1)*blockSize]
		clear(dst)
		for l := 0; l < n; l++ {
			idx := int64(indices[cur])
			if idx < 0 || idx >= dataRows {
				return false
			}
			row := input[idx*int64(blockSize) : (idx+1)*int64(blockSize)]
			if weights != nil {
				w := nextWeight(weights, cur, l, opts.Positional)
				for j := range dst {
					dst[j] = fma32(w, row[j], dst[j])
				}
			} else {
				for j := range dst {
					dst[j] += row[j]
				}
			}
			cur++
		}
		normalizeRow(dst, n, opts.NormalizeByLengths)
	}
	return cur == len(indices)
}

func baseFused8[I Index](blockSize int, input []uint8, indices []I, lengths []int32, weights []float32, out []float32, opts Opts) bool {
	rowBytes := blockSize + 8
	dataRows := int64(len(input) / rowBytes)
	cur := 0
	for r, n32 := range lengths {
		n := int(n32)
		if n > 0 && cur+n > len(indices) {
			return false
		}
		dst := out[r*blockSize : (r+1)*blockSize]
		clear(dst)
		for l := 0; l < n; l++ {
			idx := int64(indices[cur])
			if idx < 0 || idx >= dataRows {
				return false
			}
			row := input[idx*int64(rowBytes) : (idx+1)*int64(rowBytes)]
			scale := float32frombytes(row[blockSize:])
			bias := float32frombytes(row[blockSize+4:])
			if weights != nil {
				w := nextWeight(weights, cur, l, opts.Positional)
				scale *= w
				bias *= w
			}
			// Same per-lane sequence as the kernel: add the (possibly
			// weighted) bias, then fuse the dequantized byte against the
			// scale.
			for j := range dst {
				dst[j] = fma32(float32(row[j]), scale, dst[j]+bias)
			}
			cur++
		}
		normalizeRow(dst, n, opts.NormalizeByLengths)
	}
	return cur == len(indices)
}

// nextWeight picks the weight for the cur-th consumed index, which sits at
// position l within its output row.
func nextWeight(weights []float32, cur, l int, positional bool) float32 {
	if positional {
		return weights[l]
	}
	return weights[cur]
}

func normalizeRow(dst []float32, n int, normalize bool) {
	if !normalize || n < 1 {
		return
	}
	inv := float32(1) / float32(n)
	for j := range dst {
		dst[j] *= inv
	}
}

// fma32 is a single-rounded float32 multiply-add, matching vfmadd231ps.
func fma32(a, b, c float32) float32 {
	return float32(math.FMA(float64(a), float64(b), float64(c)))
}

func float32frombytes(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}
