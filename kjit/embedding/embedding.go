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
	"runtime"
	"unsafe"

	"github.com/ajroetker/go-kerneljit/kjit"
)

// Input is an embedding table element: raw float32 rows, or uint8 for the
// fused 8-bit quantized layout (blockSize bytes + float32 scale + float32
// bias per row).
type Input interface {
	~float32 | ~uint8
}

// Index is an embedding row index.
type Index interface {
	~int32 | ~int64
}

// Opts are the pooling options beyond the data itself.
type Opts struct {
	// NormalizeByLengths divides each output row by its index count.
	// Rows with length < 1 are left all-zero.
	NormalizeByLengths bool

	// Prefetch is the look-ahead distance, in indices, for prefetching
	// embedding rows. Zero disables prefetching.
	Prefetch int

	// Positional re-reads weights from the start of the weight array for
	// every output row, so weights[i] applies to the i-th index of each
	// row rather than being consumed one per index globally.
	Positional bool
}

// kernelArgs is the block handed to generated code. Field order and sizes
// are the kernel's ABI; the generator unpacks them by fixed offset.
type kernelArgs struct {
	outputRows int64
	indexCount int64
	dataRows   int64
	input      unsafe.Pointer
	indices    unsafe.Pointer
	lengths    unsafe.Pointer
	weights    unsafe.Pointer
	out        unsafe.Pointer
}

var kernels kjit.Cache[kernelKey]

// resetKernels drops the cached specializations. Test hook; the executable
// memory stays with the default runtime.
func resetKernels() { kernels.Reset() }

// SparseLengthsSum pools input rows into len(lengths) output rows of
// blockSize float32s each: output row r is the (optionally weighted) sum of
// the rows named by the next lengths[r] values of indices. weights is nil
// for an unweighted sum; otherwise it supplies one float32 per index (or per
// position, see Opts.Positional). out must hold len(lengths)*blockSize
// float32s.
//
// It returns false, with out in an unspecified but in-bounds state, when any
// index falls outside the table, when a length overruns the index buffer, or
// when the indices are not consumed exactly. Callers must not trust out
// after a false return.
func SparseLengthsSum[T Input, I Index](blockSize int, input []T, indices []I, lengths []int32, weights []float32, out []float32, opts Opts) bool {
	if blockSize <= 0 || len(out) < len(lengths)*blockSize {
		return false
	}

	var zeroIn T
	is8bit := unsafe.Sizeof(zeroIn) == 1
	rowElems := blockSize
	if is8bit {
		rowElems = blockSize + 8
	}
	dataRows := len(input) / rowElems

	tier := kjit.CurrentTier()
	if tier == kjit.TierNone || !kjit.ExecSupported() {
		return BaseSparseLengthsSum(blockSize, input, indices, lengths, weights, out, opts)
	}

	var zeroIdx I
	key := kernelKey{
		tier:       tier,
		blockSize:  blockSize,
		hasWeight:  weights != nil,
		positional: weights != nil && opts.Positional,
		normalize:  opts.NormalizeByLengths,
		prefetch:   opts.Prefetch,
		is8bit:     is8bit,
		indices64:  unsafe.Sizeof(zeroIdx) == 8,
	}

	k := kernels.GetOrCreate(key, func() kjit.Kernel {
		code, err := generate(key)
		if err != nil {
			return kjit.Kernel{}
		}
		kr, err := kjit.DefaultRuntime().Register(code)
		if err != nil {
			return kjit.Kernel{}
		}
		return kr
	})
	if !k.Valid() {
		return BaseSparseLengthsSum(blockSize, input, indices, lengths, weights, out, opts)
	}

	args := kernelArgs{
		outputRows: int64(len(lengths)),
		indexCount: int64(len(indices)),
		dataRows:   int64(dataRows),
		input:      unsafe.Pointer(unsafe.SliceData(input)),
		indices:    unsafe.Pointer(unsafe.SliceData(indices)),
		lengths:    unsafe.Pointer(unsafe.SliceData(lengths)),
		weights:    unsafe.Pointer(unsafe.SliceData(weights)),
		out:        unsafe.Pointer(unsafe.SliceData(out)),
	}
	ok := k.Call(unsafe.Pointer(&args))
	runtime.KeepAlive(&args)
	runtime.KeepAlive(input)
	runtime.KeepAlive(indices)
	runtime.KeepAlive(lengths)
	runtime.KeepAlive(weights)
	runtime.KeepAlive(out)
	return ok != 0
}
