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
	"math/rand"
	"testing"

	"github.com/ajroetker/go-kerneljit/kjit"
)

// testRNG returns a seeded random number generator for reproducible tests.
func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

// jitAvailable reports whether the dispatch path can actually run generated
// code on this host.
func jitAvailable() bool {
	return kjit.CurrentTier() != kjit.TierNone && kjit.ExecSupported() && !kjit.NoJITEnv()
}

// makeFloatTable fills an embedding table of rows x blockSize float32s.
func makeFloatTable(rng *rand.Rand, rows, blockSize int) []float32 {
	table := make([]float32, rows*blockSize)
	for i := range table {
		table[i] = rng.Float32()*2 - 1
	}
	return table
}

// makeFused8Table builds rows in the fused layout: blockSize quantized bytes
// followed by a float32 scale and bias.
func makeFused8Table(rng *rand.Rand, rows, blockSize int) []uint8 {
	rowBytes := blockSize + 8
	table := make([]uint8, rows*rowBytes)
	for r := 0; r < rows; r++ {
		row := table[r*rowBytes:]
		for j := 0; j < blockSize; j++ {
			row[j] = uint8(rng.Intn(256))
		}
		putFloat32(row[blockSize:], rng.Float32()*0.1)
		putFloat32(row[blockSize+4:], rng.Float32()*2-1)
	}
	return table
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

// makeBatch draws a random lengths/indices batch over a table of rows rows.
func makeBatch(rng *rand.Rand, outputRows, maxLen, rows int) (lengths []int32, indices []int64) {
	lengths = make([]int32, outputRows)
	for r := range lengths {
		lengths[r] = int32(rng.Intn(maxLen + 1))
		for i := int32(0); i < lengths[r]; i++ {
			indices = append(indices, int64(rng.Intn(rows)))
		}
	}
	return lengths, indices
}

func toInt32(indices []int64) []int32 {
	out := make([]int32, len(indices))
	for i, v := range indices {
		out[i] = int32(v)
	}
	return out
}

// TestFused8PoolingScenario pins the dequantization arithmetic with a
// hand-computed case: two fused rows holding bytes [1 2 3 4] and [5 6 7 8]
// with scale=1, bias=0, pooled into one output row.
func TestFused8PoolingScenario(t *testing.T) {
	blockSize := 4
	table := make([]uint8, 2*(blockSize+8))
	copy(table, []uint8{1, 2, 3, 4})
	putFloat32(table[blockSize:], 1)
	putFloat32(table[blockSize+4:], 0)
	row1 := table[blockSize+8:]
	copy(row1, []uint8{5, 6, 7, 8})
	putFloat32(row1[blockSize:], 1)
	putFloat32(row1[blockSize+4:], 0)

	lengths := []int32{2}
	indices := []int32{0, 1}

	cases := []struct {
		name      string
		normalize bool
		want      []float32
	}{
		{"sum", false, []float32{6, 8, 10, 12}},
		{"normalized", true, []float32{3, 4, 5, 6}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := Opts{NormalizeByLengths: tc.normalize}

			out := make([]float32, blockSize)
			if !BaseSparseLengthsSum(blockSize, table, indices, lengths, nil, out, opts) {
				t.Fatal("BaseSparseLengthsSum failed")
			}
			for j, want := range tc.want {
				if out[j] != want {
					t.Errorf("base out[%d] = %v, want %v", j, out[j], want)
				}
			}

			out = make([]float32, blockSize)
			if !SparseLengthsSum(blockSize, table, indices, lengths, nil, out, opts) {
				t.Fatal("SparseLengthsSum failed")
			}
			for j, want := range tc.want {
				if out[j] != want {
					t.Errorf("dispatch out[%d] = %v, want %v", j, out[j], want)
				}
			}
		})
	}
}

// TestZeroLengthRow checks that a zero-length output row is all zeros no
// matter the normalization flag, even when the output buffer starts dirty.
func TestZeroLengthRow(t *testing.T) {
	rng := testRNG()
	blockSize := 9
	table := makeFloatTable(rng, 4, blockSize)
	lengths := []int32{0, 3, 0}
	indices := []int32{1, 0, 2}

	for _, normalize := range []bool{false, true} {
		out := make([]float32, len(lengths)*blockSize)
		for i := range out {
			out[i] = 7
		}
		if !SparseLengthsSum(blockSize, table, indices, lengths, nil, out, Opts{NormalizeByLengths: normalize}) {
			t.Fatalf("normalize=%v: unexpected failure", normalize)
		}
		for _, r := range []int{0, 2} {
			for j := 0; j < blockSize; j++ {
				if got := out[r*blockSize+j]; got != 0 {
					t.Errorf("normalize=%v: row %d elem %d = %v, want 0", normalize, r, j, got)
				}
			}
		}
	}
}

// TestValidationFailures checks the three failure modes: out-of-range index,
// a length overrunning the index buffer, and leftover indices after the last
// row.
func TestValidationFailures(t *testing.T) {
	rng := testRNG()
	blockSize := 8
	table := makeFloatTable(rng, 3, blockSize)

	cases := []struct {
		name    string
		lengths []int32
		indices []int32
	}{
		{"index_equal_rows", []int32{1}, []int32{3}},
		{"index_negative", []int32{2}, []int32{0, -1}},
		{"length_overruns_indices", []int32{4}, []int32{0, 1}},
		{"unconsumed_indices", []int32{1}, []int32{0, 1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := make([]float32, len(tc.lengths)*blockSize)
			if BaseSparseLengthsSum(blockSize, table, tc.indices, tc.lengths, nil, out, Opts{}) {
				t.Error("BaseSparseLengthsSum succeeded, want failure")
			}
			if SparseLengthsSum(blockSize, table, tc.indices, tc.lengths, nil, out, Opts{}) {
				t.Error("SparseLengthsSum succeeded, want failure")
			}
		})
	}
}

// TestRemainderBoundary checks that a block size straddling the vector width
// never writes past the output region: the sentinel tail must survive.
func TestRemainderBoundary(t *testing.T) {
	rng := testRNG()
	for _, blockSize := range []int{1, 3, 7, 9, 15, 17, 31, 33} {
		table := makeFloatTable(rng, 5, blockSize)
		lengths := []int32{2, 1}
		indices := []int32{0, 4, 2}

		const pad = 32
		buf := make([]float32, len(lengths)*blockSize+pad)
		for i := range buf {
			buf[i] = math.Float32frombits(0xDEADBEEF)
		}
		if !SparseLengthsSum(blockSize, table, indices, lengths, nil, buf[:len(lengths)*blockSize], Opts{}) {
			t.Fatalf("blockSize=%d: unexpected failure", blockSize)
		}
		for i := len(lengths) * blockSize; i < len(buf); i++ {
			if math.Float32bits(buf[i]) != 0xDEADBEEF {
				t.Fatalf("blockSize=%d: sentinel at %d overwritten", blockSize, i)
			}
		}
	}
}

// TestJITMatchesBase runs the generated kernels against the scalar reference
// across the full specialization grid. Pure float summation must match
// bit-for-bit; weighted, normalized and quantized paths are compared with a
// small tolerance to absorb fused-multiply-add emulation edge cases.
func TestJITMatchesBase(t *testing.T) {
	if !jitAvailable() {
		t.Skip("no JIT tier on this host")
	}
	rng := testRNG()

	// The largest sizes exceed one full unroll chunk of accumulators even on
	// AVX512, so the per-chunk index and weight cursor rewinds run too.
	blockSizes := []int{1, 4, 8, 15, 16, 17, 32, 47, 64, 100, 128, 512, 1000}
	const rows = 50
	const outputRows = 12

	for _, blockSize := range blockSizes {
		floatTable := makeFloatTable(rng, rows, blockSize)
		fusedTable := makeFused8Table(rng, rows, blockSize)
		lengths, indices64 := makeBatch(rng, outputRows, 10, rows)
		indices32 := toInt32(indices64)

		maxLen := 0
		for _, n := range lengths {
			if int(n) > maxLen {
				maxLen = int(n)
			}
		}
		weights := make([]float32, len(indices64))
		for i := range weights {
			weights[i] = rng.Float32()
		}

		for _, tc := range []struct {
			name string
			opts Opts
			wts  []float32
		}{
			{"plain", Opts{}, nil},
			{"prefetch", Opts{Prefetch: 16}, nil},
			{"weighted", Opts{}, weights},
			{"positional", Opts{Positional: true}, weights[:max(maxLen, 1)]},
			{"normalized", Opts{NormalizeByLengths: true}, nil},
			{"weighted_normalized_prefetch", Opts{NormalizeByLengths: true, Prefetch: 8}, weights},
		} {
			exact := tc.wts == nil && !tc.opts.NormalizeByLengths

			t.Run(tc.name, func(t *testing.T) {
				runPair := func(t *testing.T, jit, ref []float32, exact bool) {
					t.Helper()
					for i := range jit {
						if exact {
							if jit[i] != ref[i] {
								t.Fatalf("elem %d: jit %v != ref %v", i, jit[i], ref[i])
							}
							continue
						}
						if diff := math.Abs(float64(jit[i]) - float64(ref[i])); diff > 1e-4 {
							t.Fatalf("elem %d: jit %v vs ref %v (diff %v)", i, jit[i], ref[i], diff)
						}
					}
				}

				t.Run("float32_i32", func(t *testing.T) {
					jit := make([]float32, outputRows*blockSize)
					ref := make([]float32, outputRows*blockSize)
					if !SparseLengthsSum(blockSize, floatTable, indices32, lengths, tc.wts, jit, tc.opts) {
						t.Fatal("jit path failed")
					}
					if !BaseSparseLengthsSum(blockSize, floatTable, indices32, lengths, tc.wts, ref, tc.opts) {
						t.Fatal("base path failed")
					}
					runPair(t, jit, ref, exact)
				})

				t.Run("float32_i64", func(t *testing.T) {
					jit := make([]float32, outputRows*blockSize)
					ref := make([]float32, outputRows*blockSize)
					if !SparseLengthsSum(blockSize, floatTable, indices64, lengths, tc.wts, jit, tc.opts) {
						t.Fatal("jit path failed")
					}
					if !BaseSparseLengthsSum(blockSize, floatTable, indices64, lengths, tc.wts, ref, tc.opts) {
						t.Fatal("base path failed")
					}
					runPair(t, jit, ref, exact)
				})

				t.Run("fused8_i32", func(t *testing.T) {
					jit := make([]float32, outputRows*blockSize)
					ref := make([]float32, outputRows*blockSize)
					if !SparseLengthsSum(blockSize, fusedTable, indices32, lengths, tc.wts, jit, tc.opts) {
						t.Fatal("jit path failed")
					}
					if !BaseSparseLengthsSum(blockSize, fusedTable, indices32, lengths, tc.wts, ref, tc.opts) {
						t.Fatal("base path failed")
					}
					runPair(t, jit, ref, false)
				})

				t.Run("fused8_i64", func(t *testing.T) {
					jit := make([]float32, outputRows*blockSize)
					ref := make([]float32, outputRows*blockSize)
					if !SparseLengthsSum(blockSize, fusedTable, indices64, lengths, tc.wts, jit, tc.opts) {
						t.Fatal("jit path failed")
					}
					if !BaseSparseLengthsSum(blockSize, fusedTable, indices64, lengths, tc.wts, ref, tc.opts) {
						t.Fatal("base path failed")
					}
					runPair(t, jit, ref, false)
				})
			})
		}
	}
}

// TestPositionalWeights checks that positional mode re-reads weights from the
// start of the weight array for every output row.
func TestPositionalWeights(t *testing.T) {
	blockSize := 2
	// Two rows of ones and twos.
	table := []float32{1, 1, 2, 2}
	lengths := []int32{1, 1}
	indices := []int32{0, 1}
	weights := []float32{10, 99} // only weights[0] should ever be read

	out := make([]float32, 4)
	if !SparseLengthsSum(blockSize, table, indices, lengths, weights[:1], out, Opts{Positional: true}) {
		t.Fatal("unexpected failure")
	}
	want := []float32{10, 10, 20, 20}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

// TestKernelCacheReuse checks that repeated dispatch with one configuration
// generates exactly one specialization.
func TestKernelCacheReuse(t *testing.T) {
	if !jitAvailable() {
		t.Skip("no JIT tier on this host")
	}
	resetKernels()
	defer resetKernels()

	rng := testRNG()
	blockSize := 24
	table := makeFloatTable(rng, 8, blockSize)
	lengths := []int32{3}
	indices := []int32{0, 3, 7}
	out := make([]float32, blockSize)

	for i := 0; i < 4; i++ {
		if !SparseLengthsSum(blockSize, table, indices, lengths, nil, out, Opts{}) {
			t.Fatal("unexpected failure")
		}
	}
	if got := kernels.Len(); got != 1 {
		t.Errorf("cache holds %d specializations, want 1", got)
	}

	// A different block size is a different key.
	table2 := makeFloatTable(rng, 8, blockSize+1)
	out2 := make([]float32, blockSize+1)
	if !SparseLengthsSum(blockSize+1, table2, indices, lengths, nil, out2, Opts{}) {
		t.Fatal("unexpected failure")
	}
	if got := kernels.Len(); got != 2 {
		t.Errorf("cache holds %d specializations, want 2", got)
	}
}
