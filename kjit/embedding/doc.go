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

// Package embedding provides JIT-compiled sparse-lengths-sum pooling over an
// embedding table: for each output row, gather lengths[r] rows by index,
// optionally weight each row, accumulate elementwise, and optionally divide by
// the row count. Input rows are either float32 or fused 8-bit quantized (row
// bytes followed by a float32 scale and bias dequantized on the fly).
//
// SparseLengthsSum generates a kernel specialized for the exact block size and
// feature combination on first use and caches it; hosts without a supported
// vector extension (or with KJIT_NO_JIT set) take the portable
// BaseSparseLengthsSum path instead.
package embedding
