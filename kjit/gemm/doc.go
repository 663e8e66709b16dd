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

// Package gemm provides a JIT-compiled micro-kernel for quantized matrix
// multiplication: C[mc,nc] (+)= A[mc,kc] * B[kc,nc] with unsigned 8-bit A,
// signed 8-bit B and 32-bit integer accumulation.
//
// A and B arrive packed: A row-major with a KCB byte row stride, B grouped
// RowInterleave k-values per column so one vector load covers a full column
// tile of one k-step. The dot product runs as a two-step reduction — a
// saturating u8*s8 multiply-add into 16-bit lanes, then a multiply-add
// against an all-ones 16-bit vector into the 32-bit accumulators — which
// avoids signed overflow while reconstructing the standard sum. The
// saturation in the first step is part of the kernel's arithmetic and
// BaseKernelU8S8S32 reproduces it exactly.
package gemm
