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

// Package kjit provides the shared infrastructure for runtime machine-code
// generation: instruction-set tier detection, a thread-safe cache of compiled
// kernels keyed by specialization parameters, and a runtime that turns
// assembled instruction streams into callable executable memory.
//
// Kernel generators live in the subpackages (embedding, gemm). They emit
// amd64 instructions through kjit/asm, register the result with a Runtime,
// and call it through Kernel. On architectures or platforms without
// executable-memory support the tier reports TierNone and callers take
// their portable reference path instead.
package kjit
