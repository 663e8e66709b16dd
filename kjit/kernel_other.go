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

//go:build !amd64

package kjit

import "unsafe"

// callKernel is unreachable off amd64: detection reports TierNone, so no
// kernel is ever generated or called.
func callKernel(entry uintptr, args unsafe.Pointer) uint64 {
	panic("kjit: generated kernels are amd64-only")
}
