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

package kjit

import "unsafe"

// Kernel is an entry point into runtime-generated machine code. The zero
// Kernel is invalid and means "no fast path available". The executable
// memory behind a Kernel is owned by the Runtime that registered it;
// Kernel itself is a plain value that can be copied and cached freely.
type Kernel struct {
	entry uintptr
}

// Valid reports whether the kernel can be called.
func (k Kernel) Valid() bool { return k.entry != 0 }

// Addr returns the entry address, for diagnostics.
func (k Kernel) Addr() uintptr { return k.entry }

// Call invokes the kernel. Generated code receives args in DI and returns
// a result in AX; it never calls back into Go and never allocates. The
// caller must keep every object referenced from the args block alive
// across the call (runtime.KeepAlive).
func (k Kernel) Call(args unsafe.Pointer) uint64 {
	return callKernel(k.entry, args)
}
