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

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"
)

// ErrExecUnsupported is returned by Register on platforms without
// executable-memory support.
var ErrExecUnsupported = errors.New("kjit: no executable memory support on this platform")

// Runtime owns the executable memory behind generated kernels. All
// registration goes through one mutex: the underlying memory mappings are
// process-wide shared state, and generation is rare. The mutex is never
// held during kernel execution.
//
// Kernels registered with a Runtime stay valid until Release, normally
// the whole process lifetime.
type Runtime struct {
	mu       sync.Mutex
	segments [][]byte
}

// NewRuntime returns an empty Runtime.
func NewRuntime() *Runtime { return &Runtime{} }

var (
	defaultRuntime     *Runtime
	defaultRuntimeOnce sync.Once
)

// DefaultRuntime returns the process-wide runtime used by the package-level
// dispatch entry points.
func DefaultRuntime() *Runtime {
	defaultRuntimeOnce.Do(func() {
		defaultRuntime = NewRuntime()
	})
	return defaultRuntime
}

// Register copies code into fresh executable memory and returns a callable
// Kernel. On failure (including platforms without exec-memory support) it
// returns the zero Kernel and an error; callers fall back to their
// reference path.
func (r *Runtime) Register(code []byte) (Kernel, error) {
	if len(code) == 0 {
		return Kernel{}, errors.New("kjit: empty instruction stream")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mem, err := allocExec(len(code))
	if err != nil {
		return Kernel{}, fmt.Errorf("kjit: allocating executable memory: %w", err)
	}
	copy(mem, code)
	if err := protectExec(mem); err != nil {
		freeExec(mem)
		return Kernel{}, fmt.Errorf("kjit: marking memory executable: %w", err)
	}
	r.segments = append(r.segments, mem)

	k := Kernel{entry: uintptr(unsafe.Pointer(&mem[0]))}
	if logCodeEnv() {
		slog.Debug("kjit: registered kernel",
			"addr", fmt.Sprintf("%#x", k.entry),
			"size", len(code),
			"code", hex.EncodeToString(code))
	}
	return k, nil
}

// Release unmaps every registered kernel. Kernels obtained from this
// Runtime (and cache entries pointing at them) must not be called
// afterwards. Intended for process teardown and tests.
func (r *Runtime) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, seg := range r.segments {
		if err := freeExec(seg); err != nil && first == nil {
			first = err
		}
	}
	r.segments = nil
	return first
}

// logCodeEnv reports whether KJIT_LOG_CODE asks for a dump of every
// registered instruction stream.
func logCodeEnv() bool {
	v := os.Getenv("KJIT_LOG_CODE")
	return v != "" && v != "0"
}

// ExecSupported reports whether this platform can map executable memory.
func ExecSupported() bool { return execSupported }
