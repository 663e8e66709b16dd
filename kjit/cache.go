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

import "sync"

// Cache maps specialization keys to compiled kernels. The zero value is
// ready to use. One key maps to at most one kernel for the cache's
// lifetime; there is no eviction because the key space is bounded by the
// handful of configurations a model actually exercises.
type Cache[K comparable] struct {
	mu      sync.Mutex
	kernels map[K]Kernel
}

// GetOrCreate returns the kernel cached under key, invoking gen exactly
// once on first use. The cache mutex is held across gen, so concurrent
// first requests for the same key generate once and everyone else waits;
// generation is rare and short relative to kernel execution.
//
// A failed generation (gen returning the zero Kernel) is cached too:
// callers must treat an invalid Kernel as "no fast path available" and
// fall back, and there is no point retrying a deterministic failure.
func (c *Cache[K]) GetOrCreate(key K, gen func() Kernel) Kernel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.kernels[key]; ok {
		return k
	}
	if c.kernels == nil {
		c.kernels = make(map[K]Kernel)
	}
	k := gen()
	c.kernels[key] = k
	return k
}

// Len returns the number of cached specializations.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kernels)
}

// Reset drops every cached entry. It does not release the executable
// memory behind the kernels; that belongs to the Runtime. Intended for
// tests that need a clean cache between specialization cases.
func (c *Cache[K]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernels = nil
}
