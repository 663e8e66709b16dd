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
	"sync"
	"sync/atomic"
	"testing"
)

func TestCacheGeneratesOnce(t *testing.T) {
	var c Cache[int]
	calls := 0
	gen := func() Kernel {
		calls++
		return Kernel{entry: 0x1000}
	}
	k1 := c.GetOrCreate(7, gen)
	k2 := c.GetOrCreate(7, gen)
	if calls != 1 {
		t.Errorf("gen called %d times, want 1", calls)
	}
	if k1 != k2 {
		t.Error("repeated lookups returned different kernels")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheDistinctKeys(t *testing.T) {
	type key struct {
		blockSize int
		weighted  bool
	}
	var c Cache[key]
	next := uintptr(0x1000)
	gen := func() Kernel {
		next += 0x100
		return Kernel{entry: next}
	}
	a := c.GetOrCreate(key{64, false}, gen)
	b := c.GetOrCreate(key{64, true}, gen)
	if a == b {
		t.Error("distinct keys shared a kernel")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

// A failed generation is cached: gen must not run again for the same key.
func TestCacheCachesFailure(t *testing.T) {
	var c Cache[string]
	calls := 0
	gen := func() Kernel {
		calls++
		return Kernel{}
	}
	k := c.GetOrCreate("bad", gen)
	if k.Valid() {
		t.Error("zero kernel reported valid")
	}
	c.GetOrCreate("bad", gen)
	if calls != 1 {
		t.Errorf("gen called %d times after failure, want 1", calls)
	}
}

func TestCacheReset(t *testing.T) {
	var c Cache[int]
	c.GetOrCreate(1, func() Kernel { return Kernel{entry: 0x1000} })
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", c.Len())
	}
	calls := 0
	c.GetOrCreate(1, func() Kernel {
		calls++
		return Kernel{entry: 0x2000}
	})
	if calls != 1 {
		t.Error("gen not invoked after Reset")
	}
}

func TestCacheConcurrentFirstUse(t *testing.T) {
	var c Cache[int]
	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCreate(42, func() Kernel {
				calls.Add(1)
				return Kernel{entry: 0x1000}
			})
		}()
	}
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Errorf("gen called %d times under contention, want 1", n)
	}
}
