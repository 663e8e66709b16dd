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

import "testing"

func TestTierProperties(t *testing.T) {
	cases := []struct {
		tier    Tier
		name    string
		lanes   int
		bytes   int
		numRegs int
	}{
		{TierNone, "none", 8, 32, 16},
		{TierAVX2, "avx2", 8, 32, 16},
		{TierAVX512, "avx512", 16, 64, 32},
	}
	for _, tc := range cases {
		if got := tc.tier.String(); got != tc.name {
			t.Errorf("%v.String() = %q, want %q", int(tc.tier), got, tc.name)
		}
		if got := tc.tier.Lanes(); got != tc.lanes {
			t.Errorf("%s.Lanes() = %d, want %d", tc.name, got, tc.lanes)
		}
		if got := tc.tier.VectorBytes(); got != tc.bytes {
			t.Errorf("%s.VectorBytes() = %d, want %d", tc.name, got, tc.bytes)
		}
		if got := tc.tier.NumVecRegs(); got != tc.numRegs {
			t.Errorf("%s.NumVecRegs() = %d, want %d", tc.name, got, tc.numRegs)
		}
		if got := tc.tier.VecReg(3).Bytes(); got != tc.bytes {
			t.Errorf("%s.VecReg(3).Bytes() = %d, want %d", tc.name, got, tc.bytes)
		}
		if got := tc.tier.VecReg(3).Index(); got != 3 {
			t.Errorf("%s.VecReg(3).Index() = %d, want 3", tc.name, got)
		}
	}
}

func TestNoJITEnv(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"1", true},
		{"yes", true},
	}
	for _, tc := range cases {
		t.Setenv("KJIT_NO_JIT", tc.value)
		if got := NoJITEnv(); got != tc.want {
			t.Errorf("KJIT_NO_JIT=%q: NoJITEnv() = %v, want %v", tc.value, got, tc.want)
		}
	}
}
