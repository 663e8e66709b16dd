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

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"golang.org/x/arch/x86/x86asm"

	"github.com/ajroetker/go-kerneljit/kjit"
)

// parseTier maps a --tier flag value; empty selects the detected tier.
func parseTier(s string) (kjit.Tier, error) {
	switch s {
	case "":
		t := kjit.CurrentTier()
		if t == kjit.TierNone {
			return t, fmt.Errorf("no vector tier detected on this host; pass --tier")
		}
		return t, nil
	case "avx2":
		return kjit.TierAVX2, nil
	case "avx512":
		return kjit.TierAVX512, nil
	default:
		return kjit.TierNone, fmt.Errorf("unknown tier %q (want avx2 or avx512)", s)
	}
}

// dumpMeta is the JSON envelope around a generated kernel.
type dumpMeta struct {
	Kind string         `json:"kind"`
	Tier string         `json:"tier"`
	Spec map[string]any `json:"spec"`
	Size int            `json:"size"`
	Code string         `json:"code"`
}

// emit prints code in the requested format: JSON metadata, disassembly, or a
// hex dump by default.
func emit(format string, meta dumpMeta, code []byte) error {
	switch format {
	case "json":
		meta.Size = len(code)
		meta.Code = hex.EncodeToString(code)
		out, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(out))
		return err
	case "asm":
		return disasm(code)
	case "hex":
		fmt.Print(hex.Dump(code))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want hex, asm or json)", format)
	}
}

// disasm prints a best-effort linear disassembly. Decode errors stop at the
// offending byte rather than resynchronizing; the generators only emit
// instructions the decoder knows.
func disasm(code []byte) error {
	pc := 0
	for pc < len(code) {
		inst, err := x86asm.Decode(code[pc:], 64)
		if err != nil {
			return fmt.Errorf("decode failed at offset %#x: %w", pc, err)
		}
		fmt.Printf("%6x: %-24s %s\n",
			pc,
			hex.EncodeToString(code[pc:pc+inst.Len]),
			x86asm.IntelSyntax(inst, uint64(pc), nil))
		pc += inst.Len
	}
	return nil
}
