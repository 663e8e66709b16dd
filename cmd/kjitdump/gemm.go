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
	"context"

	"github.com/urfave/cli/v3"

	"github.com/ajroetker/go-kerneljit/kjit/gemm"
)

func gemmCmd() *cli.Command {
	var (
		tierName string
		format   string
		accum    bool
		mc       int64
		nc       int64
		kc       int64
	)

	return &cli.Command{
		Name:  "gemm",
		Usage: "Dump a u8*s8->s32 micro-kernel",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tier", Usage: "avx2 or avx512 (default: detected)", Destination: &tierName},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "hex, asm or json", Value: "hex", Destination: &format},
			&cli.BoolFlag{Name: "accum", Usage: "accumulate into existing C", Destination: &accum},
			&cli.IntFlag{Name: "mc", Usage: "tile rows", Value: 14, Destination: &mc},
			&cli.IntFlag{Name: "nc", Usage: "tile columns", Value: 32, Destination: &nc},
			&cli.IntFlag{Name: "kc", Usage: "tile k-depth", Value: 256, Destination: &kc},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			tier, err := parseTier(tierName)
			if err != nil {
				return err
			}
			params := gemm.DefaultBlocking(tier)
			code, err := gemm.GenerateCode(tier, params, accum, int(mc), int(nc), int(kc))
			if err != nil {
				return err
			}
			return emit(format, dumpMeta{
				Kind: "gemm",
				Tier: tier.String(),
				Spec: map[string]any{
					"accumulate": accum,
					"mc":         mc,
					"nc":         nc,
					"kc":         kc,
					"blocking":   params,
				},
			}, code)
		},
	}
}
