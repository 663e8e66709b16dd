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

	"github.com/ajroetker/go-kerneljit/kjit/embedding"
)

func embeddingCmd() *cli.Command {
	var (
		tierName   string
		format     string
		blockSize  int64
		weighted   bool
		positional bool
		normalize  bool
		prefetch   int64
		quantized  bool
		indices64  bool
	)

	return &cli.Command{
		Name:  "embedding",
		Usage: "Dump a sparse-lengths-sum kernel",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tier", Usage: "avx2 or avx512 (default: detected)", Destination: &tierName},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "hex, asm or json", Value: "hex", Destination: &format},
			&cli.IntFlag{Name: "block-size", Aliases: []string{"b"}, Usage: "embedding dimension", Value: 64, Destination: &blockSize},
			&cli.BoolFlag{Name: "weighted", Usage: "apply per-index weights", Destination: &weighted},
			&cli.BoolFlag{Name: "positional", Usage: "positionally indexed weights", Destination: &positional},
			&cli.BoolFlag{Name: "normalize", Usage: "normalize output rows by lengths", Destination: &normalize},
			&cli.IntFlag{Name: "prefetch", Usage: "prefetch distance in indices", Destination: &prefetch},
			&cli.BoolFlag{Name: "quantized", Aliases: []string{"q"}, Usage: "fused 8-bit quantized rows", Destination: &quantized},
			&cli.BoolFlag{Name: "indices64", Usage: "64-bit indices", Destination: &indices64},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			tier, err := parseTier(tierName)
			if err != nil {
				return err
			}
			spec := embedding.KernelSpec{
				Tier:       tier,
				BlockSize:  int(blockSize),
				Weighted:   weighted,
				Positional: positional,
				Normalize:  normalize,
				Prefetch:   int(prefetch),
				Quantized8: quantized,
				Indices64:  indices64,
			}
			code, err := embedding.GenerateCode(spec)
			if err != nil {
				return err
			}
			return emit(format, dumpMeta{
				Kind: "embedding",
				Tier: tier.String(),
				Spec: map[string]any{
					"blockSize":  spec.BlockSize,
					"weighted":   spec.Weighted,
					"positional": spec.Positional,
					"normalize":  spec.Normalize,
					"prefetch":   spec.Prefetch,
					"quantized8": spec.Quantized8,
					"indices64":  spec.Indices64,
				},
			}, code)
		},
	}
}
