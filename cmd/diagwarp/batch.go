package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/diagwarp/internal/batch"
	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"github.com/urfave/cli/v3"
)

func batchCmd() *cli.Command {
	var (
		manifestPath string
		outPath      string
		concurrency  int64
	)

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "manifest",
			Aliases:     []string{"f"},
			Usage:       "path to the YAML manifest of pairs",
			Required:    true,
			Destination: &manifestPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "write the outcomes JSON here instead of stdout",
			Destination: &outPath,
		},
		&cli.Int64Flag{
			Name:        "concurrency",
			Aliases:     []string{"j"},
			Usage:       "alignments in flight (0 = GOMAXPROCS)",
			Destination: &concurrency,
		},
	)

	return &cli.Command{
		Name:  "batch",
		Usage: "Align every pair listed in a manifest",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyBatchConfig(cmd, LoadConfig(), &concurrency)

			m, dir, err := batch.LoadManifest(manifestPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			dev, err := openDevice()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open device: %v", err), 1)
			}
			defer func() { _ = dev.Close() }()
			dc, err := dtw.NewContext(dev)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			stats := &dtw.Stats{}
			start := time.Now()
			outcomes, err := batch.Run(ctx, dc, m, dir, batch.Options{
				Concurrency: int(concurrency),
				BlockSize:   int(blockSize),
				Stats:       stats,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: batch: %v", err), 1)
			}
			failed := batch.Failed(outcomes)
			log.Info("batch complete",
				"pairs", len(outcomes),
				"failed", failed,
				"distances", stats.Distances(),
				"elapsed", time.Since(start))

			if err := writeJSON(cmd.Root().Writer, outPath, outcomes); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("error: %d of %d pairs failed", failed, len(outcomes)), 1)
			}
			return nil
		},
	}
}
