package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/samcharles93/diagwarp/internal/cloud"
	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/internal/refdtw"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"github.com/urfave/cli/v3"
)

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		rows, cols int64
		dim        int64
		seed       int64
		walk       bool
		reference  bool
	)

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags, distanceFlag())
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "rows",
			Usage:       "points in X",
			Value:       2048,
			Destination: &rows,
		},
		&cli.Int64Flag{
			Name:        "cols",
			Usage:       "points in Y",
			Value:       2048,
			Destination: &cols,
		},
		&cli.Int64Flag{
			Name:        "dim",
			Usage:       "point dimension",
			Value:       3,
			Destination: &dim,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed",
			Value:       1,
			Destination: &seed,
		},
		&cli.BoolFlag{
			Name:        "walk",
			Usage:       "use random walks instead of uniform points",
			Destination: &walk,
		},
		&cli.BoolFlag{
			Name:        "reference",
			Usage:       "also time the full-matrix reference",
			Destination: &reference,
		},
	)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Time alignments of random point clouds",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDeviceConfig(cmd, LoadConfig())

			if rows < 1 || cols < 1 || dim < 1 || benchRuns < 1 {
				return cli.Exit("error: --rows, --cols, --dim and --runs must be positive", 1)
			}
			dist, err := dtw.DistanceByName(distanceName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)+1))
			gen := cloud.Random
			if walk {
				gen = cloud.Walk
			}
			x := gen(rng, int(rows), int(dim))
			y := gen(rng, int(cols), int(dim))

			dev, err := openDevice()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open device: %v", err), 1)
			}
			defer func() { _ = dev.Close() }()
			dc, err := dtw.NewContext(dev)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			opts := dtw.Options{Distance: dist, BlockSize: int(blockSize)}

			log.Info("benchmarking", "backend", dev.Name(), "rows", rows, "cols", cols, "dim", dim)
			for i := range int(warmupRuns) {
				if _, err := dc.Align(ctx, x, y, opts); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup %d: %v", i, err), 1)
				}
			}

			w := cmd.Root().Writer
			cells := float64(rows * cols)
			var total time.Duration
			var cost float64
			for i := range int(benchRuns) {
				start := time.Now()
				res, err := dc.Align(ctx, x, y, opts)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: run %d: %v", i, err), 1)
				}
				elapsed := time.Since(start)
				total += elapsed
				cost = res.Cost
				_, _ = fmt.Fprintf(w, "run %d: %v (%.1f Mcells/s)\n", i+1, elapsed.Round(time.Microsecond), cells/elapsed.Seconds()/1e6)
			}
			avg := total / time.Duration(benchRuns)
			_, _ = fmt.Fprintf(w, "\n%s %dx%d dim %d: avg %v, %.1f Mcells/s, cost %.6g\n",
				dev.Name(), rows, cols, dim, avg.Round(time.Microsecond), cells/avg.Seconds()/1e6, cost)

			if reference {
				start := time.Now()
				want, err := refdtw.Cost(x, y, dtw.FullBox(int(rows), int(cols)), false, dist)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: reference: %v", err), 1)
				}
				elapsed := time.Since(start)
				_, _ = fmt.Fprintf(w, "reference: %v (%.1f Mcells/s), cost %.6g\n",
					elapsed.Round(time.Microsecond), cells/elapsed.Seconds()/1e6, want)
			}
			return nil
		},
	}
}
