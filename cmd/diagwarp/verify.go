package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/samcharles93/diagwarp/internal/cloud"
	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/internal/refdtw"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/mat"
)

type verifyCase struct {
	Trial     int     `json:"trial"`
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	Reverse   bool    `json:"reverse"`
	Device    float64 `json:"device"`
	Reference float64 `json:"reference"`
	RelErr    float64 `json:"rel_err"`
	OK        bool    `json:"ok"`
	// CornerStep is the reference path's step into the last cell.
	CornerStep string `json:"corner_step"`
}

func verifyCmd() *cli.Command {
	var (
		xPath, yPath string
		trials       int64
		rows, cols   int64
		dim          int64
		seed         int64
		tolerance    float64
		jsonOut      bool
		ao           alignOptions
	)

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags, distanceFlag())
	flags = append(flags, alignFlags(&ao)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "x",
			Usage:       "first point cloud (random when empty)",
			Destination: &xPath,
		},
		&cli.StringFlag{
			Name:        "y",
			Usage:       "second point cloud (random when empty)",
			Destination: &yPath,
		},
		&cli.Int64Flag{
			Name:        "trials",
			Usage:       "random trials when no clouds are given",
			Value:       20,
			Destination: &trials,
		},
		&cli.Int64Flag{
			Name:        "rows",
			Usage:       "max points in random X",
			Value:       64,
			Destination: &rows,
		},
		&cli.Int64Flag{
			Name:        "cols",
			Usage:       "max points in random Y",
			Value:       64,
			Destination: &cols,
		},
		&cli.Int64Flag{
			Name:        "dim",
			Usage:       "dimension of random points",
			Value:       3,
			Destination: &dim,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed",
			Value:       1,
			Destination: &seed,
		},
		&cli.Float64Flag{
			Name:        "tolerance",
			Usage:       "max relative error between device and reference cost",
			Value:       1e-4,
			Destination: &tolerance,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print every case as JSON",
			Destination: &jsonOut,
		},
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Compare the device sweep against the full-matrix reference",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDeviceConfig(cmd, LoadConfig())

			dist, err := dtw.DistanceByName(distanceName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			box, err := parseBox(ao.box)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if (xPath == "") != (yPath == "") {
				return cli.Exit("error: --x and --y must be given together", 1)
			}
			if xPath == "" && (rows < 1 || cols < 1 || dim < 1) {
				return cli.Exit("error: --rows, --cols and --dim must be positive", 1)
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

			check := func(trial int, x, y *mat.Dense, b *dtw.Box, reverse bool) (verifyCase, error) {
				m, _ := x.Dims()
				n, _ := y.Dims()
				full := dtw.FullBox(m, n)
				if b != nil {
					full = *b
				}
				res, err := dc.Align(ctx, x, y, dtw.Options{
					Box:       b,
					Reverse:   reverse,
					Distance:  dist,
					BlockSize: int(blockSize),
				})
				if err != nil {
					return verifyCase{}, err
				}
				csm, err := refdtw.CrossDistances(x, y, full, reverse, dist)
				if err != nil {
					return verifyCase{}, err
				}
				ref := refdtw.Align(csm)
				rel := math.Abs(res.Cost-ref.Cost) / math.Max(1, math.Abs(ref.Cost))
				return verifyCase{
					Trial:      trial,
					Rows:       full.Rows(),
					Cols:       full.Cols(),
					Reverse:    reverse,
					Device:     res.Cost,
					Reference:  ref.Cost,
					RelErr:     rel,
					OK:         rel <= tolerance,
					CornerStep: ref.CornerStep().String(),
				}, nil
			}

			var cases []verifyCase
			if xPath != "" {
				x, err := cloud.Load(xPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: load x: %v", err), 1)
				}
				y, err := cloud.Load(yPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: load y: %v", err), 1)
				}
				vc, err := check(0, x, y, box, ao.reverse)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				cases = append(cases, vc)
			} else {
				rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
				for trial := range int(trials) {
					m := 1 + rng.IntN(int(rows))
					n := 1 + rng.IntN(int(cols))
					x := cloud.Random(rng, m, int(dim))
					y := cloud.Random(rng, n, int(dim))
					vc, err := check(trial, x, y, nil, trial%2 == 1)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: trial %d: %v", trial, err), 1)
					}
					cases = append(cases, vc)
				}
			}

			failed := 0
			w := cmd.Root().Writer
			for _, vc := range cases {
				if !vc.OK {
					failed++
					log.Error("cost mismatch", "trial", vc.Trial, "rows", vc.Rows, "cols", vc.Cols,
						"device", vc.Device, "reference", vc.Reference, "rel_err", vc.RelErr)
					continue
				}
				log.Debug("case verified", "trial", vc.Trial, "cost", vc.Device, "corner_step", vc.CornerStep)
			}
			if jsonOut {
				if err := writeJSON(w, "", cases); err != nil {
					return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
				}
			} else {
				_, _ = fmt.Fprintf(w, "%d/%d cases within tolerance %g (backend %s, distance %s)\n",
					len(cases)-failed, len(cases), tolerance, dev.Name(), distanceName)
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("error: %d of %d cases differ from the reference", failed, len(cases)), 1)
			}
			return nil
		},
	}
}
