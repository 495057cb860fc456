package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/diagwarp/internal/cloud"
	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/pkg/ckpt"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/mat"
)

type alignOutput struct {
	Cost       float64      `json:"cost"`
	Diagonals  int          `json:"diagonals"`
	Stopped    bool         `json:"stopped"`
	StoppedAt  *int         `json:"stopped_at,omitempty"`
	ResumedAt  *int         `json:"resumed_at,omitempty"`
	Checkpoint string       `json:"checkpoint,omitempty"`
	Distances  uint64       `json:"distances"`
	ElapsedMS  float64      `json:"elapsed_ms"`
	Debug      *debugOutput `json:"debug,omitempty"`
}

func alignCmd() *cli.Command {
	var (
		xPath, yPath string
		outPath      string
		saveAt       int64
		stopAt       int64
		checkpoint   string
		resume       string
		matrices     bool
		ao           alignOptions
	)

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags, distanceFlag())
	flags = append(flags, alignFlags(&ao)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "x",
			Usage:       "path to the first point cloud (.json, .yaml)",
			Required:    true,
			Destination: &xPath,
		},
		&cli.StringFlag{
			Name:        "y",
			Usage:       "path to the second point cloud (.json, .yaml)",
			Required:    true,
			Destination: &yPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "write the result JSON here instead of stdout",
			Destination: &outPath,
		},
		&cli.Int64Flag{
			Name:        "save-at",
			Usage:       "capture the rolling buffers after this diagonal (-1 = never)",
			Value:       -1,
			Destination: &saveAt,
		},
		&cli.Int64Flag{
			Name:        "stop-at",
			Usage:       "stop after this diagonal (-1 = run to the end)",
			Value:       -1,
			Destination: &stopAt,
		},
		&cli.StringFlag{
			Name:        "checkpoint",
			Usage:       "write the --save-at snapshot to this file",
			Destination: &checkpoint,
		},
		&cli.StringFlag{
			Name:        "resume",
			Usage:       "continue from a checkpoint file",
			Destination: &resume,
		},
		&cli.BoolFlag{
			Name:        "matrices",
			Usage:       "include the U, L, UL and S matrices in the output",
			Destination: &matrices,
		},
	)

	return &cli.Command{
		Name:  "align",
		Usage: "Align two point clouds",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyDeviceConfig(cmd, LoadConfig())

			if checkpoint != "" && saveAt < 0 {
				return cli.Exit("error: --checkpoint requires --save-at", 1)
			}
			x, err := cloud.Load(xPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load x: %v", err), 1)
			}
			y, err := cloud.Load(yPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load y: %v", err), 1)
			}
			dist, err := dtw.DistanceByName(distanceName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			box, err := parseBox(ao.box)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			opts := dtw.Options{
				SaveAt:    diagonalFlag(saveAt),
				StopAt:    diagonalFlag(stopAt),
				Box:       box,
				Reverse:   ao.reverse,
				Debug:     matrices,
				Distance:  dist,
				BlockSize: int(blockSize),
			}

			var out alignOutput
			if resume != "" {
				snap, meta, err := ckpt.Load(resume)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: load checkpoint: %v", err), 1)
				}
				// The checkpoint's geometry applies unless given explicitly, and
				// explicit flags must agree with it.
				if !cmd.IsSet("box") {
					sb := snap.Box()
					opts.Box = &sb
				} else if boxOrFull(box, x, y) != snap.Box() {
					return cli.Exit(fmt.Sprintf("error: --box %q does not match checkpoint box %dx%d at (%d,%d)",
						ao.box, snap.Rows, snap.Cols, snap.RowStart, snap.ColStart), 1)
				}
				if !cmd.IsSet("reverse") {
					opts.Reverse = snap.Reverse
				} else if ao.reverse != snap.Reverse {
					return cli.Exit(fmt.Sprintf("error: --reverse=%v conflicts with checkpoint written with reverse=%v", ao.reverse, snap.Reverse), 1)
				}
				if meta.Distance != "" && meta.Distance != distanceName {
					log.Warn("checkpoint was written with a different distance", "checkpoint", meta.Distance, "distance", distanceName)
				}
				opts.Resume = snap
				out.ResumedAt = &meta.Diagonal
				log.Info("resuming alignment", "path", resume, "diagonal", meta.Diagonal)
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
			opts.Stats = stats
			start := time.Now()
			res, err := dc.Align(ctx, x, y, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: align: %v", err), 1)
			}
			elapsed := time.Since(start)
			log.Debug("alignment complete", "backend", dev.Name(), "cost", res.Cost, "diagonals", res.Diagonals, "elapsed", elapsed)

			if checkpoint != "" {
				if res.Snapshot == nil {
					return cli.Exit(fmt.Sprintf("error: diagonal %d was not reached; no checkpoint written", saveAt), 1)
				}
				meta := ckpt.Meta{Box: opts.Box, Reverse: opts.Reverse, Distance: distanceName}
				if err := ckpt.Save(checkpoint, res.Snapshot, meta); err != nil {
					return cli.Exit(fmt.Sprintf("error: write checkpoint: %v", err), 1)
				}
				out.Checkpoint = checkpoint
				log.Info("checkpoint written", "path", checkpoint, "diagonal", res.Snapshot.Diagonal)
			}

			out.Cost = res.Cost
			out.Diagonals = res.Diagonals
			out.Stopped = res.Stopped
			if res.Stopped {
				out.StoppedAt = &res.StoppedAt
			}
			out.Distances = stats.Distances()
			out.ElapsedMS = float64(elapsed.Microseconds()) / 1000
			out.Debug = debugMatrices(res.Debug)
			if err := writeJSON(cmd.Root().Writer, outPath, out); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}
			return nil
		},
	}
}

func boxOrFull(box *dtw.Box, x, y *mat.Dense) dtw.Box {
	if box != nil {
		return *box
	}
	m, _ := x.Dims()
	n, _ := y.Dims()
	return dtw.FullBox(m, n)
}
