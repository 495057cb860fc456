package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/diagwarp/pkg/device"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"github.com/urfave/cli/v3"
)

var (
	backend      string
	workers      int64
	memoryLimit  int64
	blockSize    int64
	distanceName string
	logLevel     string
	logFormat    string
	debug        bool
)

func commonDeviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "execution backend (auto, cpu, cuda)",
			Value:       device.Auto,
			Destination: &backend,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "concurrent blocks on the cpu backend (0 = GOMAXPROCS)",
			Destination: &workers,
		},
		&cli.Int64Flag{
			Name:        "memory-limit",
			Usage:       "device allocation budget in bytes (0 = unlimited)",
			Destination: &memoryLimit,
		},
		&cli.Int64Flag{
			Name:        "block-size",
			Usage:       "max threads per launch block",
			Value:       dtw.DefaultBlockSize,
			Destination: &blockSize,
		},
	}
}

func distanceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "distance",
		Usage:       "point distance (" + strings.Join(dtw.DistanceNames(), ", ") + ")",
		Value:       "euclidean",
		Destination: &distanceName,
	}
}

// alignOptions holds the per-alignment flags shared by align and verify.
type alignOptions struct {
	box     string
	reverse bool
}

func alignFlags(o *alignOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "box",
			Usage:       "restrict to rows and cols of X and Y as rowStart:rowEnd,colStart:colEnd (inclusive)",
			Destination: &o.box,
		},
		&cli.BoolFlag{
			Name:        "reverse",
			Usage:       "traverse the box from its bottom-right corner",
			Destination: &o.reverse,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func openDevice() (device.Device, error) {
	return device.Open(backend, device.Options{
		Workers:     int(workers),
		MemoryLimit: memoryLimit,
	})
}

// parseBox parses "r0:r1,c0:c1". An empty string means the full grid.
func parseBox(s string) (*dtw.Box, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	rowPart, colPart, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("invalid box %q (expected rowStart:rowEnd,colStart:colEnd)", s)
	}
	r0, r1, err := parseRange(rowPart)
	if err != nil {
		return nil, fmt.Errorf("invalid box rows %q: %w", rowPart, err)
	}
	c0, c1, err := parseRange(colPart)
	if err != nil {
		return nil, fmt.Errorf("invalid box cols %q: %w", colPart, err)
	}
	return &dtw.Box{RowStart: r0, RowEnd: r1, ColStart: c0, ColEnd: c1}, nil
}

func parseRange(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, errors.New("missing ':'")
	}
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// diagonalFlag converts a flag value to an Options diagonal; negative
// values leave the option unset.
func diagonalFlag(v int64) *int {
	if v < 0 {
		return nil
	}
	return dtw.At(int(v))
}
