package batch

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/samcharles93/diagwarp/internal/logger"
	"github.com/samcharles93/diagwarp/pkg/dtw"
	"golang.org/x/sync/errgroup"
)

// Options configures a batch run.
type Options struct {
	// Concurrency bounds the alignments in flight. Zero means GOMAXPROCS.
	Concurrency int
	BlockSize   int
	Stats       dtw.StatsSink
	// Observe is called after every alignment, from the worker goroutine.
	Observe func(res *dtw.Result, err error, elapsed time.Duration)
}

// Outcome is the result of one pair. A failed pair carries Error and does
// not stop the batch.
type Outcome struct {
	Name      string        `json:"name"`
	Cost      float64       `json:"cost"`
	Diagonals int           `json:"diagonals"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Error     string        `json:"error,omitempty"`

	err error
}

func (o Outcome) Err() error {
	return o.err
}

// Run aligns every pair of m, each with its own Align call. Outcomes are in
// manifest order. Only cancellation of ctx aborts the batch.
func Run(ctx context.Context, c *dtw.Context, m *Manifest, dir string, opts Options) ([]Outcome, error) {
	dist, err := dtw.DistanceByName(m.Distance)
	if err != nil {
		return nil, err
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	log := logger.FromContext(ctx).With("component", "batch")

	outcomes := make([]Outcome, len(m.Pairs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, pair := range m.Pairs {
		g.Go(func() error {
			start := time.Now()
			res, err := alignPair(gCtx, c, pair, dir, dtw.Options{
				Box:       pair.Box,
				Reverse:   pair.Reverse,
				Distance:  dist,
				Stats:     opts.Stats,
				BlockSize: opts.BlockSize,
			})
			elapsed := time.Since(start)
			if opts.Observe != nil {
				opts.Observe(res, err, elapsed)
			}

			out := Outcome{Name: pair.Name, Elapsed: elapsed, err: err}
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			case err != nil:
				out.Error = err.Error()
				log.Warn("pair failed", "pair", pair.Name, "error", err)
			default:
				out.Cost = res.Cost
				out.Diagonals = res.Diagonals
				log.Debug("pair aligned", "pair", pair.Name, "cost", res.Cost, "elapsed", elapsed)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func alignPair(ctx context.Context, c *dtw.Context, p Pair, dir string, opts dtw.Options) (*dtw.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x, err := p.X.Load(dir)
	if err != nil {
		return nil, err
	}
	y, err := p.Y.Load(dir)
	if err != nil {
		return nil, err
	}
	return c.Align(ctx, x, y, opts)
}

// Failed counts the outcomes that carry an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Error != "" {
			n++
		}
	}
	return n
}
