package device

import (
	"fmt"
	"runtime"
	"sync"
)

type blockTask struct {
	fn          KernelFunc
	args        Args
	grid, block Dim3
	start, end  int
	done        chan error
}

// blockPool executes ranges of launch blocks on a fixed set of goroutines.
// Completion is collected on done channels recycled through doneSlots so a
// launch does not allocate a channel.
type blockPool struct {
	size      int
	tasks     chan blockTask
	doneSlots chan chan error
	closeOnce sync.Once
}

func newBlockPool(size int) *blockPool {
	if size < 1 {
		size = max(runtime.GOMAXPROCS(0), 1)
	}
	p := &blockPool{
		size:      size,
		tasks:     make(chan blockTask, size*2),
		doneSlots: make(chan chan error, size),
	}
	for range size {
		p.doneSlots <- make(chan error, size)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				task.done <- runBlocks(task.fn, task.args, task.grid, task.block, task.start, task.end)
			}
		}()
	}
	return p
}

// run executes every block of the launch and returns the first error.
// Launches with a single block run on the calling goroutine.
func (p *blockPool) run(fn KernelFunc, args Args, grid, block Dim3) error {
	blocks := grid.Size()
	workers := min(p.size, blocks)
	if workers <= 1 {
		return runBlocks(fn, args, grid, block, 0, blocks)
	}

	chunk := (blocks + workers - 1) / workers
	done := <-p.doneSlots

	sent := 0
	for w := range workers {
		start := w * chunk
		if start >= blocks {
			break
		}
		p.tasks <- blockTask{
			fn:    fn,
			args:  args,
			grid:  grid,
			block: block,
			start: start,
			end:   min(start+chunk, blocks),
			done:  done,
		}
		sent++
	}

	var first error
	for range sent {
		if err := <-done; err != nil && first == nil {
			first = err
		}
	}
	p.doneSlots <- done
	return first
}

func (p *blockPool) close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
}

func runBlocks(fn KernelFunc, args Args, grid, block Dim3, start, end int) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = launchPanic(rec)
		}
	}()

	t := Thread{GridDim: grid, BlockDim: block}
	for b := start; b < end; b++ {
		t.BlockIdx = Dim3{
			X: b % grid.X,
			Y: (b / grid.X) % grid.Y,
			Z: b / (grid.X * grid.Y),
		}
		for z := range block.Z {
			for y := range block.Y {
				for x := range block.X {
					t.ThreadIdx = Dim3{X: x, Y: y, Z: z}
					fn(t, args)
				}
			}
		}
	}
	return nil
}

func launchPanic(rec any) error {
	if recErr, ok := rec.(error); ok {
		return fmt.Errorf("%w: %w", ErrLaunch, recErr)
	}
	return fmt.Errorf("%w: %v", ErrLaunch, rec)
}
