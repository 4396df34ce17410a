package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/nicelabs/nice-gpu/internal/linalg"
	"golang.org/x/sync/errgroup"
)

// LaunchConfig describes the thread topology of a kernel launch: GridDim
// blocks of BlockDim threads each. It is derived per call from the operand
// shapes; nothing is cached between launches.
type LaunchConfig struct {
	GridDim  int
	BlockDim int
}

// ConfigFor returns the launch configuration covering n output elements with
// blocks of blockDim threads.
func ConfigFor(n, blockDim int) LaunchConfig {
	return LaunchConfig{
		GridDim:  (n + blockDim - 1) / blockDim,
		BlockDim: blockDim,
	}
}

func (c LaunchConfig) validate() error {
	if c.BlockDim <= 0 {
		return fmt.Errorf("%w: block dimension %d", ErrKernelLaunchFailure, c.BlockDim)
	}
	if c.GridDim < 0 {
		return fmt.Errorf("%w: grid dimension %d", ErrKernelLaunchFailure, c.GridDim)
	}
	return nil
}

// ThreadCtx identifies one thread within a launch: the block it belongs to
// and its index within that block.
type ThreadCtx struct {
	Block  int
	Thread int
	bar    *barrier
}

// SyncThreads blocks until every thread in the same block has reached the
// barrier. Threads in other blocks are unaffected. Every thread of the block
// must reach the barrier the same number of times or the block deadlocks,
// exactly as on real hardware.
func (tc ThreadCtx) SyncThreads() {
	tc.bar.await()
}

// barrier is a reusable block-wide rendezvous point.
type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	phase   uint64
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		return
	}
	phase := b.phase
	for phase == b.phase {
		b.cond.Wait()
	}
}

// Launch runs the kernel over the configured grid and blocks until every
// thread has exited. This is the device-wide synchronization point: when
// Launch returns, all writes performed by the kernel are visible to CopyOut.
//
// Kernels run to completion; there is no mid-flight cancellation. A panic in
// kernel code is a fatal device error and is not recovered.
func (d *Device) Launch(cfg LaunchConfig, kernel func(tc ThreadCtx)) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for block := 0; block < cfg.GridDim; block++ {
		block := block
		g.Go(func() error {
			runBlock(block, cfg.BlockDim, func(tc ThreadCtx) { kernel(tc) })
			return nil
		})
	}
	return g.Wait()
}

// LaunchShared is Launch with a per-block shared scratch slice of sharedLen
// elements, zeroed at block start. All threads of a block see the same slice;
// access ordering is the kernel's responsibility via SyncThreads.
func LaunchShared[T linalg.Float](d *Device, cfg LaunchConfig, sharedLen int, kernel func(tc ThreadCtx, shared []T)) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if sharedLen < 0 {
		return fmt.Errorf("%w: shared scratch length %d", ErrKernelLaunchFailure, sharedLen)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for block := 0; block < cfg.GridDim; block++ {
		block := block
		g.Go(func() error {
			shared := make([]T, sharedLen)
			runBlock(block, cfg.BlockDim, func(tc ThreadCtx) { kernel(tc, shared) })
			return nil
		})
	}
	return g.Wait()
}

// runBlock spawns the threads of one block and waits for all of them. The
// threads share one barrier; SyncThreads never crosses block boundaries.
func runBlock(block, blockDim int, thread func(tc ThreadCtx)) {
	bar := newBarrier(blockDim)
	var wg sync.WaitGroup
	wg.Add(blockDim)
	for t := 0; t < blockDim; t++ {
		tc := ThreadCtx{Block: block, Thread: t, bar: bar}
		go func() {
			defer wg.Done()
			thread(tc)
		}()
	}
	wg.Wait()
}
