package kernel

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxThreads bounds a single software dispatch
const DefaultMaxThreads = 1 << 20

// Software is a CPU device that splits each dispatch into contiguous
// ranges and runs one goroutine lane per range
type Software struct {
	lanes      int
	maxThreads int
	closed     atomic.Bool
}

// NewSoftware creates a software device. lanes <= 0 uses GOMAXPROCS.
func NewSoftware(lanes int) *Software {
	if lanes <= 0 {
		lanes = runtime.GOMAXPROCS(0)
	}
	return &Software{lanes: lanes, maxThreads: DefaultMaxThreads}
}

func (s *Software) Name() string    { return DeviceSoftware }
func (s *Software) Lanes() int      { return s.lanes }
func (s *Software) MaxThreads() int { return s.maxThreads }

// Dispatch runs k over [0, threads). A panicking kernel fails the dispatch
// instead of the process.
func (s *Software) Dispatch(ctx context.Context, threads int, k Kernel) error {
	if s.closed.Load() {
		return ErrDeviceClosed
	}
	if threads > s.maxThreads {
		return fmt.Errorf("%w: %d > %d", ErrTooManyThreads, threads, s.maxThreads)
	}
	if threads <= 0 {
		return nil
	}

	chunk := (threads + s.lanes - 1) / s.lanes
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lanes)

	for start := 0; start < threads; start += chunk {
		end := min(start+chunk, threads)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("kernel panic at lane %d: %v", start/chunk, r)
				}
			}()
			for i := start; i < end; i++ {
				if i&1023 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				k(i)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close marks the device unusable. It is safe to call more than once.
func (s *Software) Close() error {
	s.closed.Store(true)
	return nil
}
