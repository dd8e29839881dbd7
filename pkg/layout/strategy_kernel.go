package layout

import (
	"context"
	"sync"

	"github.com/dd0wney/cluso-layout/pkg/force"
	"github.com/dd0wney/cluso-layout/pkg/kernel"
)

// kernelStrategy runs one pass of the force kernels per step on a compute
// device. The device is opened per layout and closed on Destroy.
type kernelStrategy struct {
	mu     sync.RWMutex
	dev    kernel.Device
	prog   *kernel.ForceProgram
	pins   pinSource
	drags  DragReader
	center Position

	destroyOnce sync.Once
	destroyed   bool
}

func newKernelStrategy(dev kernel.Device, g *force.Graph, cfg force.Config, drags DragReader, opts ...kernel.ProgramOption) (*kernelStrategy, error) {
	prog, err := kernel.Compile(dev, g, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &kernelStrategy{
		dev:    dev,
		prog:   prog,
		pins:   newPinSource(drags, g),
		drags:  drags,
		center: cfg.Center,
	}, nil
}

func (s *kernelStrategy) Step(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return true, nil
	}
	s.prog.SetPins(s.pins.lookup)
	return s.prog.Step(ctx)
}

func (s *kernelStrategy) NodePosition(id string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolvePosition(s.drags, id, s.center, s.prog.Position)
}

func (s *kernelStrategy) Progress() (int, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prog.Iteration(), s.prog.Alpha()
}

// Destroy closes the device. Buffers stay readable so NodePosition keeps
// answering after the run ends.
func (s *kernelStrategy) Destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		s.destroyed = true
		s.mu.Unlock()
		_ = s.dev.Close()
	})
}

func (s *kernelStrategy) Backend() Backend { return GpuKernel }
