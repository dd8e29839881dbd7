package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

var (
	// ErrNoDevice is returned when no compute device could be opened
	ErrNoDevice = errors.New("no compute device available")

	// ErrTooManyThreads is returned when a dispatch or program needs more
	// threads than the device provides
	ErrTooManyThreads = errors.New("thread count exceeds device limit")

	// ErrDeviceClosed is returned by Dispatch after Close
	ErrDeviceClosed = errors.New("device closed")
)

// Kernel is executed once per thread index. A kernel may only write the
// output slots owned by its thread.
type Kernel func(thread int)

// Device runs kernels data-parallel
type Device interface {
	Name() string
	Lanes() int
	MaxThreads() int

	// Dispatch runs k for every thread in [0, threads) and blocks until all
	// lanes finish
	Dispatch(ctx context.Context, threads int, k Kernel) error

	Close() error
}

// Opener creates a device. It returns an error when the backing runtime is
// not available on this host.
type Opener func(ctx context.Context) (Device, error)

const (
	DeviceAuto     = "auto"
	DeviceSoftware = "software"
	DeviceNone     = "none"
)

// Registry maps device names to openers. The software device is always
// present. Hosts build one Registry and pass its openers down.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
	order   []string
}

// NewRegistry returns a registry holding only the software device
func NewRegistry() *Registry {
	return &Registry{
		openers: map[string]Opener{
			DeviceSoftware: func(context.Context) (Device, error) { return NewSoftware(0), nil },
		},
	}
}

// Register makes a device available under name. Devices registered here
// are preferred over the software device when opening "auto", in
// registration order. Registering an existing name replaces its opener.
func (r *Registry) Register(name string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.openers[name]; !exists && name != DeviceSoftware {
		r.order = append(r.order, name)
	}
	r.openers[name] = open
}

// Unregister removes a previously registered device
func (r *Registry) Unregister(name string) {
	if name == DeviceSoftware {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.openers, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
}

// Devices lists the names Open accepts, apart from "auto" and "none"
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.openers))
	for name := range r.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open probes and returns a ready device. "auto" tries every registered
// device in preference order and ends with the software device. "none"
// always fails with ErrNoDevice. Every device must pass a self-test before
// it is handed out.
func (r *Registry) Open(ctx context.Context, name string) (Device, error) {
	switch name {
	case DeviceNone:
		return nil, ErrNoDevice
	case "", DeviceAuto:
		return r.openAuto(ctx)
	}

	r.mu.RLock()
	open, ok := r.openers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown device %q", ErrNoDevice, name)
	}
	return probe(ctx, name, open)
}

// OpenerFor binds a device name to an Opener
func (r *Registry) OpenerFor(name string) Opener {
	return func(ctx context.Context) (Device, error) {
		return r.Open(ctx, name)
	}
}

func (r *Registry) openAuto(ctx context.Context) (Device, error) {
	r.mu.RLock()
	names := append(slices.Clone(r.order), DeviceSoftware)
	openers := make([]Opener, len(names))
	for i, n := range names {
		openers[i] = r.openers[n]
	}
	r.mu.RUnlock()

	var errs []error
	for i, name := range names {
		dev, err := probe(ctx, name, openers[i])
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDevice, errors.Join(errs...))
}

// Open opens a built-in device by name
func Open(ctx context.Context, name string) (Device, error) {
	return NewRegistry().Open(ctx, name)
}

// OpenerFor binds a built-in device name to an Opener
func OpenerFor(name string) Opener {
	return NewRegistry().OpenerFor(name)
}

func probe(ctx context.Context, name string, open Opener) (Device, error) {
	dev, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", name, err)
	}
	if err := selfTest(ctx, dev); err != nil {
		dev.Close()
		return nil, fmt.Errorf("device %s failed self-test: %w", name, err)
	}
	return dev, nil
}

// selfTest runs a trivial doubling kernel and checks every output slot
func selfTest(ctx context.Context, dev Device) error {
	threads := 64
	if m := dev.MaxThreads(); m < threads {
		threads = m
	}
	if threads <= 0 {
		return fmt.Errorf("%w: device reports %d threads", ErrTooManyThreads, threads)
	}

	in := make([]float64, threads)
	out := make([]float64, threads)
	for i := range in {
		in[i] = float64(i) + 0.5
	}
	if err := dev.Dispatch(ctx, threads, func(i int) { out[i] = in[i] * 2 }); err != nil {
		return err
	}
	for i := range out {
		if out[i] != in[i]*2 {
			return fmt.Errorf("slot %d: got %v, want %v", i, out[i], in[i]*2)
		}
	}
	return nil
}
