package kernel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

// Kernel names reported to observers
const (
	KernelManyBody  = "many_body"
	KernelLink      = "link"
	KernelCenter    = "center"
	KernelIntegrate = "integrate"
)

const (
	pinX uint8 = 1 << iota
	pinY
	pinZ
)

// Observer is told about every kernel dispatch a program makes
type Observer func(kernel string, threads int, d time.Duration, err error)

// ProgramOption configures a ForceProgram
type ProgramOption func(*ForceProgram)

// WithObserver registers a dispatch observer
func WithObserver(o Observer) ProgramOption {
	return func(p *ForceProgram) { p.observer = o }
}

// ForceProgram holds the device buffers of one force layout. Node state is
// stored as one slice per component and edges as a CSR adjacency, so every
// kernel thread owns exactly one node.
type ForceProgram struct {
	dev      Device
	cfg      force.Config
	observer Observer

	ids   []string
	index map[string]int

	px, py, pz []float64
	vx, vy, vz []float64
	fx, fy, fz []float64
	strength   []float64

	pinMask          []uint8
	pinX, pinY, pinZ []float64

	// CSR: the links of node i are entries rowStart[i]..rowStart[i+1]
	rowStart []int32
	linkSrc  []int32
	linkDst  []int32
	linkRest []float64
	linkK    []float64

	alpha     float64
	iteration int
}

// Compile uploads a graph to device buffers. It fails with
// ErrTooManyThreads when the graph has more nodes than the device has
// threads.
func Compile(dev Device, g *force.Graph, cfg force.Config, opts ...ProgramOption) (*ForceProgram, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(g.Nodes)
	if n > dev.MaxThreads() {
		return nil, fmt.Errorf("%w: %d nodes on %s (max %d)", ErrTooManyThreads, n, dev.Name(), dev.MaxThreads())
	}

	p := &ForceProgram{
		dev:      dev,
		cfg:      cfg,
		ids:      make([]string, n),
		index:    make(map[string]int, n),
		px:       make([]float64, n),
		py:       make([]float64, n),
		pz:       make([]float64, n),
		vx:       make([]float64, n),
		vy:       make([]float64, n),
		vz:       make([]float64, n),
		fx:       make([]float64, n),
		fy:       make([]float64, n),
		fz:       make([]float64, n),
		strength: make([]float64, n),
		pinMask:  make([]uint8, n),
		pinX:     make([]float64, n),
		pinY:     make([]float64, n),
		pinZ:     make([]float64, n),
		alpha:    cfg.Alpha,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i, node := range g.Nodes {
		p.ids[i] = node.ID
		p.index[node.ID] = i
		p.px[i], p.py[i], p.pz[i] = node.Pos.X, node.Pos.Y, node.Pos.Z
		p.vx[i], p.vy[i], p.vz[i] = node.Vel.X, node.Vel.Y, node.Vel.Z
		p.strength[i] = cfg.NodeStrength * node.Mass
		p.setPin(i, node.Fixed)
	}

	p.buildAdjacency(g.Edges)
	return p, nil
}

// buildAdjacency lists every edge under both endpoints. Rows keep edge
// order so per-node sums match the sequential integrator.
func (p *ForceProgram) buildAdjacency(edges []force.Edge) {
	n := len(p.ids)
	counts := make([]int32, n+1)
	for _, e := range edges {
		counts[e.Source+1]++
		counts[e.Target+1]++
	}
	for i := 1; i <= n; i++ {
		counts[i] += counts[i-1]
	}
	p.rowStart = counts

	total := counts[n]
	p.linkSrc = make([]int32, total)
	p.linkDst = make([]int32, total)
	p.linkRest = make([]float64, total)
	p.linkK = make([]float64, total)

	next := make([]int32, n)
	copy(next, counts[:n])
	for _, e := range edges {
		for _, owner := range [2]int{e.Source, e.Target} {
			slot := next[owner]
			next[owner]++
			p.linkSrc[slot] = int32(e.Source)
			p.linkDst[slot] = int32(e.Target)
			p.linkRest[slot] = e.Distance
			p.linkK[slot] = e.Strength
		}
	}
}

func (p *ForceProgram) setPin(i int, pin force.Pin) {
	var mask uint8
	if pin.X != nil {
		mask |= pinX
		p.pinX[i] = *pin.X
		p.px[i] = *pin.X
		p.vx[i] = 0
	}
	if pin.Y != nil {
		mask |= pinY
		p.pinY[i] = *pin.Y
		p.py[i] = *pin.Y
		p.vy[i] = 0
	}
	if pin.Z != nil {
		mask |= pinZ
		p.pinZ[i] = *pin.Z
		p.pz[i] = *pin.Z
		p.vz[i] = 0
	}
	p.pinMask[i] = mask
}

// SetPins refreshes pinned coordinates. Nodes without an entry keep their
// current pin.
func (p *ForceProgram) SetPins(lookup func(id string) (force.Pin, bool)) {
	for i, id := range p.ids {
		if pin, ok := lookup(id); ok {
			p.setPin(i, pin)
		}
	}
}

// Step runs one pass of every kernel and decays alpha once
func (p *ForceProgram) Step(ctx context.Context) (bool, error) {
	if p.Converged() {
		return true, nil
	}

	n := len(p.ids)
	if err := p.dispatch(ctx, KernelManyBody, n, p.manyBody); err != nil {
		return false, err
	}
	if len(p.linkSrc) > 0 {
		if err := p.dispatch(ctx, KernelLink, n, p.link); err != nil {
			return false, err
		}
	}
	if p.cfg.CenterStrength*p.alpha != 0 {
		if err := p.dispatch(ctx, KernelCenter, n, p.center); err != nil {
			return false, err
		}
	}
	if err := p.dispatch(ctx, KernelIntegrate, n, p.integrate); err != nil {
		return false, err
	}

	p.alpha *= 1 - p.cfg.AlphaDecay
	p.iteration++
	return p.Converged(), nil
}

func (p *ForceProgram) dispatch(ctx context.Context, name string, threads int, k Kernel) error {
	start := time.Now()
	err := p.dev.Dispatch(ctx, threads, k)
	if p.observer != nil {
		p.observer(name, threads, time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("%s kernel: %w", name, err)
	}
	return nil
}

// manyBody reads positions and strengths, writes f[i]
func (p *ForceProgram) manyBody(i int) {
	if p.cfg.NodeStrength == 0 {
		p.fx[i], p.fy[i], p.fz[i] = 0, 0, 0
		return
	}
	alpha := p.alpha
	xi, yi, zi := p.px[i], p.py[i], p.pz[i]
	si := p.strength[i]

	var fx, fy, fz float64
	for j := range p.px {
		if j == i {
			continue
		}
		dx := xi - p.px[j]
		dy := yi - p.py[j]
		dz := zi - p.pz[j]

		distSq := dx*dx + dy*dy + dz*dz + force.Epsilon
		dist := math.Sqrt(distSq)
		mag := (si * p.strength[j] * alpha) / distSq

		fx += mag * (dx / dist)
		fy += mag * (dy / dist)
		fz += mag * (dz / dist)
	}
	p.fx[i], p.fy[i], p.fz[i] = fx, fy, fz
}

// link reads positions and the CSR row of node i, accumulates into f[i]
func (p *ForceProgram) link(i int) {
	alpha := p.alpha
	for k := p.rowStart[i]; k < p.rowStart[i+1]; k++ {
		src, dst := p.linkSrc[k], p.linkDst[k]

		dx := p.px[dst] - p.px[src]
		dy := p.py[dst] - p.py[src]
		dz := p.pz[dst] - p.pz[src]

		dist := math.Sqrt(dx*dx + dy*dy + dz*dz + force.Epsilon)
		mag := (dist - p.linkRest[k]) * p.linkK[k] * alpha

		fx := mag * (dx / dist)
		fy := mag * (dy / dist)
		fz := mag * (dz / dist)

		if int(src) == i {
			p.fx[i] += fx
			p.fy[i] += fy
			p.fz[i] += fz
		} else {
			p.fx[i] -= fx
			p.fy[i] -= fy
			p.fz[i] -= fz
		}
	}
}

// center reads p[i], accumulates into f[i]
func (p *ForceProgram) center(i int) {
	k := p.cfg.CenterStrength * p.alpha
	c := p.cfg.Center
	p.fx[i] += (c.X - p.px[i]) * k
	p.fy[i] += (c.Y - p.py[i]) * k
	p.fz[i] += (c.Z - p.pz[i]) * k
}

// integrate reads f[i] and the pins of node i, writes p[i] and v[i]
func (p *ForceProgram) integrate(i int) {
	decay := p.cfg.VelocityDecay
	mask := p.pinMask[i]

	p.px[i], p.vx[i] = force.IntegrateAxis(p.px[i], p.vx[i], p.fx[i], decay, pinned(mask, pinX, &p.pinX[i]))
	p.py[i], p.vy[i] = force.IntegrateAxis(p.py[i], p.vy[i], p.fy[i], decay, pinned(mask, pinY, &p.pinY[i]))
	if p.cfg.Is3D {
		p.pz[i], p.vz[i] = force.IntegrateAxis(p.pz[i], p.vz[i], p.fz[i], decay, pinned(mask, pinZ, &p.pinZ[i]))
	} else {
		p.pz[i], p.vz[i] = 0, 0
	}
}

func pinned(mask, axis uint8, v *float64) *float64 {
	if mask&axis == 0 {
		return nil
	}
	return v
}

// Converged reports whether alpha reached alphaMin or the iteration cap was hit
func (p *ForceProgram) Converged() bool {
	return p.alpha <= p.cfg.AlphaMin || p.iteration >= p.cfg.Iterations
}

func (p *ForceProgram) Alpha() float64 { return p.alpha }
func (p *ForceProgram) Iteration() int { return p.iteration }
func (p *ForceProgram) Len() int       { return len(p.ids) }
func (p *ForceProgram) Device() Device { return p.dev }
func (p *ForceProgram) IDs() []string  { return p.ids }

// Position reads back the position of one node
func (p *ForceProgram) Position(id string) (force.Vec3, bool) {
	i, ok := p.index[id]
	if !ok {
		return force.Vec3{}, false
	}
	return force.Vec3{X: p.px[i], Y: p.py[i], Z: p.pz[i]}, true
}

// Positions reads back every node position keyed by ID
func (p *ForceProgram) Positions() map[string]force.Vec3 {
	out := make(map[string]force.Vec3, len(p.ids))
	for i, id := range p.ids {
		out[id] = force.Vec3{X: p.px[i], Y: p.py[i], Z: p.pz[i]}
	}
	return out
}
