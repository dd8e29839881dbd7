package layout

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dd0wney/cluso-layout/pkg/force"
)

var (
	ErrManagerClosed     = errors.New("layout manager closed")
	ErrUnknownLayoutType = errors.New("unknown layout type")
	ErrUnknownBackend    = errors.New("unknown backend")
)

// Layout types understood by the manager
const (
	TypeForceDirected2D = "forceDirected2d"
	TypeForceDirected3D = "forceDirected3d"
	TypeCircular        = "circular2d"
	TypeHierarchical    = "hierarchicalTd"
)

// IsForceDirected reports whether layoutType runs the force simulation
func IsForceDirected(layoutType string) bool {
	return layoutType == TypeForceDirected2D || layoutType == TypeForceDirected3D
}

func knownType(layoutType string) bool {
	switch layoutType {
	case TypeForceDirected2D, TypeForceDirected3D, TypeCircular, TypeHierarchical:
		return true
	}
	return false
}

// Backend selects where a layout is computed
type Backend int

const (
	Synchronous Backend = iota
	WorkerPool
	GpuKernel
)

func (b Backend) String() string {
	switch b {
	case Synchronous:
		return "synchronous"
	case WorkerPool:
		return "worker"
	case GpuKernel:
		return "kernel"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend accepts the String form plus a few common aliases
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "synchronous", "sync", "cpu":
		return Synchronous, nil
	case "worker", "workers", "pool":
		return WorkerPool, nil
	case "kernel", "gpu":
		return GpuKernel, nil
	}
	return Synchronous, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// next is the fallback order used when a backend fails to initialize
func (b Backend) next() (Backend, bool) {
	switch b {
	case GpuKernel:
		return WorkerPool, true
	case WorkerPool:
		return Synchronous, true
	}
	return Synchronous, false
}

// State is the lifecycle of one layout run
type State int32

const (
	Initializing State = iota
	Running
	Converged
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Position is a node coordinate. Z is 0 for 2D layouts.
type Position = force.Vec3

// PositionUpdate carries the position of one node
type PositionUpdate struct {
	NodeID string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

// Batch is one snapshot of a running layout
type Batch struct {
	Generation uint64           `json:"generation"`
	Backend    Backend          `json:"backend"`
	Iteration  int              `json:"iteration"`
	Alpha      float64          `json:"alpha"`
	Done       bool             `json:"done"`
	Updates    []PositionUpdate `json:"updates"`
}

// Request describes one layout invocation. Node and edge sets are rebuilt
// from it every time.
type Request struct {
	Type   string
	Nodes  []force.NodeSpec
	Edges  []force.EdgeSpec
	Config force.Config
}

// Result is the final state of a run
type Result struct {
	Positions  []PositionUpdate `json:"positions"`
	Iterations int              `json:"iterations"`
	Duration   time.Duration    `json:"duration"`
	Backend    Backend          `json:"backend"`
}

// DragReader exposes the drag overrides held by the graph state
type DragReader interface {
	DragOverride(id string) (force.Pin, bool)
}

type noDrags struct{}

func (noDrags) DragOverride(string) (force.Pin, bool) { return force.Pin{}, false }
