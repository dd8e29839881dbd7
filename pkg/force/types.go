package force

import "math"

// Vec3 is a point or direction in simulation space. Z stays 0 for 2D layouts.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the euclidean distance between two points
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// IsFinite reports whether every component is a finite number
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// Pin holds optional fixed coordinates. A nil axis is free.
type Pin struct {
	X *float64 `json:"fx,omitempty"`
	Y *float64 `json:"fy,omitempty"`
	Z *float64 `json:"fz,omitempty"`
}

// PinAt pins every axis of a node to pos. Z is left free in 2D.
func PinAt(pos Vec3, is3D bool) Pin {
	x, y := pos.X, pos.Y
	p := Pin{X: &x, Y: &y}
	if is3D {
		z := pos.Z
		p.Z = &z
	}
	return p
}

// IsZero reports whether no axis is pinned
func (p Pin) IsZero() bool {
	return p.X == nil && p.Y == nil && p.Z == nil
}

// Apply overwrites the pinned axes of pos
func (p Pin) Apply(pos Vec3) Vec3 {
	if p.X != nil {
		pos.X = *p.X
	}
	if p.Y != nil {
		pos.Y = *p.Y
	}
	if p.Z != nil {
		pos.Z = *p.Z
	}
	return pos
}

// NodeSpec is a node as supplied by the graph state. Nil coordinates are
// filled in by the initial placement.
type NodeSpec struct {
	ID   string   `json:"id"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
	Z    *float64 `json:"z,omitempty"`
	Size float64  `json:"radius,omitempty"`
	Mass float64  `json:"mass,omitempty"`
	Pin  Pin      `json:"pin"`
}

// EdgeSpec is an edge as supplied by the graph state. Zero distance or
// strength means the config default.
type EdgeSpec struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Distance float64 `json:"distance,omitempty"`
	Strength float64 `json:"strength,omitempty"`
}

// Node is a simulated node
type Node struct {
	ID     string
	Pos    Vec3
	Vel    Vec3
	Mass   float64
	Radius float64
	Fixed  Pin
}

// Edge is a resolved link between two node indices
type Edge struct {
	ID       string
	Source   int
	Target   int
	Distance float64
	Strength float64
}
