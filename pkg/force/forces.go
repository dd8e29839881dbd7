package force

import "math"

// applyManyBody accumulates pairwise repulsion. O(n²): every ordered pair
// contributes (s_i*s_j*alpha)/(distSq+eps) along the unit vector from j to i.
func (s *Simulation) applyManyBody() {
	strength := s.cfg.NodeStrength
	if strength == 0 {
		return
	}
	alpha := s.alpha

	for i := range s.nodes {
		pi := s.nodes[i].Pos
		si := strength * s.nodes[i].Mass
		var f Vec3
		for j := range s.nodes {
			if i == j {
				continue
			}
			pj := s.nodes[j].Pos
			dx := pi.X - pj.X
			dy := pi.Y - pj.Y
			dz := pi.Z - pj.Z

			distSq := dx*dx + dy*dy + dz*dz + Epsilon
			dist := math.Sqrt(distSq)
			sj := strength * s.nodes[j].Mass
			mag := (si * sj * alpha) / distSq

			f.X += mag * (dx / dist)
			f.Y += mag * (dy / dist)
			f.Z += mag * (dz / dist)
		}
		s.force[i].X += f.X
		s.force[i].Y += f.Y
		s.force[i].Z += f.Z
	}
}

// applyLinks pulls each linked pair toward its rest distance with equal and
// opposite forces
func (s *Simulation) applyLinks() {
	alpha := s.alpha
	for _, e := range s.edges {
		src := s.nodes[e.Source].Pos
		dst := s.nodes[e.Target].Pos

		dx := dst.X - src.X
		dy := dst.Y - src.Y
		dz := dst.Z - src.Z

		dist := math.Sqrt(dx*dx + dy*dy + dz*dz + Epsilon)
		mag := (dist - e.Distance) * e.Strength * alpha

		fx := mag * (dx / dist)
		fy := mag * (dy / dist)
		fz := mag * (dz / dist)

		s.force[e.Source].X += fx
		s.force[e.Source].Y += fy
		s.force[e.Source].Z += fz
		s.force[e.Target].X -= fx
		s.force[e.Target].Y -= fy
		s.force[e.Target].Z -= fz
	}
}

// applyCenter pulls every node linearly toward the configured center
func (s *Simulation) applyCenter() {
	k := s.cfg.CenterStrength * s.alpha
	if k == 0 {
		return
	}
	c := s.cfg.Center
	for i := range s.nodes {
		p := s.nodes[i].Pos
		s.force[i].X += (c.X - p.X) * k
		s.force[i].Y += (c.Y - p.Y) * k
		s.force[i].Z += (c.Z - p.Z) * k
	}
}

// integrate applies velocity decay and moves every free axis. Pinned axes
// echo their pin and lose their velocity.
func (s *Simulation) integrate() {
	decay := s.cfg.VelocityDecay
	is3D := s.cfg.Is3D

	for i := range s.nodes {
		n := &s.nodes[i]
		f := s.force[i]

		n.Pos.X, n.Vel.X = IntegrateAxis(n.Pos.X, n.Vel.X, f.X, decay, n.Fixed.X)
		n.Pos.Y, n.Vel.Y = IntegrateAxis(n.Pos.Y, n.Vel.Y, f.Y, decay, n.Fixed.Y)
		if is3D {
			n.Pos.Z, n.Vel.Z = IntegrateAxis(n.Pos.Z, n.Vel.Z, f.Z, decay, n.Fixed.Z)
		} else {
			n.Pos.Z, n.Vel.Z = 0, 0
		}
	}
}

// IntegrateAxis is the per-axis integration rule, shared with the kernel backend
func IntegrateAxis(pos, vel, f, decay float64, pin *float64) (float64, float64) {
	if pin != nil {
		return *pin, 0
	}
	vel = (vel + f) * decay
	return pos + vel, vel
}
