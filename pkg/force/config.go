package force

import (
	"errors"
	"fmt"
	"math"
)

// Epsilon is added to squared distances so coincident nodes never divide by zero
const Epsilon = 1e-4

// ErrInvalidConfig is returned when a simulation config fails validation
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds the simulation parameters
type Config struct {
	Center         Vec3    `json:"center" yaml:"center" toml:"center"`
	NodeStrength   float64 `json:"nodeStrength" yaml:"node_strength" toml:"node_strength"`
	LinkDistance   float64 `json:"linkDistance" yaml:"link_distance" toml:"link_distance"`
	LinkStrength   float64 `json:"linkStrength" yaml:"link_strength" toml:"link_strength"`
	CenterStrength float64 `json:"centerStrength" yaml:"center_strength" toml:"center_strength"`
	Alpha          float64 `json:"alpha" yaml:"alpha" toml:"alpha"`
	AlphaDecay     float64 `json:"alphaDecay" yaml:"alpha_decay" toml:"alpha_decay"`
	AlphaMin       float64 `json:"alphaMin" yaml:"alpha_min" toml:"alpha_min"`
	VelocityDecay  float64 `json:"velocityDecay" yaml:"velocity_decay" toml:"velocity_decay"`
	Iterations     int     `json:"iterations" yaml:"iterations" toml:"iterations"`
	Is3D           bool    `json:"is3d" yaml:"is3d" toml:"is3d"`
}

// DefaultConfig returns the default simulation parameters
func DefaultConfig() Config {
	return Config{
		NodeStrength:   -30,
		LinkDistance:   30,
		LinkStrength:   1,
		CenterStrength: 0.1,
		Alpha:          1,
		AlphaDecay:     0.0228,
		AlphaMin:       0.001,
		VelocityDecay:  0.4,
		Iterations:     300,
	}
}

// Dimensions returns 3 for 3D simulations and 2 otherwise
func (c Config) Dimensions() int {
	if c.Is3D {
		return 3
	}
	return 2
}

// Validate checks the config for values the integrator cannot handle
func (c Config) Validate() error {
	values := map[string]float64{
		"nodeStrength":   c.NodeStrength,
		"linkDistance":   c.LinkDistance,
		"linkStrength":   c.LinkStrength,
		"centerStrength": c.CenterStrength,
		"alpha":          c.Alpha,
		"alphaDecay":     c.AlphaDecay,
		"alphaMin":       c.AlphaMin,
		"velocityDecay":  c.VelocityDecay,
		"center.x":       c.Center.X,
		"center.y":       c.Center.Y,
		"center.z":       c.Center.Z,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidConfig, name)
		}
	}

	switch {
	case c.AlphaDecay < 0 || c.AlphaDecay >= 1:
		return fmt.Errorf("%w: alphaDecay %v outside [0,1)", ErrInvalidConfig, c.AlphaDecay)
	case c.VelocityDecay < 0 || c.VelocityDecay > 1:
		return fmt.Errorf("%w: velocityDecay %v outside [0,1]", ErrInvalidConfig, c.VelocityDecay)
	case c.Iterations < 0:
		return fmt.Errorf("%w: iterations %d is negative", ErrInvalidConfig, c.Iterations)
	case c.LinkDistance < 0:
		return fmt.Errorf("%w: linkDistance %v is negative", ErrInvalidConfig, c.LinkDistance)
	case c.Alpha < 0:
		return fmt.Errorf("%w: alpha %v is negative", ErrInvalidConfig, c.Alpha)
	case c.AlphaMin < 0:
		return fmt.Errorf("%w: alphaMin %v is negative", ErrInvalidConfig, c.AlphaMin)
	}
	return nil
}
