package geometry

// Transform places local geometry into the world frame.
// Points are scaled, then rotated (radians, counter-clockwise), then translated.
// A zero Scale component is treated as 1 so the zero Transform is the identity.
type Transform struct {
	Translation Vector2D `json:"translation" yaml:"translation"`
	Rotation    float64  `json:"rotation" yaml:"rotation"`
	Scale       Vector2D `json:"scale" yaml:"scale"`
}

// Identity returns the transform that leaves every point unchanged.
func Identity() Transform {
	return Transform{Scale: Vector2D{1, 1}}
}

// Apply maps a local point to the world frame.
func (t Transform) Apply(p Vector2D) Vector2D {
	scale := t.Scale
	if scale.X == 0 {
		scale.X = 1
	}
	if scale.Y == 0 {
		scale.Y = 1
	}
	scaled := Vector2D{p.X * scale.X, p.Y * scale.Y}
	return scaled.Rotate(t.Rotation).Add(t.Translation)
}

// Mirrors reports whether the transform flips orientation (odd number of negative scales).
func (t Transform) Mirrors() bool {
	return (t.Scale.X < 0) != (t.Scale.Y < 0)
}
