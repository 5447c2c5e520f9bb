package crowd

import (
	"errors"
	"fmt"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/avoidance"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// Goal is where an entity wants to go. It counts as reached within Tolerance.
type Goal struct {
	Destination geometry.Vector2D `json:"destination"`
	Tolerance   float64           `json:"tolerance,omitempty"`
}

// Entity is one mobile agent owned by the World.
type Entity struct {
	ID                      string
	Position                geometry.Vector2D
	Velocity                geometry.Vector2D
	Radius                  float64
	AvoidanceResponsibility float64
	MaxSpeed                float64
	// Goal is nil for entities that only drift; they are still avoided by others.
	Goal    *Goal
	Options avoidance.Options
}

// Validate checks the fields the avoidance computation relies on.
func (e *Entity) Validate() error {
	switch {
	case e.ID == "":
		return errors.New("entity without id")
	case !(e.Radius > 0):
		return fmt.Errorf("entity %q: radius must be positive, got %v", e.ID, e.Radius)
	case !(e.AvoidanceResponsibility > 0):
		return fmt.Errorf("entity %q: avoidance responsibility must be positive, got %v", e.ID, e.AvoidanceResponsibility)
	case !(e.MaxSpeed >= 0):
		return fmt.Errorf("entity %q: %w: got %v", e.ID, avoidance.ErrInvalidMaxSpeed, e.MaxSpeed)
	case !e.Position.IsFinite() || !e.Velocity.IsFinite():
		return fmt.Errorf("entity %q: position and velocity must be finite", e.ID)
	}
	if err := e.Options.Validate(); err != nil {
		return fmt.Errorf("entity %q: %w", e.ID, err)
	}
	return nil
}

// Agent is the immutable view of the entity handed to the avoidance code.
func (e *Entity) Agent() avoidance.Agent {
	return avoidance.Agent{
		Position:                e.Position,
		Velocity:                e.Velocity,
		Radius:                  e.Radius,
		AvoidanceResponsibility: e.AvoidanceResponsibility,
	}
}

// Arrived reports whether the entity is within tolerance of its goal.
func (e *Entity) Arrived() bool {
	if e.Goal == nil {
		return false
	}
	return e.Position.DistanceSquaredTo(e.Goal.Destination) <= e.Goal.Tolerance*e.Goal.Tolerance
}

// PreferredVelocity heads straight for the goal at full speed, and is zero
// once the goal is reached or when there is none.
func (e *Entity) PreferredVelocity() geometry.Vector2D {
	if e.Goal == nil || e.Arrived() {
		return geometry.Vector2D{}
	}
	return e.Goal.Destination.Sub(e.Position).Normalize().Mul(e.MaxSpeed)
}

// Integrate moves the entity along its velocity for dt seconds.
func (e *Entity) Integrate(dt float64) {
	e.Position = e.Position.Add(e.Velocity.Mul(dt))
}
