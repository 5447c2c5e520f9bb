package avoidance

import "errors"

// Precondition violations. Callers control these inputs, so they are reported
// instead of producing a degenerate velocity.
var (
	ErrInvalidTimeStep            = errors.New("time step must be positive")
	ErrInvalidTimeHorizon         = errors.New("time horizon must be positive")
	ErrInvalidObstacleTimeHorizon = errors.New("obstacle time horizon must be positive")
	ErrInvalidObstacleMargin      = errors.New("obstacle margin must not be negative")
	ErrInvalidMaxSpeed            = errors.New("max speed must not be negative")
)
