package avoidance

import (
	"fmt"
	"math"
)

// Options are the per-agent avoidance parameters.
type Options struct {
	// ObstacleMargin is the clearance added to the agent radius when avoiding obstacles.
	ObstacleMargin float64 `json:"obstacleMargin" yaml:"obstacleMargin" mapstructure:"obstacle_margin"`
	// TimeHorizon is how far ahead, in seconds, collisions with other agents are considered.
	TimeHorizon float64 `json:"timeHorizon" yaml:"timeHorizon" mapstructure:"time_horizon"`
	// ObstacleTimeHorizon is how far ahead collisions with obstacles are considered.
	ObstacleTimeHorizon float64 `json:"obstacleTimeHorizon" yaml:"obstacleTimeHorizon" mapstructure:"obstacle_time_horizon"`
}

// DefaultOptions mirrors the values used by the circle crossing demo.
func DefaultOptions() Options {
	return Options{
		ObstacleMargin:      0.1,
		TimeHorizon:         6.0,
		ObstacleTimeHorizon: 1.0,
	}
}

// Validate checks every field against its domain.
func (o Options) Validate() error {
	if !(o.TimeHorizon > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidTimeHorizon, o.TimeHorizon)
	}
	if !(o.ObstacleTimeHorizon > 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidObstacleTimeHorizon, o.ObstacleTimeHorizon)
	}
	if !(o.ObstacleMargin >= 0) || math.IsInf(o.ObstacleMargin, 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidObstacleMargin, o.ObstacleMargin)
	}
	return nil
}
