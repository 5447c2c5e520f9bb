// Package avoidance computes collision-free velocities for disc-shaped agents
// moving among other agents and static polygonal obstacles.
//
// Every constraint is a half-plane in velocity space (geometry.Line). Agents
// build one line per neighbour from its velocity obstacle, split with the
// neighbour according to their avoidance responsibilities, plus lines for the
// obstacle edges in reach. A small 2D linear program then picks the velocity
// closest to the preferred one that satisfies them all, or the least violating
// one when they cannot all hold.
//
// The package keeps no state: callers snapshot the world, may compute every
// agent in parallel, and apply the results afterwards.
package avoidance

import (
	"fmt"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// Agent is the kinematic state of one disc for the duration of a step.
type Agent struct {
	Position geometry.Vector2D `json:"position"`
	Velocity geometry.Vector2D `json:"velocity"`
	Radius   float64           `json:"radius"`
	// AvoidanceResponsibility is the relative share of avoidance effort this
	// agent takes when two agents are on a collision course.
	AvoidanceResponsibility float64 `json:"avoidanceResponsibility"`
}

// ComputeAvoidingVelocity returns the velocity, no faster than maxSpeed, that is
// closest to preferred while avoiding neighbours and obstacles.
//
// Obstacle lines come first so the solver can keep them hard when the problem
// becomes infeasible. Obstacles entirely out of reach within
// opts.ObstacleTimeHorizon contribute nothing.
func (a Agent) ComputeAvoidingVelocity(
	neighbours []Agent,
	obstacles []Obstacle,
	preferred geometry.Vector2D,
	maxSpeed, timeStep float64,
	opts Options,
) (geometry.Vector2D, error) {
	if !(timeStep > 0) {
		return geometry.Vector2D{}, fmt.Errorf("%w: got %v", ErrInvalidTimeStep, timeStep)
	}
	if !(maxSpeed >= 0) {
		return geometry.Vector2D{}, fmt.Errorf("%w: got %v", ErrInvalidMaxSpeed, maxSpeed)
	}
	if err := opts.Validate(); err != nil {
		return geometry.Vector2D{}, err
	}

	b := obstacleLineBuilder{
		agent:      a,
		radius:     a.Radius + opts.ObstacleMargin,
		invHorizon: 1 / opts.ObstacleTimeHorizon,
		reach:      a.Radius + opts.ObstacleMargin + opts.ObstacleTimeHorizon*maxSpeed,
		lines:      make([]geometry.Line, 0, len(obstacles)*2+len(neighbours)),
	}
	for _, o := range obstacles {
		b.add(o)
	}

	lines := b.build()
	obstacleLineCount := len(lines)
	for _, n := range neighbours {
		lines = append(lines, a.lineForNeighbour(n, opts.TimeHorizon, timeStep))
	}

	return Solve(lines, obstacleLineCount, maxSpeed, preferred), nil
}
