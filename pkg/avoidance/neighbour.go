package avoidance

import (
	"fmt"
	"math"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// voProjection is the closest point of a velocity obstacle boundary to a
// relative velocity, expressed in relative velocity space.
type voProjection struct {
	point  geometry.Vector2D
	normal geometry.Vector2D // outward unit normal of the boundary at point
	inside bool              // the relative velocity lies strictly inside the obstacle
}

// LineForNeighbour returns the half-plane of velocities that keeps a clear of
// neighbour for timeHorizon seconds. When the two agents already overlap the
// obstacle is rebuilt over timeStep so that they separate within one step.
func (a Agent) LineForNeighbour(neighbour Agent, timeHorizon, timeStep float64) (geometry.Line, error) {
	if !(timeHorizon > 0) {
		return geometry.Line{}, fmt.Errorf("%w: got %v", ErrInvalidTimeHorizon, timeHorizon)
	}
	if !(timeStep > 0) {
		return geometry.Line{}, fmt.Errorf("%w: got %v", ErrInvalidTimeStep, timeStep)
	}
	return a.lineForNeighbour(neighbour, timeHorizon, timeStep), nil
}

func (a Agent) lineForNeighbour(neighbour Agent, timeHorizon, timeStep float64) geometry.Line {
	relativePosition := neighbour.Position.Sub(a.Position)
	relativeVelocity := a.Velocity.Sub(neighbour.Velocity)
	combinedRadius := a.Radius + neighbour.Radius

	proj := projectOnVelocityObstacle(relativePosition, relativeVelocity, combinedRadius, timeHorizon, timeStep)

	// u is the smallest change of relative velocity that leaves the obstacle.
	u := proj.point.Sub(relativeVelocity)
	weight := 1.0
	if proj.inside {
		weight = responsibilityWeight(a.AvoidanceResponsibility, neighbour.AvoidanceResponsibility)
	}

	return geometry.Line{
		Point:     a.Velocity.Add(u.Mul(weight)),
		Direction: proj.normal.Perp().Neg(),
	}
}

// projectOnVelocityObstacle finds where relativeVelocity leaves the truncated
// cone of velocities colliding within timeHorizon. The cone is a cutoff circle
// of radius R/timeHorizon centred on p/timeHorizon, extended by the two tangent
// rays from the origin (the shadow).
func projectOnVelocityObstacle(relativePosition, relativeVelocity geometry.Vector2D, combinedRadius, timeHorizon, timeStep float64) voProjection {
	distSq := relativePosition.LenSqr()
	combinedRadiusSq := combinedRadius * combinedRadius

	if distSq <= combinedRadiusSq {
		// Already overlapping: the obstacle is the disc reached after one time step.
		center := relativePosition.Mul(1 / timeStep)
		radius := combinedRadius / timeStep
		w := relativeVelocity.Sub(center)
		normal := circleNormal(w, relativePosition)
		return voProjection{
			point:  normal.Mul(radius).Add(center),
			normal: normal,
			inside: true,
		}
	}

	center := relativePosition.Mul(1 / timeHorizon)
	w := relativeVelocity.Sub(center)
	wLenSq := w.LenSqr()
	dot := w.Dot(relativePosition)

	if dot < 0 && dot*dot > combinedRadiusSq*wLenSq {
		// The closest boundary point is on the cutoff circle.
		radius := combinedRadius / timeHorizon
		normal := circleNormal(w, relativePosition)
		return voProjection{
			point:  normal.Mul(radius).Add(center),
			normal: normal,
			inside: wLenSq < radius*radius,
		}
	}

	// The closest boundary point is on one of the shadow legs.
	leg := math.Sqrt(distSq - combinedRadiusSq)
	side := 1.0
	if relativePosition.Cross(w) < 0 {
		side = -1.0
	}
	shadowDirection := relativePosition.Mul(leg * side).
		Add(relativePosition.Perp().Mul(combinedRadius)).
		Mul(1 / distSq)

	return voProjection{
		point:  shadowDirection.Mul(relativeVelocity.Dot(shadowDirection)),
		normal: shadowDirection.Perp(),
		inside: relativeVelocity.Cross(shadowDirection) >= 0,
	}
}

// circleNormal normalises w. When w vanishes the velocity sits on the circle
// centre and any exit is equally close: leave away from the neighbour.
func circleNormal(w, relativePosition geometry.Vector2D) geometry.Vector2D {
	if n := w.Normalize(); !n.IsZero() {
		return n
	}
	if n := relativePosition.Neg().Normalize(); !n.IsZero() {
		return n
	}
	return geometry.Vector2D{X: 1, Y: 0}
}

// responsibilityWeight is the share of the avoidance effort taken by an agent
// with responsibility self against one with responsibility other.
func responsibilityWeight(self, other float64) float64 {
	total := self + other
	if !(total > 0) {
		return 0.5
	}
	return self / total
}
