package avoidance

import (
	"math"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// lpOutcome is the result of the closest-point program: the best velocity
// found and the index of the first line it could not satisfy, len(lines) when
// every line holds.
type lpOutcome struct {
	velocity geometry.Vector2D
	failedAt int
}

func (o lpOutcome) feasible(lines []geometry.Line) bool { return o.failedAt == len(lines) }

// Solve returns the velocity inside the disc of radius maxSpeed that satisfies
// every line and lies closest to preferred.
//
// When no such velocity exists the first obstacleLineCount lines stay hard
// and the maximum violation of the remaining (neighbour) lines is minimised.
// If the obstacle lines alone conflict, the earliest ones win. The result is
// never longer than maxSpeed and the call never fails; a negative maxSpeed
// is treated as zero.
func Solve(lines []geometry.Line, obstacleLineCount int, maxSpeed float64, preferred geometry.Vector2D) geometry.Vector2D {
	if !(maxSpeed > 0) {
		maxSpeed = 0
	}
	obstacleLineCount = max(0, min(obstacleLineCount, len(lines)))
	lines, obstacleLineCount = unitLines(lines, obstacleLineCount)
	if !preferred.IsFinite() {
		preferred = geometry.Vector2D{}
	}

	out := solveClosest(lines, maxSpeed, preferred, false)
	if out.feasible(lines) {
		return out.velocity
	}

	if out.failedAt < obstacleLineCount {
		kept := keepFeasibleObstacles(lines[:obstacleLineCount], maxSpeed)
		lines = append(kept, lines[obstacleLineCount:]...)
		obstacleLineCount = len(kept)
		out = solveClosest(lines, maxSpeed, preferred, false)
		if out.feasible(lines) {
			return out.velocity
		}
	}

	return solveLeastPenetration(lines, obstacleLineCount, out.failedAt, maxSpeed, out.velocity)
}

// unitLines returns lines with unit directions, which the disc intersections
// below rely on. Lines whose direction or point cannot be normalised are
// dropped, and obstacleLineCount is adjusted to match. The input is returned
// as is when every direction is already unit length.
func unitLines(lines []geometry.Line, obstacleLineCount int) ([]geometry.Line, int) {
	clean := true
	for _, l := range lines {
		if !l.Point.IsFinite() || !l.Direction.IsFinite() || math.Abs(l.Direction.LenSqr()-1) > geometry.Epsilon {
			clean = false
			break
		}
	}
	if clean {
		return lines, obstacleLineCount
	}

	out := make([]geometry.Line, 0, len(lines))
	obstacles := 0
	for i, l := range lines {
		d := l.Direction.Normalize()
		if d.IsZero() || !d.IsFinite() || !l.Point.IsFinite() {
			continue
		}
		out = append(out, geometry.Line{Point: l.Point, Direction: d})
		if i < obstacleLineCount {
			obstacles++
		}
	}
	return out, obstacles
}

// keepFeasibleObstacles walks the obstacle lines in order and keeps each one
// that can still be satisfied together with the disc and the lines kept
// before it.
func keepFeasibleObstacles(obstacles []geometry.Line, maxSpeed float64) []geometry.Line {
	kept := make([]geometry.Line, 0, len(obstacles))
	for _, l := range obstacles {
		candidate := append(kept, l)
		// Maximising along the line normal finds a feasible point if any exists.
		probe := solveClosest(candidate, maxSpeed, l.Direction.Perp(), true)
		if probe.feasible(candidate) {
			kept = candidate
		}
	}
	return kept
}

// solveClosest is the incremental 2D linear program: it adds
// lines one by one and, whenever the current optimum violates the new line,
// moves it to the best point on that line.
//
// With directionOpt the objective is the unit vector opt (maximise along it),
// otherwise the point opt (minimise the distance to it).
func solveClosest(lines []geometry.Line, radius float64, opt geometry.Vector2D, directionOpt bool) lpOutcome {
	result := opt.ClampLength(radius)
	if directionOpt {
		result = opt.Mul(radius)
	}

	for i, l := range lines {
		if geometry.Determinant(l.Direction, l.Point.Sub(result)) > 0 {
			prev := result
			var ok bool
			result, ok = solveOnLine(lines, i, radius, opt, directionOpt)
			if !ok {
				return lpOutcome{velocity: prev, failedAt: i}
			}
		}
	}
	return lpOutcome{velocity: result, failedAt: len(lines)}
}

// solveOnLine finds the optimum on lines[i] inside the disc, subject to
// lines[:i]. ok is false when that segment is empty.
func solveOnLine(lines []geometry.Line, i int, radius float64, opt geometry.Vector2D, directionOpt bool) (geometry.Vector2D, bool) {
	l := lines[i]
	dotProduct := l.Point.Dot(l.Direction)
	discriminant := dotProduct*dotProduct + radius*radius - l.Point.LenSqr()
	if discriminant < 0 {
		// The line misses the disc.
		return geometry.Vector2D{}, false
	}

	sqrtDiscriminant := math.Sqrt(discriminant)
	tLeft := -dotProduct - sqrtDiscriminant
	tRight := -dotProduct + sqrtDiscriminant

	for _, other := range lines[:i] {
		denominator := geometry.Determinant(l.Direction, other.Direction)
		numerator := geometry.Determinant(other.Direction, l.Point.Sub(other.Point))

		if math.Abs(denominator) <= geometry.Epsilon {
			// Parallel lines.
			if numerator < 0 {
				return geometry.Vector2D{}, false
			}
			continue
		}

		t := numerator / denominator
		if denominator >= 0 {
			tRight = math.Min(tRight, t)
		} else {
			tLeft = math.Max(tLeft, t)
		}
		if tLeft > tRight {
			return geometry.Vector2D{}, false
		}
	}

	var t float64
	switch {
	case directionOpt:
		if opt.Dot(l.Direction) > 0 {
			t = tRight
		} else {
			t = tLeft
		}
	default:
		t = math.Max(tLeft, math.Min(tRight, l.Direction.Dot(opt.Sub(l.Point))))
	}
	return l.Point.Add(l.Direction.Mul(t)), true
}

// solveLeastPenetration relaxes the lines from index start onwards: it keeps
// the first obstacleLineCount lines hard and minimises the largest distance by
// which any other line is violated.
func solveLeastPenetration(lines []geometry.Line, obstacleLineCount, start int, radius float64, result geometry.Vector2D) geometry.Vector2D {
	distance := 0.0
	projected := make([]geometry.Line, 0, len(lines))

	for i := start; i < len(lines); i++ {
		li := lines[i]
		if geometry.Determinant(li.Direction, li.Point.Sub(result)) <= distance {
			continue
		}

		projected = append(projected[:0], lines[:obstacleLineCount]...)
		for j := obstacleLineCount; j < i; j++ {
			lj := lines[j]
			var point geometry.Vector2D
			det := geometry.Determinant(li.Direction, lj.Direction)
			if math.Abs(det) <= geometry.Epsilon {
				if li.Direction.Dot(lj.Direction) > 0 {
					// Same direction: lj is either implied by li or irrelevant.
					continue
				}
				point = li.Point.Add(lj.Point).Mul(0.5)
			} else {
				point = li.Point.Add(li.Direction.Mul(
					geometry.Determinant(lj.Direction, li.Point.Sub(lj.Point)) / det))
			}
			direction := lj.Direction.Sub(li.Direction).Normalize()
			if direction.IsZero() {
				continue
			}
			projected = append(projected, geometry.Line{Point: point, Direction: direction})
		}

		prev := result
		out := solveClosest(projected, radius, li.Direction.Perp(), true)
		if out.feasible(projected) {
			result = out.velocity
		} else {
			// Only rounding can make this fail: the previous result is feasible.
			result = prev
		}
		distance = geometry.Determinant(li.Direction, li.Point.Sub(result))
	}
	return result
}
