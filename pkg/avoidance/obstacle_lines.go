package avoidance

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// obstacleVertex is one corner of an obstacle chain. Chains are oriented so
// that the blocked side of every edge lies on its left.
type obstacleVertex struct {
	point     geometry.Vector2D
	direction geometry.Vector2D // unit vector along the edge leaving this vertex
	convex    bool
	prev      int // -1 at the start of an open chain
	next      int // -1 at the end of an open chain
}

// obstacleEdge is a candidate edge (or lone vertex when next is -1) waiting to
// be turned into a line.
type obstacleEdge struct {
	chain  []obstacleVertex
	index  int
	distSq float64
}

// obstacleLineBuilder accumulates the lines of every obstacle seen by one
// agent. Edges are processed nearest first so that far edges hidden behind an
// already constrained one are skipped.
type obstacleLineBuilder struct {
	agent      Agent
	radius     float64 // agent radius plus obstacle margin
	invHorizon float64
	reach      float64 // edges farther than this are ignored
	edges      []obstacleEdge
	lines      []geometry.Line
}

// ObstacleLines returns the velocity constraints that keep agent clear of
// obstacle, inflated by margin, for timeHorizon seconds. Lines are ordered
// from the nearest edge outwards; redundant and degenerate ones are omitted.
func ObstacleLines(agent Agent, obstacle Obstacle, margin, timeHorizon float64) ([]geometry.Line, error) {
	if !(margin >= 0) || math.IsInf(margin, 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidObstacleMargin, margin)
	}
	if !(timeHorizon > 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidObstacleTimeHorizon, timeHorizon)
	}
	b := obstacleLineBuilder{
		agent:      agent,
		radius:     agent.Radius + margin,
		invHorizon: 1 / timeHorizon,
		reach:      math.Inf(1),
	}
	b.add(obstacle)
	return b.build(), nil
}

func (b *obstacleLineBuilder) add(o Obstacle) {
	closed := o.Shape == ShapeClosed
	points := dedupeVertices(o.Vertices, closed)

	switch len(points) {
	case 0:
		return
	case 1:
		b.collect([]obstacleVertex{{point: points[0], convex: true, prev: -1, next: -1}}, false)
		return
	}

	switch o.Shape {
	case ShapeClosed:
		if len(points) >= 3 {
			if signedArea(points) < 0 {
				slices.Reverse(points)
			}
			b.collect(closedChain(points), false)
			return
		}
		// A two-vertex polygon has no area: it is a wall like an open segment.
		fallthrough
	case ShapeOpen:
		b.collect(openChain(points), true)
		reversed := slices.Clone(points)
		slices.Reverse(reversed)
		b.collect(openChain(reversed), false)
	}
}

// collect queues the edges of chain whose outer side faces the agent.
// Agents exactly in line with an edge are accepted when collinear is true.
func (b *obstacleLineBuilder) collect(chain []obstacleVertex, collinear bool) {
	pos := b.agent.Position
	for i, v := range chain {
		if v.next < 0 {
			if v.prev < 0 {
				if d := v.point.DistanceSquaredTo(pos); d <= b.reach*b.reach {
					b.edges = append(b.edges, obstacleEdge{chain: chain, index: i, distSq: d})
				}
			}
			continue
		}
		next := chain[v.next].point
		side := leftOf(v.point, next, pos)
		if side > 0 || (side == 0 && !collinear) {
			continue
		}
		if d := distSqToSegment(pos, v.point, next); d <= b.reach*b.reach {
			b.edges = append(b.edges, obstacleEdge{chain: chain, index: i, distSq: d})
		}
	}
}

func (b *obstacleLineBuilder) build() []geometry.Line {
	slices.SortStableFunc(b.edges, func(x, y obstacleEdge) int {
		return cmp.Compare(x.distSq, y.distSq)
	})
	for _, e := range b.edges {
		v := e.chain[e.index]
		if v.next < 0 {
			b.addPoint(v)
			continue
		}
		b.addEdge(e.chain, v, e.chain[v.next])
	}
	b.edges = b.edges[:0]
	return b.lines
}

// covered reports whether both end points, seen from the agent, are already
// excluded by a previously emitted line.
func (b *obstacleLineBuilder) covered(relPos1, relPos2 geometry.Vector2D) bool {
	margin := b.invHorizon * b.radius
	for _, l := range b.lines {
		if relPos1.Mul(b.invHorizon).Sub(l.Point).Cross(l.Direction)-margin >= -geometry.Epsilon &&
			relPos2.Mul(b.invHorizon).Sub(l.Point).Cross(l.Direction)-margin >= -geometry.Epsilon {
			return true
		}
	}
	return false
}

func (b *obstacleLineBuilder) emit(l geometry.Line) {
	if l.Direction.IsZero() || !l.Direction.IsFinite() || !l.Point.IsFinite() {
		return
	}
	b.lines = append(b.lines, l)
}

func (b *obstacleLineBuilder) addPoint(v obstacleVertex) {
	relPos := v.point.Sub(b.agent.Position)
	if b.covered(relPos, relPos) {
		return
	}
	distSq := relPos.LenSqr()
	if distSq <= b.radius*b.radius {
		b.emit(geometry.Line{Direction: relPos.Perp().Normalize()})
		return
	}
	left, right := tangentLegs(relPos, b.radius)
	b.project(v, v, left, right, false, false)
}

func (b *obstacleLineBuilder) addEdge(chain []obstacleVertex, v1, v2 obstacleVertex) {
	pos := b.agent.Position
	radiusSq := b.radius * b.radius

	relPos1 := v1.point.Sub(pos)
	relPos2 := v2.point.Sub(pos)
	if b.covered(relPos1, relPos2) {
		return
	}

	distSq1 := relPos1.LenSqr()
	distSq2 := relPos2.LenSqr()
	edge := v2.point.Sub(v1.point)
	s := relPos1.Neg().Dot(edge) / edge.LenSqr()
	distSqLine := relPos1.Neg().Sub(edge.Mul(s)).LenSqr()

	// Already colliding: only ask to move away.
	switch {
	case s < 0 && distSq1 <= radiusSq:
		if v1.convex {
			b.emit(geometry.Line{Direction: relPos1.Perp().Normalize()})
		}
		return
	case s > 1 && distSq2 <= radiusSq:
		if v2.convex && (v2.next < 0 || relPos2.Cross(v2.direction) >= 0) {
			b.emit(geometry.Line{Direction: relPos2.Perp().Normalize()})
		}
		return
	case s >= 0 && s <= 1 && distSqLine <= radiusSq:
		b.emit(geometry.Line{Direction: v1.direction.Neg()})
		return
	}

	var leftLeg, rightLeg geometry.Vector2D
	switch {
	case s < 0 && distSqLine <= radiusSq:
		// Seen obliquely: the left vertex hides the whole edge.
		if !v1.convex {
			return
		}
		v2 = v1
		leftLeg, rightLeg = tangentLegs(relPos1, b.radius)
	case s > 1 && distSqLine <= radiusSq:
		if !v2.convex {
			return
		}
		v1 = v2
		leftLeg, rightLeg = tangentLegs(relPos2, b.radius)
	default:
		if v1.convex {
			leftLeg, _ = tangentLegs(relPos1, b.radius)
		} else {
			leftLeg = v1.direction.Neg()
		}
		if v2.convex {
			_, rightLeg = tangentLegs(relPos2, b.radius)
		} else {
			rightLeg = v1.direction
		}
	}

	// A leg pointing into the neighbouring edge is replaced by that edge:
	// the neighbour's own line covers it.
	leftForeign, rightForeign := false, false
	if v1.convex && v1.prev >= 0 {
		if prevDir := chain[v1.prev].direction.Neg(); leftLeg.Cross(prevDir) >= 0 {
			leftLeg, leftForeign = prevDir, true
		}
	}
	if v2.convex && v2.next >= 0 && rightLeg.Cross(v2.direction) <= 0 {
		rightLeg, rightForeign = v2.direction, true
	}

	b.project(v1, v2, leftLeg, rightLeg, leftForeign, rightForeign)
}

// project emits the line of the truncated obstacle cone spanned by the cutoff
// segment v1-v2 and the two legs that lies closest to the agent velocity.
// v1 == v2 for a single vertex, whose cutoff is a circle.
func (b *obstacleLineBuilder) project(v1, v2 obstacleVertex, leftLeg, rightLeg geometry.Vector2D, leftForeign, rightForeign bool) {
	vel := b.agent.Velocity
	relPos1 := v1.point.Sub(b.agent.Position)
	relPos2 := v2.point.Sub(b.agent.Position)
	leftCutoff := relPos1.Mul(b.invHorizon)
	rightCutoff := relPos2.Mul(b.invHorizon)
	cutoffVec := rightCutoff.Sub(leftCutoff)
	cutoffRadius := b.radius * b.invHorizon

	single := v1.point == v2.point
	t := 0.5
	if !single {
		t = vel.Sub(leftCutoff).Dot(cutoffVec) / cutoffVec.LenSqr()
	}
	tLeft := vel.Sub(leftCutoff).Dot(leftLeg)
	tRight := vel.Sub(rightCutoff).Dot(rightLeg)

	switch {
	case (t < 0 && tLeft < 0) || (single && tLeft < 0 && tRight < 0):
		unitW := circleNormal(vel.Sub(leftCutoff), relPos1)
		b.emit(geometry.Line{
			Point:     leftCutoff.Add(unitW.Mul(cutoffRadius)),
			Direction: unitW.Perp().Neg(),
		})
		return
	case t > 1 && tRight < 0:
		unitW := circleNormal(vel.Sub(rightCutoff), relPos2)
		b.emit(geometry.Line{
			Point:     rightCutoff.Add(unitW.Mul(cutoffRadius)),
			Direction: unitW.Perp().Neg(),
		})
		return
	}

	distSqCutoff := math.Inf(1)
	if t >= 0 && t <= 1 && !single {
		distSqCutoff = vel.DistanceSquaredTo(leftCutoff.Add(cutoffVec.Mul(t)))
	}
	distSqLeft := math.Inf(1)
	if tLeft >= 0 {
		distSqLeft = vel.DistanceSquaredTo(leftCutoff.Add(leftLeg.Mul(tLeft)))
	}
	distSqRight := math.Inf(1)
	if tRight >= 0 {
		distSqRight = vel.DistanceSquaredTo(rightCutoff.Add(rightLeg.Mul(tRight)))
	}

	switch {
	case distSqCutoff <= distSqLeft && distSqCutoff <= distSqRight:
		dir := v1.direction.Neg()
		b.emit(geometry.Line{Point: leftCutoff.Add(dir.Perp().Mul(cutoffRadius)), Direction: dir})
	case distSqLeft <= distSqRight:
		if leftForeign {
			return
		}
		b.emit(geometry.Line{Point: leftCutoff.Add(leftLeg.Perp().Mul(cutoffRadius)), Direction: leftLeg})
	default:
		if rightForeign {
			return
		}
		dir := rightLeg.Neg()
		b.emit(geometry.Line{Point: rightCutoff.Add(dir.Perp().Mul(cutoffRadius)), Direction: dir})
	}
}

// tangentLegs returns the unit directions of the two tangents from the agent
// to the disc of the given radius around relPos. relPos must lie outside it.
func tangentLegs(relPos geometry.Vector2D, radius float64) (left, right geometry.Vector2D) {
	distSq := relPos.LenSqr()
	leg := math.Sqrt(distSq - radius*radius)
	perp := relPos.Perp().Mul(radius)
	along := relPos.Mul(leg)
	return along.Add(perp).Mul(1 / distSq), along.Sub(perp).Mul(1 / distSq)
}

func closedChain(points []geometry.Vector2D) []obstacleVertex {
	n := len(points)
	chain := make([]obstacleVertex, n)
	for i, p := range points {
		prev, next := (i+n-1)%n, (i+1)%n
		chain[i] = obstacleVertex{
			point:     p,
			direction: points[next].Sub(p).Normalize(),
			convex:    leftOf(points[prev], p, points[next]) >= 0,
			prev:      prev,
			next:      next,
		}
	}
	return chain
}

// openChain links points without wrapping. End vertices are convex tips.
func openChain(points []geometry.Vector2D) []obstacleVertex {
	n := len(points)
	chain := make([]obstacleVertex, n)
	for i, p := range points {
		v := obstacleVertex{point: p, convex: true, prev: i - 1, next: i + 1}
		if i == n-1 {
			v.next = -1
			v.direction = chain[i-1].direction
		} else {
			v.direction = points[i+1].Sub(p).Normalize()
		}
		if v.prev >= 0 && v.next >= 0 {
			v.convex = leftOf(points[v.prev], p, points[v.next]) >= 0
		}
		chain[i] = v
	}
	return chain
}

// dedupeVertices drops consecutive vertices closer than geometry.Epsilon, and
// for a closed polygon a last vertex repeating the first.
func dedupeVertices(vertices []geometry.Vector2D, wrap bool) []geometry.Vector2D {
	const minDistSq = geometry.Epsilon * geometry.Epsilon
	out := make([]geometry.Vector2D, 0, len(vertices))
	for _, v := range vertices {
		if len(out) > 0 && v.DistanceSquaredTo(out[len(out)-1]) <= minDistSq {
			continue
		}
		out = append(out, v)
	}
	for wrap && len(out) > 1 && out[len(out)-1].DistanceSquaredTo(out[0]) <= minDistSq {
		out = out[:len(out)-1]
	}
	return out
}

func distSqToSegment(p, a, b geometry.Vector2D) float64 {
	ab := b.Sub(a)
	s := p.Sub(a).Dot(ab) / ab.LenSqr()
	s = math.Max(0, math.Min(1, s))
	return p.DistanceSquaredTo(a.Add(ab.Mul(s)))
}
