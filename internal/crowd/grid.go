package crowd

import (
	"math"
	"slices"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

type gridKey struct {
	x, y int
}

// spatialGrid hashes entity indices by cell so neighbour queries only look at
// the cells overlapping the query disc. It is rebuilt once per step and only
// read while agents are computed in parallel.
type spatialGrid struct {
	cellSize  float64
	cells     map[gridKey][]int
	positions []geometry.Vector2D
}

func newSpatialGrid(cellSize float64) *spatialGrid {
	return &spatialGrid{
		cellSize: math.Max(cellSize, minCellSize),
		cells:    make(map[gridKey][]int),
	}
}

const minCellSize = 1e-3

func (g *spatialGrid) keyOf(p geometry.Vector2D) gridKey {
	// Floor keeps cells uniform across the axes, int() would fold (-1, 1) into cell 0.
	return gridKey{
		x: int(math.Floor(p.X / g.cellSize)),
		y: int(math.Floor(p.Y / g.cellSize)),
	}
}

// rebuild re-buckets every position. Cells that stay occupied keep their
// backing arrays between steps; cells left empty are removed, so the map only
// ever holds as many keys as there are occupied cells.
func (g *spatialGrid) rebuild(positions []geometry.Vector2D) {
	for k := range g.cells {
		g.cells[k] = g.cells[k][:0]
	}
	g.positions = positions
	for i, p := range positions {
		key := g.keyOf(p)
		g.cells[key] = append(g.cells[key], i)
	}
	for k, idx := range g.cells {
		if len(idx) == 0 {
			delete(g.cells, k)
		}
	}
}

// queryRadius appends to dst the indices of positions within radius of
// center, in ascending order.
func (g *spatialGrid) queryRadius(center geometry.Vector2D, radius float64, dst []int) []int {
	if math.IsInf(radius, 1) {
		for i := range g.positions {
			dst = append(dst, i)
		}
		return dst
	}

	start := len(dst)
	radiusSq := radius * radius
	lo := g.keyOf(geometry.Vector2D{X: center.X - radius, Y: center.Y - radius})
	hi := g.keyOf(geometry.Vector2D{X: center.X + radius, Y: center.Y + radius})

	if span := (float64(hi.x-lo.x) + 1) * (float64(hi.y-lo.y) + 1); span > float64(len(g.cells)) {
		// Fewer occupied cells than cells in range: scan the occupied ones.
		for key, idx := range g.cells {
			if key.x >= lo.x && key.x <= hi.x && key.y >= lo.y && key.y <= hi.y {
				dst = g.appendWithin(dst, idx, center, radiusSq)
			}
		}
	} else {
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				if idx, ok := g.cells[gridKey{x: x, y: y}]; ok {
					dst = g.appendWithin(dst, idx, center, radiusSq)
				}
			}
		}
	}
	slices.Sort(dst[start:])
	return dst
}

func (g *spatialGrid) appendWithin(dst, idx []int, center geometry.Vector2D, radiusSq float64) []int {
	for _, i := range idx {
		if g.positions[i].DistanceSquaredTo(center) <= radiusSq {
			dst = append(dst, i)
		}
	}
	return dst
}
