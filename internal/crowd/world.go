// Package crowd is the host simulation around the avoidance core: it owns the
// entities, finds their neighbours, computes every avoiding velocity of a step
// in parallel on a frozen snapshot and only then moves everybody.
package crowd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/avoidance"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// World holds the authoritative state of a simulation run.
type World struct {
	runID     string
	entities  []*Entity
	obstacles []avoidance.Obstacle
	grid      *spatialGrid
	workers   int
	logger    *zap.Logger

	step    int
	elapsed float64
}

// Option customises a World.
type Option func(*World)

// WithWorkers bounds how many agents are computed concurrently. n <= 0 uses
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithCellSize sets the spatial grid cell size. By default it is the largest
// neighbour query radius of the entities.
func WithCellSize(size float64) Option {
	return func(w *World) {
		if size > 0 {
			w.grid = newSpatialGrid(size)
		}
	}
}

// WithLogger attaches a logger; the World is silent without one.
func WithLogger(l *zap.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(w *World) {
		if id != "" {
			w.runID = id
		}
	}
}

// NewWorld takes ownership of the entities. Obstacles must already be placed
// in world coordinates.
func NewWorld(entities []*Entity, obstacles []avoidance.Obstacle, opts ...Option) (*World, error) {
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if e == nil {
			return nil, errors.New("nil entity")
		}
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("duplicate entity id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
	}

	w := &World{
		runID:     uuid.NewString(),
		entities:  entities,
		obstacles: obstacles,
		workers:   runtime.GOMAXPROCS(0),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.grid == nil {
		w.grid = newSpatialGrid(defaultCellSize(entities))
	}
	w.logger = w.logger.With(zap.String("run_id", w.runID))
	w.logger.Debug("world created",
		zap.Int("entities", len(entities)),
		zap.Int("obstacles", len(obstacles)),
		zap.Int("workers", w.workers),
		zap.Float64("cell_size", w.grid.cellSize))
	return w, nil
}

func defaultCellSize(entities []*Entity) float64 {
	size := 0.0
	for _, e := range entities {
		if r := neighbourReach(e); !math.IsInf(r, 1) {
			size = math.Max(size, r)
		}
	}
	if size == 0 {
		return 10
	}
	return size
}

// neighbourReach is how far another agent can be and still matter within the
// time horizon.
func neighbourReach(e *Entity) float64 {
	return e.Radius + e.Options.TimeHorizon*e.MaxSpeed
}

// obstacleReach is the same for static obstacles, inflated by the margin.
func obstacleReach(e *Entity) float64 {
	return e.Radius + e.Options.ObstacleMargin + e.Options.ObstacleTimeHorizon*e.MaxSpeed
}

// RunID identifies this run in logs and snapshots.
func (w *World) RunID() string { return w.runID }

// StepCount is the number of steps applied so far.
func (w *World) StepCount() int { return w.step }

// Obstacles returns the static obstacles.
func (w *World) Obstacles() []avoidance.Obstacle { return w.obstacles }

// Step advances the simulation by dt seconds. A non-positive dt is ignored.
//
// Every velocity is computed from the same snapshot before any entity moves.
// If ctx is cancelled or an agent fails, no entity is changed.
func (w *World) Step(ctx context.Context, dt float64) error {
	if !(dt > 0) {
		w.logger.Debug("skipping step with non-positive time step", zap.Float64("dt", dt))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	agents := make([]avoidance.Agent, len(w.entities))
	positions := make([]geometry.Vector2D, len(w.entities))
	for i, e := range w.entities {
		agents[i] = e.Agent()
		positions[i] = e.Position
	}
	w.grid.rebuild(positions)

	next := make([]geometry.Vector2D, len(w.entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, e := range w.entities {
		if e.Goal == nil {
			next[i] = e.Velocity
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := w.avoid(i, agents, dt)
			if err != nil {
				return fmt.Errorf("agent %q: %w", e.ID, err)
			}
			next[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, e := range w.entities {
		e.Velocity = next[i]
		e.Integrate(dt)
	}
	w.step++
	w.elapsed += dt
	return nil
}

// avoid computes the new velocity of entity i. It only reads shared state.
func (w *World) avoid(i int, agents []avoidance.Agent, dt float64) (geometry.Vector2D, error) {
	e := w.entities[i]

	idx := w.grid.queryRadius(e.Position, neighbourReach(e), nil)
	neighbours := make([]avoidance.Agent, 0, len(idx))
	for _, j := range idx {
		if j != i {
			neighbours = append(neighbours, agents[j])
		}
	}

	var obstacles []avoidance.Obstacle
	reach := obstacleReach(e)
	for _, o := range w.obstacles {
		if o.DistanceSquaredToBounds(e.Position) <= reach*reach {
			obstacles = append(obstacles, o)
		}
	}

	return agents[i].ComputeAvoidingVelocity(neighbours, obstacles, e.PreferredVelocity(), e.MaxSpeed, dt, e.Options)
}

// Snapshot copies the current state.
func (w *World) Snapshot() Snapshot {
	s := Snapshot{
		RunID:  w.runID,
		Step:   w.step,
		Time:   w.elapsed,
		Agents: make([]AgentState, len(w.entities)),
	}
	for i, e := range w.entities {
		s.Agents[i] = AgentState{
			ID:       e.ID,
			Position: e.Position,
			Velocity: e.Velocity,
			Radius:   e.Radius,
			Arrived:  e.Arrived(),
		}
	}
	return s
}

// Run performs steps steps of dt seconds, calling observe (if not nil) with a
// snapshot after each one. Progress is logged at most once per second.
func (w *World) Run(ctx context.Context, steps int, dt float64, observe func(Snapshot)) error {
	start := time.Now()
	progress := rate.Sometimes{Interval: time.Second}

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Step(ctx, dt); err != nil {
			return fmt.Errorf("step %d: %w", w.step, err)
		}
		if observe != nil {
			observe(w.Snapshot())
		}
		progress.Do(func() {
			w.logger.Info("simulating",
				zap.Int("step", w.step),
				zap.Int("of", steps),
				zap.Float64("sim_time", w.elapsed))
		})
	}

	final := w.Snapshot()
	w.logger.Info("run finished",
		zap.Int("steps", w.step),
		zap.Float64("sim_time", w.elapsed),
		zap.Duration("wall_time", time.Since(start)),
		zap.Int("arrived", final.ArrivedCount()),
		zap.Int("agents", len(final.Agents)))
	return nil
}
