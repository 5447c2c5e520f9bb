package crowd

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/avoidance"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

type scenario struct {
	description string
	build       func(rng *rand.Rand) *Config
}

var scenarios = map[string]scenario{
	"circle": {
		description: "60 agents on a circle walk to the opposite side",
		build:       circleScenario,
	},
	"line": {
		description: "two columns of 20 agents swap sides",
		build:       lineScenario,
	},
	"random": {
		description: "2000 agents with random goals around a box and a triangle",
		build:       randomScenario,
	},
	"corridor": {
		description: "two groups cross each other between two walls",
		build:       corridorScenario,
	},
}

// ScenarioNames lists the built-in scenarios in alphabetical order.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ScenarioDescription returns the one line summary of a built-in scenario.
func ScenarioDescription(name string) string {
	return scenarios[name].description
}

// Scenario builds a built-in scenario. The same seed always gives the same
// configuration.
func Scenario(name string, seed uint64) (*Config, error) {
	s, ok := scenarios[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (available: %s)", name, strings.Join(ScenarioNames(), ", "))
	}
	cfg := s.build(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	cfg.Name = strings.ToLower(name)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", name, err)
	}
	return cfg, nil
}

func optionsOf(margin, horizon, obstacleHorizon float64) *avoidance.Options {
	return &avoidance.Options{
		ObstacleMargin:      margin,
		TimeHorizon:         horizon,
		ObstacleTimeHorizon: obstacleHorizon,
	}
}

func circleScenario(rng *rand.Rand) *Config {
	const n = 60
	cfg := &Config{
		TimeStep: 1.0 / 60,
		Steps:    2400,
		Options:  optionsOf(0.1, 6, 1),
	}
	for i := 0; i < n; i++ {
		p := geometry.NewVectorPolar(400, 2*math.Pi*float64(i)/n)
		cfg.Agents = append(cfg.Agents, AgentConfig{
			ID:                      fmt.Sprintf("circle-%03d", i),
			Position:                p,
			Radius:                  12,
			AvoidanceResponsibility: 1 + rng.Float64(),
			MaxSpeed:                30,
			Goal:                    &Goal{Destination: p.Neg(), Tolerance: 1},
		})
	}
	return cfg
}

func lineScenario(rng *rand.Rand) *Config {
	const (
		pairs  = 20
		rightX = 400.0
	)
	cfg := &Config{
		TimeStep: 1.0 / 60,
		Steps:    1200,
		Options:  optionsOf(2.1, 3, 1),
	}
	for i := 0; i < pairs; i++ {
		y := -250 + 20*float64(i)
		cfg.Agents = append(cfg.Agents,
			AgentConfig{
				ID:                      fmt.Sprintf("east-%02d", i),
				Position:                geometry.Vector2D{X: rightX - 100, Y: y},
				Radius:                  8,
				AvoidanceResponsibility: 1 + rng.Float64(),
				MaxSpeed:                30,
				Goal:                    &Goal{Destination: geometry.Vector2D{X: rightX + 200}, Tolerance: 4},
			},
			AgentConfig{
				ID:                      fmt.Sprintf("west-%02d", i),
				Position:                geometry.Vector2D{X: rightX + 100, Y: y},
				Radius:                  8,
				AvoidanceResponsibility: 1 + rng.Float64(),
				MaxSpeed:                30,
				Goal:                    &Goal{Destination: geometry.Vector2D{X: rightX - 200}, Tolerance: 4},
			})
	}
	return cfg
}

func randomScenario(rng *rand.Rand) *Config {
	const (
		n      = 2000
		extent = 2000.0
	)
	uniform := func() geometry.Vector2D {
		return geometry.Vector2D{X: (rng.Float64()*2 - 1) * extent, Y: (rng.Float64()*2 - 1) * extent}
	}
	cfg := &Config{
		TimeStep: 1.0 / 60,
		Steps:    600,
		Options:  optionsOf(8.1, 5, 3),
		Obstacles: []ObstacleConfig{
			{Shape: "closed", Vertices: RectVertices(150, 150)},
			{Shape: "closed", Vertices: []geometry.Vector2D{{X: 300, Y: 400}, {X: 200, Y: 300}, {X: 400, Y: 300}}},
		},
	}
	for i := 0; i < n; i++ {
		cfg.Agents = append(cfg.Agents, AgentConfig{
			ID:                      fmt.Sprintf("agent-%04d", i),
			Position:                uniform(),
			Radius:                  8,
			AvoidanceResponsibility: 1,
			MaxSpeed:                30,
			Goal:                    &Goal{Destination: uniform(), Tolerance: 4},
		})
	}
	return cfg
}

func corridorScenario(rng *rand.Rand) *Config {
	const (
		perSide   = 12
		halfWidth = 40.0
		length    = 400.0
	)
	cfg := &Config{
		TimeStep: 1.0 / 60,
		Steps:    1500,
		Options:  optionsOf(2.1, 3, 1),
		Obstacles: []ObstacleConfig{
			{Shape: "open", Vertices: []geometry.Vector2D{{X: -length, Y: halfWidth}, {X: length, Y: halfWidth}}},
			{Shape: "open", Vertices: []geometry.Vector2D{{X: -length, Y: -halfWidth}, {X: length, Y: -halfWidth}}},
		},
	}
	for i := 0; i < perSide; i++ {
		x := 280 + 20*float64(i/4)
		y := -24 + 16*float64(i%4)
		cfg.Agents = append(cfg.Agents,
			AgentConfig{
				ID:                      fmt.Sprintf("eastbound-%02d", i),
				Position:                geometry.Vector2D{X: -x, Y: y},
				Radius:                  8,
				AvoidanceResponsibility: 1 + rng.Float64(),
				MaxSpeed:                30,
				Goal:                    &Goal{Destination: geometry.Vector2D{X: x, Y: y}, Tolerance: 4},
			},
			AgentConfig{
				ID:                      fmt.Sprintf("westbound-%02d", i),
				Position:                geometry.Vector2D{X: x, Y: -y},
				Radius:                  8,
				AvoidanceResponsibility: 1 + rng.Float64(),
				MaxSpeed:                30,
				Goal:                    &Goal{Destination: geometry.Vector2D{X: -x, Y: -y}, Tolerance: 4},
			})
	}
	return cfg
}

// RectVertices is the counter-clockwise box of the given half extents
// centred on the origin.
func RectVertices(halfX, halfY float64) []geometry.Vector2D {
	return avoidance.RectObstacle(geometry.Vector2D{X: halfX, Y: halfY}).Vertices
}
