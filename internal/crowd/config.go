package crowd

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/avoidance"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

//go:embed scenario.schema.json
var scenarioSchema string

const scenarioSchemaURL = "scenario.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(scenarioSchemaURL, strings.NewReader(scenarioSchema)); err != nil {
		return nil, err
	}
	return c.Compile(scenarioSchemaURL)
})

// Config describes a scenario: the agents, the static obstacles and how to
// step them.
type Config struct {
	Name     string  `json:"name,omitempty"`
	TimeStep float64 `json:"timeStep,omitempty"`
	Steps    int     `json:"steps,omitempty"`
	Workers  int     `json:"workers,omitempty"`
	CellSize float64 `json:"cellSize,omitempty"`
	// Options apply to every agent that does not carry its own.
	Options   *avoidance.Options `json:"options,omitempty"`
	Agents    []AgentConfig      `json:"agents"`
	Obstacles []ObstacleConfig   `json:"obstacles,omitempty"`
}

// AgentConfig is the initial state of one entity.
type AgentConfig struct {
	ID                      string             `json:"id"`
	Position                geometry.Vector2D  `json:"position"`
	Velocity                geometry.Vector2D  `json:"velocity"`
	Radius                  float64            `json:"radius"`
	AvoidanceResponsibility float64            `json:"avoidanceResponsibility,omitempty"`
	MaxSpeed                float64            `json:"maxSpeed"`
	Goal                    *Goal              `json:"goal,omitempty"`
	Options                 *avoidance.Options `json:"options,omitempty"`
}

// ObstacleConfig is an obstacle in local coordinates plus its placement.
type ObstacleConfig struct {
	Shape     string              `json:"shape"`
	Vertices  []geometry.Vector2D `json:"vertices"`
	Transform *geometry.Transform `json:"transform,omitempty"`
}

// Defaults filled in for fields left out of a scenario file.
const (
	DefaultTimeStep = 1.0 / 60
	DefaultSteps    = 600
)

// LoadConfig reads a scenario file. Files ending in .yaml or .yml are YAML,
// anything else is JSON.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseYAML decodes a YAML scenario. It goes through the same schema as JSON.
func ParseYAML(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode scenario yaml: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("scenario yaml is not representable as json: %w", err)
	}
	return ParseJSON(asJSON)
}

// ParseJSON validates data against the scenario schema, decodes it, applies
// defaults and checks the values.
func ParseJSON(data []byte) (*Config, error) {
	sch, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode scenario json: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("scenario validation failed: %w", err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TimeStep == 0 {
		c.TimeStep = DefaultTimeStep
	}
	if c.Steps == 0 {
		c.Steps = DefaultSteps
	}
	if c.Options == nil {
		opts := avoidance.DefaultOptions()
		c.Options = &opts
	}
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.AvoidanceResponsibility == 0 {
			a.AvoidanceResponsibility = 1
		}
	}
}

// Validate checks what the schema cannot: unique ids, known shapes and the
// avoidance options domain.
func (c *Config) Validate() error {
	if !(c.TimeStep > 0) {
		return fmt.Errorf("%w: got %v", avoidance.ErrInvalidTimeStep, c.TimeStep)
	}
	if c.Options != nil {
		if err := c.Options.Validate(); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}
	var errs []error
	for _, e := range c.Entities() {
		errs = append(errs, e.Validate())
	}
	for i, o := range c.Obstacles {
		if _, err := avoidance.ParseShape(o.Shape); err != nil {
			errs = append(errs, fmt.Errorf("obstacle %d: %w", i, err))
		}
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("duplicate agent id %q", a.ID))
		}
		seen[a.ID] = true
	}
	return errors.Join(errs...)
}

// Entities builds fresh entities from the agent list.
func (c *Config) Entities() []*Entity {
	defaults := avoidance.DefaultOptions()
	if c.Options != nil {
		defaults = *c.Options
	}
	entities := make([]*Entity, len(c.Agents))
	for i, a := range c.Agents {
		opts := defaults
		if a.Options != nil {
			opts = *a.Options
		}
		var goal *Goal
		if a.Goal != nil {
			g := *a.Goal
			goal = &g
		}
		entities[i] = &Entity{
			ID:                      a.ID,
			Position:                a.Position,
			Velocity:                a.Velocity,
			Radius:                  a.Radius,
			AvoidanceResponsibility: a.AvoidanceResponsibility,
			MaxSpeed:                a.MaxSpeed,
			Goal:                    goal,
			Options:                 opts,
		}
	}
	return entities
}

// BuildObstacles places every obstacle in world coordinates.
func (c *Config) BuildObstacles() ([]avoidance.Obstacle, error) {
	obstacles := make([]avoidance.Obstacle, 0, len(c.Obstacles))
	for i, oc := range c.Obstacles {
		shape, err := avoidance.ParseShape(oc.Shape)
		if err != nil {
			return nil, fmt.Errorf("obstacle %d: %w", i, err)
		}
		o := avoidance.Obstacle{Shape: shape, Vertices: append([]geometry.Vector2D(nil), oc.Vertices...)}
		if oc.Transform != nil {
			o = o.Transformed(*oc.Transform)
		}
		obstacles = append(obstacles, o)
	}
	return obstacles, nil
}

// NewWorld builds a World from the scenario. opts are applied after the
// scenario's own workers and cell size.
func (c *Config) NewWorld(opts ...Option) (*World, error) {
	obstacles, err := c.BuildObstacles()
	if err != nil {
		return nil, err
	}
	all := append([]Option{WithWorkers(c.Workers), WithCellSize(c.CellSize)}, opts...)
	return NewWorld(c.Entities(), obstacles, all...)
}
