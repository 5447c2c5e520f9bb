package avoidance

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    Shape
		wantErr bool
	}{
		{"closed", ShapeClosed, false},
		{" Open ", ShapeOpen, false},
		{"polygon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShape(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseShape(%q) error = %v; wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseShape(%q) = %v; want %v", tt.in, got, tt.want)
			}
		})
	}
	if s := Shape(7).String(); s != "Shape(7)" {
		t.Errorf("unknown shape String() = %q", s)
	}
}

func TestRectObstacle(t *testing.T) {
	got := RectObstacle(vec(2, 1))
	want := []geometry.Vector2D{vec(2, 1), vec(-2, 1), vec(-2, -1), vec(2, -1)}
	if got.Shape != ShapeClosed || !slices.Equal(got.Vertices, want) {
		t.Errorf("RectObstacle() = %+v; want closed %v", got, want)
	}
	if signedArea(got.Vertices) <= 0 {
		t.Error("rectangle should be counter-clockwise")
	}
}

func TestObstacle_Transformed(t *testing.T) {
	rect := RectObstacle(vec(1, 1))

	moved := rect.Transformed(geometry.Transform{Translation: vec(5, 0)})
	want := []geometry.Vector2D{vec(6, 1), vec(4, 1), vec(4, -1), vec(6, -1)}
	if !slices.Equal(moved.Vertices, want) {
		t.Errorf("translated vertices = %v; want %v", moved.Vertices, want)
	}
	if !slices.Equal(rect.Vertices, RectObstacle(vec(1, 1)).Vertices) {
		t.Error("Transformed modified the receiver")
	}

	mirrored := rect.Transformed(geometry.Transform{Scale: vec(-2, 1)})
	if signedArea(mirrored.Vertices) <= 0 {
		t.Errorf("mirrored polygon lost its orientation: %v", mirrored.Vertices)
	}
}

func TestObstacle_Bounds(t *testing.T) {
	o := OpenObstacle(vec(1, 5), vec(-2, 3), vec(4, -1))
	lo, hi, ok := o.Bounds()
	if !ok || lo != vec(-2, -1) || hi != vec(4, 5) {
		t.Errorf("Bounds() = %v, %v, %v", lo, hi, ok)
	}
	if got := o.DistanceSquaredToBounds(vec(7, 9)); got != 25 {
		t.Errorf("DistanceSquaredToBounds() = %v; want 25", got)
	}
	if got := o.DistanceSquaredToBounds(vec(0, 0)); got != 0 {
		t.Errorf("DistanceSquaredToBounds(inside) = %v; want 0", got)
	}
	if _, _, ok := (Obstacle{}).Bounds(); ok {
		t.Error("empty obstacle should have no bounds")
	}
	if got := (Obstacle{}).DistanceSquaredToBounds(vec(0, 0)); !math.IsInf(got, 1) {
		t.Errorf("empty obstacle distance = %v; want +Inf", got)
	}
}

func TestObstacleLines(t *testing.T) {
	square := RectObstacle(vec(1, 1)).Transformed(geometry.Transform{Translation: vec(5, 0)})
	clockwise := slices.Clone(square.Vertices)
	slices.Reverse(clockwise)
	closedTwice := append(slices.Clone(square.Vertices), square.Vertices[0])
	wall := OpenObstacle(vec(2, -1), vec(2, 1))

	tests := []struct {
		name     string
		agent    Agent
		obstacle Obstacle
		want     []geometry.Line
	}{
		{
			name:     "box ahead gives its facing edge",
			agent:    Agent{Velocity: vec(1, 0), Radius: 0.5},
			obstacle: square,
			want:     []geometry.Line{{Point: vec(3.5, 1), Direction: vec(0, 1)}},
		},
		{
			name:     "clockwise box is reoriented",
			agent:    Agent{Velocity: vec(1, 0), Radius: 0.5},
			obstacle: ClosedObstacle(clockwise...),
			want:     []geometry.Line{{Point: vec(3.5, 1), Direction: vec(0, 1)}},
		},
		{
			name:     "repeated closing vertex is ignored",
			agent:    Agent{Velocity: vec(1, 0), Radius: 0.5},
			obstacle: ClosedObstacle(closedTwice...),
			want:     []geometry.Line{{Point: vec(3.5, 1), Direction: vec(0, 1)}},
		},
		{
			name:     "open wall seen from the left",
			agent:    Agent{Velocity: vec(1, 0), Radius: 0.5},
			obstacle: wall,
			want:     []geometry.Line{{Point: vec(1.5, 1), Direction: vec(0, 1)}},
		},
		{
			name:     "open wall seen from the right",
			agent:    Agent{Position: vec(4, 0), Velocity: vec(-1, 0), Radius: 0.5},
			obstacle: wall,
			want:     []geometry.Line{{Point: vec(-1.5, -1), Direction: vec(0, -1)}},
		},
		{
			name:     "touching a wall asks to move away",
			agent:    Agent{Position: vec(1.8, 0), Radius: 0.5},
			obstacle: wall,
			want:     []geometry.Line{{Point: vec(0, 0), Direction: vec(0, 1)}},
		},
		{
			name:     "point obstacle ahead",
			agent:    Agent{Velocity: vec(1, 0), Radius: 0.5},
			obstacle: ClosedObstacle(vec(3, 0)),
			want:     []geometry.Line{{Point: vec(2.5, 0), Direction: vec(0, 1)}},
		},
		{
			name:     "touching a point obstacle",
			agent:    Agent{Position: vec(0.2, 0), Radius: 0.5},
			obstacle: OpenObstacle(vec(0, 0), vec(0, 0)),
			want:     []geometry.Line{{Point: vec(0, 0), Direction: vec(0, -1)}},
		},
		{
			name:     "no vertices",
			agent:    Agent{Radius: 0.5},
			obstacle: ClosedObstacle(),
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ObstacleLines(tt.agent, tt.obstacle, 0, 1)
			if err != nil {
				t.Fatalf("ObstacleLines() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ObstacleLines() = %v; want %v", got, tt.want)
			}
			for i := range got {
				if !vecNear(got[i].Point, tt.want[i].Point) || !vecNear(got[i].Direction, tt.want[i].Direction) {
					t.Errorf("line %d = %v; want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestObstacleLines_Margin(t *testing.T) {
	wall := OpenObstacle(vec(2, -1), vec(2, 1))
	agent := Agent{Velocity: vec(1, 0), Radius: 0.5}

	got, err := ObstacleLines(agent, wall, 0.25, 1)
	if err != nil {
		t.Fatalf("ObstacleLines() error = %v", err)
	}
	if len(got) != 1 || !vecNear(got[0].Point, vec(1.25, 1)) {
		t.Errorf("ObstacleLines() with margin = %v; want point (1.25, 1)", got)
	}
}

func TestObstacleLines_Errors(t *testing.T) {
	agent := Agent{Radius: 0.5}
	wall := OpenObstacle(vec(2, -1), vec(2, 1))

	if _, err := ObstacleLines(agent, wall, -1, 1); !errors.Is(err, ErrInvalidObstacleMargin) {
		t.Errorf("negative margin: err = %v", err)
	}
	if _, err := ObstacleLines(agent, wall, 0, 0); !errors.Is(err, ErrInvalidObstacleTimeHorizon) {
		t.Errorf("zero horizon: err = %v", err)
	}
}

func TestObstacleLines_NeverDegenerate(t *testing.T) {
	obstacles := []Obstacle{
		RectObstacle(vec(2, 1)),
		OpenObstacle(vec(-3, 0), vec(0, 0), vec(0, 3), vec(3, 3)),
		ClosedObstacle(vec(0, 0), vec(4, 0), vec(4, 4), vec(2, 1), vec(0, 4)),
		ClosedObstacle(vec(1, 1), vec(3, 1)),
	}
	for _, o := range obstacles {
		for x := -6.0; x <= 6; x += 0.75 {
			for y := -6.0; y <= 6; y += 0.75 {
				agent := Agent{Position: vec(x, y), Velocity: vec(-y, x).Mul(0.1), Radius: 0.4}
				lines, err := ObstacleLines(agent, o, 0.1, 2)
				if err != nil {
					t.Fatalf("ObstacleLines() error = %v", err)
				}
				for _, l := range lines {
					if l.Direction.IsZero() || !l.Direction.IsFinite() || !l.Point.IsFinite() {
						t.Fatalf("degenerate line %v for agent at (%v, %v)", l, x, y)
					}
					if math.Abs(l.Direction.Len()-1) > tolerance {
						t.Fatalf("non unit direction %v for agent at (%v, %v)", l.Direction, x, y)
					}
				}
			}
		}
	}
}
