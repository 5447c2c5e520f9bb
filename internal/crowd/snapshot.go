package crowd

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// AgentState is the observable state of one entity after a step.
type AgentState struct {
	ID       string
	Position geometry.Vector2D
	Velocity geometry.Vector2D
	Radius   float64
	Arrived  bool
}

// Snapshot is a copy of the world between two steps. It shares nothing with
// the World and can be handed to another goroutine.
type Snapshot struct {
	RunID  string
	Step   int
	Time   float64
	Agents []AgentState
}

// Fingerprint hashes the step counter and every agent's exact float bits, so
// two runs agree on it only if they are bit-for-bit identical.
func (s Snapshot) Fingerprint() uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 64)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Step))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(s.Time))
	_, _ = d.Write(buf)
	for _, a := range s.Agents {
		buf = buf[:0]
		buf = append(buf, a.ID...)
		buf = append(buf, 0)
		for _, f := range [...]float64{a.Position.X, a.Position.Y, a.Velocity.X, a.Velocity.Y, a.Radius} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}

// MinSeparation is the smallest gap between two agent discs, negative when
// some overlap, +Inf with fewer than two agents.
func (s Snapshot) MinSeparation() float64 {
	minGap := math.Inf(1)
	for i := range s.Agents {
		for j := i + 1; j < len(s.Agents); j++ {
			a, b := s.Agents[i], s.Agents[j]
			minGap = math.Min(minGap, a.Position.DistanceTo(b.Position)-a.Radius-b.Radius)
		}
	}
	return minGap
}

// ArrivedCount counts agents at their goal.
func (s Snapshot) ArrivedCount() int {
	n := 0
	for _, a := range s.Agents {
		if a.Arrived {
			n++
		}
	}
	return n
}

// ToProto wraps the snapshot in a protobuf Struct envelope.
func (s Snapshot) ToProto() (*structpb.Struct, error) {
	agents := make([]any, len(s.Agents))
	for i, a := range s.Agents {
		agents[i] = map[string]any{
			"id":       a.ID,
			"position": map[string]any{"x": a.Position.X, "y": a.Position.Y},
			"velocity": map[string]any{"x": a.Velocity.X, "y": a.Velocity.Y},
			"radius":   a.Radius,
			"arrived":  a.Arrived,
		}
	}
	return structpb.NewStruct(map[string]any{
		"runId":  s.RunID,
		"step":   s.Step,
		"time":   s.Time,
		"agents": agents,
	})
}

// MarshalJSON renders the protobuf envelope with protojson.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	st, err := s.ToProto()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(st)
}
