package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/crowd"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/avoidance"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startHub serves a hub on a test server and returns a dial function.
func startHub(t *testing.T) (*Hub, func() *websocket.Conn) {
	t.Helper()
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	}
	return hub, dial
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func readSnapshot(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var snap map[string]any
	require.NoError(t, conn.ReadJSON(&snap))
	return snap
}

func TestHub_Broadcast(t *testing.T) {
	hub, dial := startHub(t)
	first, second := dial(), dial()
	waitForClients(t, hub, 2)

	n, err := hub.Broadcast(crowd.Snapshot{RunID: "r", Step: 7, Agents: []crowd.AgentState{{ID: "a", Radius: 1}}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, conn := range []*websocket.Conn{first, second} {
		snap := readSnapshot(t, conn)
		assert.Equal(t, "r", snap["runId"])
		assert.Equal(t, 7.0, snap["step"])
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, dial := startHub(t)
	conn := dial()
	waitForClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)

	n, err := hub.Broadcast(crowd.Snapshot{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHub_SlowClientMissesFrames(t *testing.T) {
	hub, dial := startHub(t)
	dial() // never reads
	waitForClients(t, hub, 1)

	delivered := 0
	big := crowd.Snapshot{Agents: make([]crowd.AgentState, 2000)}
	for i := 0; i < 200; i++ {
		n, err := hub.Broadcast(big)
		require.NoError(t, err)
		delivered += n
	}
	assert.Less(t, delivered, 200, "a stalled subscriber must not block the broadcaster")
}

func TestHub_CloseRefusesNewSubscribers(t *testing.T) {
	hub, dial := startHub(t)
	conn := dial()
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	late := dial()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestRun_streamsEveryStep(t *testing.T) {
	hub, dial := startHub(t)
	conn := dial()
	waitForClients(t, hub, 1)

	w, err := crowd.NewWorld([]*crowd.Entity{{
		ID:                      "walker",
		Radius:                  1,
		AvoidanceResponsibility: 1,
		MaxSpeed:                2,
		Goal:                    &crowd.Goal{Destination: geometry.Vector2D{X: 100}},
		Options:                 avoidance.DefaultOptions(),
	}}, nil)
	require.NoError(t, err)

	// 5 steps of 0.1s at 10x speed take about 50ms.
	require.NoError(t, Run(context.Background(), w, hub, 5, 0.1, 10, nil))

	for step := 1; step <= 5; step++ {
		snap := readSnapshot(t, conn)
		assert.Equal(t, float64(step), snap["step"])
	}
}

func TestRun_cancelled(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	w, err := crowd.NewWorld(nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// One step per simulated second in real time: the deadline hits first.
	err = Run(ctx, w, hub, 1000, 1, 1, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, w.StepCount(), 5)
}
