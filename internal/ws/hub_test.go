package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdiez17/sat-o-mat/internal/predict"
	"github.com/jdiez17/sat-o-mat/internal/telemetry"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesEveryClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	first := dial(t, srv)
	second := dial(t, srv)

	// Registration goes through the handler goroutines; give them a beat.
	time.Sleep(100 * time.Millisecond)

	hub.Publish(telemetry.NewTrackerSample(predict.Sample{
		Timestamp:  time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC),
		AzimuthDeg: 123.45,
	}))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var got struct {
			Type   string `json:"type"`
			TS     string `json:"ts"`
			Sample struct {
				AzimuthDeg float64 `json:"azimuth_deg"`
			} `json:"sample"`
		}
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, string(telemetry.EventTrackerSample), got.Type)
		assert.NotEmpty(t, got.TS)
		assert.Equal(t, 123.45, got.Sample.AzimuthDeg)
	}
}

func TestSlowClientDoesNotBlockPublish(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	// The client never reads, so its queue fills up.
	dial(t, srv)
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendQueueSize*4; i++ {
			hub.Publish(telemetry.NewStepStarted("sched", i, "executor"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow client")
	}
}

func TestRunClosesClientsOnCancel(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	conn := dial(t, srv)
	time.Sleep(100 * time.Millisecond)

	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed by shutdown")

	// A publish after shutdown is harmless.
	hub.Publish(telemetry.NewRunFinished("sched", "completed"))
}
