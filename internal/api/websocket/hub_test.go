package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/nextconvert/cutstudio/internal/modules/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func attach(h *Hub, sessionID string, jobIDs ...string) *Client {
	c := &Client{
		hub:           h,
		send:          make(chan []byte, 4),
		sessionID:     sessionID,
		subscriptions: make(map[string]bool),
	}
	for _, id := range jobIDs {
		c.subscriptions[id] = true
	}
	h.clients[c] = true
	return c
}

func drain(c *Client) []Message {
	var out []Message
	for {
		select {
		case raw := <-c.send:
			var msg Message
			if err := json.Unmarshal(raw, &msg); err == nil {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func TestDispatchIsScopedToSession(t *testing.T) {
	h := NewHub(nil, nil, zap.NewNop())
	mine := attach(h, "s1")
	other := attach(h, "s2")

	h.Dispatch(jobs.Event{Type: jobs.EventProgress, JobID: "j1", SessionID: "s1", Progress: 42})

	got := drain(mine)
	require.Len(t, got, 1)
	assert.Equal(t, "job:progress", got[0].Type)

	var ev jobs.Event
	require.NoError(t, json.Unmarshal(got[0].Payload, &ev))
	assert.Equal(t, "j1", ev.JobID)
	assert.Equal(t, 42.0, ev.Progress)

	assert.Empty(t, drain(other))
}

func TestDispatchHonoursSubscriptions(t *testing.T) {
	h := NewHub(nil, nil, zap.NewNop())
	c := attach(h, "s1", "j2")

	h.Dispatch(jobs.Event{Type: jobs.EventStatus, JobID: "j1", SessionID: "s1"})
	assert.Empty(t, drain(c))

	h.Dispatch(jobs.Event{Type: jobs.EventCompleted, JobID: "j2", SessionID: "s1"})
	assert.Len(t, drain(c), 1)

	c.handleMessage(Message{Type: "unsubscribe", Payload: json.RawMessage(`{"jobId":"j2"}`)})
	h.Dispatch(jobs.Event{Type: jobs.EventStatus, JobID: "j1", SessionID: "s1"})
	assert.Len(t, drain(c), 1, "no subscriptions means every job of the session")
}

func TestDispatchSkipsFullClients(t *testing.T) {
	h := NewHub(nil, nil, zap.NewNop())
	c := attach(h, "s1")
	for i := 0; i < cap(c.send); i++ {
		c.send <- []byte("{}")
	}

	assert.NotPanics(t, func() {
		h.Dispatch(jobs.Event{Type: jobs.EventProgress, JobID: "j1", SessionID: "s1"})
	})
	assert.Len(t, c.send, cap(c.send))
}

func TestHandleMessagePing(t *testing.T) {
	h := NewHub(nil, nil, zap.NewNop())
	c := attach(h, "s1")

	c.handleMessage(Message{Type: "ping"})
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, "pong", got[0].Type)

	c.handleMessage(Message{Type: "subscribe", Payload: json.RawMessage(`{"jobId":"j9"}`)})
	assert.True(t, c.subscriptions["j9"])
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	r := httptest.NewRequest("GET", "/api/v1/ws", nil)
	assert.True(t, check(r), "requests without Origin are allowed")

	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
}
