package terminal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/ashureev/pneuma-terminal/internal/identity"
	"github.com/ashureev/pneuma-terminal/internal/store"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu   sync.Mutex
	runs []*store.Run
}

func (m *memoryRepo) RecordRun(_ context.Context, run *store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRepo) RecentRuns(context.Context, int) ([]*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.Run(nil), m.runs...), nil
}

func (m *memoryRepo) Stats(context.Context) (*store.Stats, error) { return &store.Stats{}, nil }
func (m *memoryRepo) Ping(context.Context) error                  { return nil }
func (m *memoryRepo) Close() error                                { return nil }

type frame map[string]any

func newTestHandler(repo store.Repository) (*WebSocketHandler, *SessionManager) {
	sm := NewSessionManager()
	h := NewWebSocketHandler(sm, func(*slog.Logger) game.Completer { return nopCompleter{} },
		game.DefaultConfig(), "", true)
	h.SetTyping(TypingConfig{})
	h.SetRepository(repo)
	return h, sm
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/terminal?session_id=tab-1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, data))
}

// readUntil reads frames until match returns true and returns everything read.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) []frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frames []frame
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		frames = append(frames, f)
		if match(f) {
			return frames
		}
	}
}

func TestWebSocketGameFlow(t *testing.T) {
	repo := &memoryRepo{}
	h, sm := newTestHandler(repo)
	srv := httptest.NewServer(identity.Middleware(true)(h))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	send(t, conn, wsMessage{Type: msgStart})

	stabilityFrames := 0
	frames := readUntil(t, conn, func(f frame) bool {
		if f["type"] == frameStability {
			stabilityFrames++
		}
		return stabilityFrames == 2
	})
	assert.Equal(t, frameStart, frames[0]["type"])
	assert.Contains(t, frames[0]["subject_id"], "SUBJ-")
	assert.Less(t, frames[len(frames)-1]["value"], float64(100))

	var aiStarted bool
	for _, f := range frames {
		if f["type"] == frameMessageStart && f["role"] == string(game.RoleAI) {
			aiStarted = true
		}
		assert.NotEqual(t, string(game.RoleHuman), f["role"], "opening turn must not be echoed")
	}
	assert.True(t, aiStarted)

	send(t, conn, wsMessage{Type: msgPing})
	readUntil(t, conn, func(f frame) bool { return f["type"] == framePong })

	require.Eventually(t, func() bool { return sm.Count() == 1 }, time.Second, 10*time.Millisecond)

	send(t, conn, wsMessage{Type: msgSurrender})
	readUntil(t, conn, func(f frame) bool {
		return f["type"] == frameMessage && f["role"] == string(game.RoleSystemError)
	})

	require.Eventually(t, func() bool {
		runs, _ := repo.RecentRuns(context.Background(), 10)
		return len(runs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	runs, _ := repo.RecentRuns(context.Background(), 10)
	assert.Equal(t, string(game.ReasonAborted), runs[0].Reason)
	assert.Equal(t, 1, runs[0].Turns)
	assert.NotEmpty(t, runs[0].UserID)
}

func TestWebSocketInputTurn(t *testing.T) {
	h, _ := newTestHandler(nil)
	srv := httptest.NewServer(identity.Middleware(true)(h))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	send(t, conn, wsMessage{Type: msgStart})

	inputs := 0
	readUntil(t, conn, func(f frame) bool {
		if f["type"] == frameInput && f["enabled"] == true {
			inputs++
		}
		// Enabled once by Start, again after the opening turn.
		return inputs == 2
	})

	send(t, conn, wsMessage{Type: msgInput, Content: "who are you"})
	frames := readUntil(t, conn, func(f frame) bool {
		return f["type"] == frameInput && f["enabled"] == true
	})

	var echoed bool
	for _, f := range frames {
		if f["type"] == frameMessage && f["role"] == string(game.RoleHuman) {
			echoed = true
			assert.Equal(t, "who are you", f["text"])
		}
	}
	assert.True(t, echoed)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	sm := NewSessionManager()
	h := NewWebSocketHandler(sm, func(*slog.Logger) game.Completer { return nopCompleter{} },
		game.DefaultConfig(), "https://pneuma.example", false)

	req := httptest.NewRequest(http.MethodGet, "/ws/terminal", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, sm.Count())
}

func TestWebSocketDoubleStartKeepsOneGame(t *testing.T) {
	h, sm := newTestHandler(nil)
	srv := httptest.NewServer(identity.Middleware(true)(h))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	send(t, conn, wsMessage{Type: msgStart})
	send(t, conn, wsMessage{Type: msgStart})

	inputs := 0
	frames := readUntil(t, conn, func(f frame) bool {
		if f["type"] == frameInput && f["enabled"] == true {
			inputs++
		}
		return inputs == 2
	})
	send(t, conn, wsMessage{Type: msgPing})
	frames = append(frames, readUntil(t, conn, func(f frame) bool { return f["type"] == framePong })...)

	starts, replies := 0, 0
	for _, f := range frames {
		assert.NotEqual(t, frameError, f["type"], "running game must not show an init failure")
		switch {
		case f["type"] == frameStart:
			starts++
		case f["type"] == frameMessageStart && f["role"] == string(game.RoleAI):
			replies++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, replies)
	assert.Equal(t, 1, sm.Count())
}
