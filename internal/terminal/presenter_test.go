package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []map[string]any
	failAt int
}

func (c *fakeConn) Write(_ context.Context, typ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if typ != websocket.MessageText {
		return errors.New("unexpected message type")
	}
	if c.failAt > 0 && len(c.frames)+1 >= c.failAt {
		return errors.New("connection closed")
	}
	var f map[string]any
	if err := json.Unmarshal(p, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i], _ = f["type"].(string)
	}
	return out
}

func TestPresenterFrames(t *testing.T) {
	conn := &fakeConn{}
	p := NewPresenter(context.Background(), conn, nil, nil)

	p.ShowStart("SUBJ-12345")
	p.UpdateTimerDisplay("10:00")
	p.UpdateStabilityDisplay(0)
	p.ToggleInputEnabled(false)
	p.ShowLoading("Initializing system...")
	p.HideLoading()
	p.ShowError("Failed to initialize. Please refresh and try again.")
	p.Pong()

	require.Len(t, conn.frames, 8)
	assert.Equal(t, map[string]any{"type": "start", "subject_id": "SUBJ-12345"}, conn.frames[0])
	assert.Equal(t, map[string]any{"type": "timer", "value": "10:00"}, conn.frames[1])
	assert.Equal(t, map[string]any{"type": "stability", "value": float64(0)}, conn.frames[2])
	assert.Equal(t, map[string]any{"type": "input", "enabled": false}, conn.frames[3])
	assert.Equal(t, map[string]any{"type": "loading", "text": "Initializing system..."}, conn.frames[4])
	assert.Equal(t, map[string]any{"type": "loading_done"}, conn.frames[5])
	assert.Equal(t, "error", conn.frames[6]["type"])
	assert.Equal(t, map[string]any{"type": "pong"}, conn.frames[7])
}

func TestPresenterMessages(t *testing.T) {
	conn := &fakeConn{}
	p := NewPresenter(context.Background(), conn, NewTypewriter(TypingConfig{}), nil)

	p.AddMessage("Hi", game.MessageOptions{Role: game.RoleHuman})
	p.AddMessage("ok.", game.MessageOptions{Role: game.RoleAI, Animated: true})

	assert.Equal(t, []string{
		"message",
		"message_start", "message_chunk", "message_chunk", "message_chunk", "message_end",
	}, conn.types())
	assert.Equal(t, map[string]any{"type": "message", "id": float64(1), "role": "human", "text": "Hi"}, conn.frames[0])
	assert.Equal(t, map[string]any{"type": "message_start", "id": float64(2), "role": "ai"}, conn.frames[1])
	assert.Equal(t, "o", conn.frames[2]["text"])
	assert.Equal(t, float64(2), conn.frames[5]["id"])
}

func TestPresenterGoesQuietAfterWriteFailure(t *testing.T) {
	conn := &fakeConn{failAt: 3}
	p := NewPresenter(context.Background(), conn, NewTypewriter(TypingConfig{}), nil)

	p.AddMessage("abcdef", game.MessageOptions{Role: game.RoleAI, Animated: true})
	p.UpdateTimerDisplay("09:59")

	assert.Equal(t, []string{"message_start", "message_chunk"}, conn.types())
}

func TestPresenterClosedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &fakeConn{}
	p := NewPresenter(ctx, conn, nil, nil)
	p.ShowStart("SUBJ-10000")
	p.AddMessage("hello", game.MessageOptions{Animated: true})

	assert.Empty(t, conn.frames)
}
