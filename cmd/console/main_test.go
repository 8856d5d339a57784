package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/config"
	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"`+reply+`"}}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"COMPLETION_BASE_URL": baseURL,
		"IDENTITY_ENABLED":    "false",
		"GREETING_ENABLED":    "false",
		"TRANSCRIPT_ENABLED":  "false",
	})
	require.NoError(t, err)
	return cfg
}

func TestPlayOneTurn(t *testing.T) {
	srv := chatServer(t, "[RESPONSE]I see you.[/RESPONSE]")
	cfg := testConfig(t, srv.URL)

	var out bytes.Buffer
	in := strings.NewReader("who are you\n/quit\n")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := play(context.Background(), cfg, consoleOptions{noTyping: true}, in, &out, logger)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "=== SUBJECT SUBJ-")
	assert.Contains(t, text, "> Welcome to your session. I am PNEUMA. Let's begin.")
	assert.Equal(t, 2, strings.Count(text, "PNEUMA: I see you."))
	assert.NotContains(t, text, "> who are you")
}

// lockedBuffer is a bytes.Buffer safe for a logger and a test to share.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPlayDropsInputWhileReplyPending(t *testing.T) {
	var requests atomic.Int32
	pending := make(chan struct{})
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The opening turn answers at once; the first player turn waits.
		if requests.Add(1) == 2 {
			close(pending)
			<-release
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"[RESPONSE]noted[/RESPONSE]"}}]}`)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(unblock)
	cfg := testConfig(t, srv.URL)

	logs := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- play(context.Background(), cfg, consoleOptions{noTyping: true}, pr, &out, logger)
	}()

	_, err := io.WriteString(pw, "first\n")
	require.NoError(t, err)
	<-pending

	_, err = io.WriteString(pw, "second\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Input dropped while a reply is pending")
	}, 2*time.Second, 10*time.Millisecond)

	unblock()
	_, err = io.WriteString(pw, "/quit\n")
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, 2, strings.Count(out.String(), "PNEUMA: noted"))
}

func TestConsolePresenter(t *testing.T) {
	var out bytes.Buffer
	p := newConsolePresenter(context.Background(), &out, nil)

	p.ShowStart("SUBJ-12345")
	p.AddMessage("ignored", game.MessageOptions{Role: game.RoleHuman})
	p.AddMessage("hello", game.MessageOptions{Role: game.RoleAI, Animated: true})
	p.AddMessage("// SECURITY PROTOCOL ESCALATED: PHASE 2 ENGAGED //", game.MessageOptions{Role: game.RoleSystemWarning})
	p.UpdateTimerDisplay("09:59")
	p.UpdateTimerDisplay("09:00")
	p.UpdateTimerDisplay("00:05")
	p.UpdateStabilityDisplay(42)
	p.ShowError("Failed to initialize. Please refresh and try again.")

	assert.Equal(t, strings.Join([]string{
		"=== SUBJECT SUBJ-12345 CONNECTED ===",
		"PNEUMA: hello",
		"!! // SECURITY PROTOCOL ESCALATED: PHASE 2 ENGAGED //",
		"[09:00 remaining]",
		"[00:05 remaining]",
		"[stability 42%]",
		"ERROR: Failed to initialize. Please refresh and try again.",
	}, "\n")+"\n", out.String())
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := newRootCommand(strings.NewReader(""), io.Discard)
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}
