package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/ashureev/pneuma-terminal/internal/identity"
	"github.com/ashureev/pneuma-terminal/internal/store"
	"github.com/ashureev/pneuma-terminal/internal/transcript"
	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

// Client frame types.
const (
	msgStart     = "start"
	msgInput     = "input"
	msgRestart   = "restart"
	msgSurrender = "surrender"
	msgPing      = "ping"
)

// CompleterFactory builds the completion client for one connection. Each
// game owns its own conversation history.
type CompleterFactory func(logger *slog.Logger) game.Completer

// WebSocketHandler serves one game session per browser tab.
type WebSocketHandler struct {
	sm            *SessionManager
	newCompleter  CompleterFactory
	gameCfg       game.Config
	typing        TypingConfig
	repo          store.Repository
	transcripts   transcript.Logger
	frameLimit    rate.Limit
	frameBurst    int
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(sm *SessionManager, newCompleter CompleterFactory, gameCfg game.Config, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		sm:            sm,
		newCompleter:  newCompleter,
		gameCfg:       gameCfg,
		typing:        DefaultTypingConfig(),
		frameLimit:    rate.Limit(5),
		frameBurst:    10,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// SetRepository records every finished run in repo.
func (h *WebSocketHandler) SetRepository(repo store.Repository) {
	h.repo = repo
}

// SetTranscripts mirrors displayed text to a transcript logger.
func (h *WebSocketHandler) SetTranscripts(l transcript.Logger) {
	h.transcripts = l
}

// SetTyping replaces the typewriter pacing.
func (h *WebSocketHandler) SetTyping(cfg TypingConfig) {
	h.typing = cfg
}

// SetFrameLimit caps client frames per connection. Frames over the limit
// are dropped.
func (h *WebSocketHandler) SetFrameLimit(limit rate.Limit, burst int) {
	h.frameLimit = limit
	h.frameBurst = burst
}

// wsMessage represents WebSocket message structure.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	logger := slog.With("user_id", userID, "session_id", sessionID)
	logger.Info("WebSocket connection request", "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	presenter := NewPresenter(ctx, ws, NewTypewriter(h.typing), logger)
	var view game.Presenter = presenter
	if h.transcripts != nil {
		view = transcript.NewTee(presenter, h.transcripts, userID, sessionID)
		defer h.transcripts.Release(userID, sessionID)
	}

	session := game.NewSession(h.gameCfg, h.newCompleter(logger), view,
		game.WithLogger(logger),
		game.WithOnEnd(h.recordRun(userID, logger)),
	)

	h.sm.Register(userID, sessionID, ws, session)
	defer h.sm.Unregister(userID, sessionID, session)

	var turns sync.WaitGroup
	h.inputLoop(ctx, ws, session, presenter, &turns, logger)

	// A closed socket abandons the game.
	session.EndGame(false)
	cancel()
	turns.Wait()
	logger.Info("Game session ended")
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, session *game.Session, presenter *Presenter, turns *sync.WaitGroup, logger *slog.Logger) {
	limiter := rate.NewLimiter(h.frameLimit, h.frameBurst)

	// Turns and boots run on their own goroutines so pings and dropped
	// submissions are still read while a reply is pending.
	spawn := func(fn func()) {
		turns.Add(1)
		go func() {
			defer turns.Done()
			fn()
		}()
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				logger.Debug("WebSocket closed by client")
			} else {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("Ignoring malformed frame", "error", err)
			continue
		}
		if msg.Type != msgPing && !limiter.Allow() {
			logger.Debug("Client frame rate limited", "type", msg.Type)
			continue
		}

		switch msg.Type {
		case msgStart:
			if session.Snapshot().State != game.StateNotStarted {
				logger.Debug("Ignoring start for a running game")
				continue
			}
			spawn(func() { h.launch(ctx, session, logger) })
		case msgRestart:
			if err := session.Reset(); err != nil {
				logger.Debug("Restart refused", "error", err)
				continue
			}
			spawn(func() { h.launch(ctx, session, logger) })
		case msgInput:
			content := msg.Content
			spawn(func() {
				if err := session.SubmitTurn(ctx, content); err != nil {
					logger.Debug("Turn rejected", "error", err)
				}
			})
		case msgSurrender:
			session.EndGame(false)
		case msgPing:
			presenter.Pong()
		default:
			logger.Debug("Unknown frame type", "type", msg.Type)
		}
	}
}

func (h *WebSocketHandler) launch(ctx context.Context, session *game.Session, logger *slog.Logger) {
	err := session.Launch(ctx)
	switch {
	case err == nil:
	case errors.Is(err, game.ErrAlreadyStarted):
		logger.Debug("Game already launched")
	default:
		logger.Warn("Failed to launch game", "error", err)
	}
}

// recordRun returns the end hook that appends a finished game to the ledger.
func (h *WebSocketHandler) recordRun(userID string, logger *slog.Logger) func(game.Summary) {
	return func(sum game.Summary) {
		if h.repo == nil {
			return
		}
		run := &store.Run{
			UserID:       userID,
			SubjectID:    sum.SubjectID,
			Won:          sum.Outcome.Won,
			Reason:       string(sum.Outcome.Reason),
			Stability:    sum.Stability,
			TimerSeconds: sum.TimerSeconds,
			Phase:        sum.Phase,
			Turns:        sum.Turns,
			StartedAt:    sum.StartedAt,
			EndedAt:      sum.EndedAt,
		}
		// Record asynchronously with timeout; the hook may run on the tick goroutine.
		go func() {
			recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.repo.RecordRun(recordCtx, run); err != nil {
				logger.Warn("Failed to record run", "error", err, "subject_id", run.SubjectID)
			}
		}()
	}
}
