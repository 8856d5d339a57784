// Package terminal serves PNEUMA game sessions to the browser terminal over
// WebSocket.
package terminal

import (
	"log/slog"
	"sync"

	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/coder/websocket"
)

// activeSession is one connected tab and the game it is playing.
type activeSession struct {
	conn    *websocket.Conn
	session *game.Session
}

// SessionManager tracks the live game session of every browser tab.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]activeSession
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]activeSession),
	}
}

// GetActive returns the game session for a user and tab.
func (m *SessionManager) GetActive(userID, sessionID string) *game.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID].session
	}
	return nil
}

// Count returns the number of connected tabs.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds a tab's game session. A session already registered for the
// same tab is ended and its connection closed.
func (m *SessionManager) Register(userID, sessionID string, conn *websocket.Conn, session *game.Session) {
	m.mu.Lock()
	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]activeSession)
	}
	existing, replaced := m.active[userID][sessionID]
	m.active[userID][sessionID] = activeSession{conn: conn, session: session}
	m.mu.Unlock()

	if replaced && existing.session != session {
		closeSession(existing, "session replaced")
	}
	slog.Info("Game session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a tab's game session if it is still the registered one.
func (m *SessionManager) Unregister(userID, sessionID string, session *game.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current.session == session {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Game session unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseUserSessions ends every game a user is playing in any tab, closes
// their sockets and returns how many were closed.
func (m *SessionManager) CloseUserSessions(userID string) int {
	m.mu.Lock()
	sessions := m.active[userID]
	delete(m.active, userID)
	m.mu.Unlock()

	for sid, s := range sessions {
		closeSession(s, "session closed")
		slog.Info("Game session closed", "user_id", userID, "session_id", sid)
	}
	return len(sessions)
}

// CloseAll ends every registered game. Used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := m.active
	m.active = make(map[string]map[string]activeSession)
	m.mu.Unlock()

	for _, sessions := range all {
		for _, s := range sessions {
			closeSession(s, "server shutting down")
		}
	}
}

func closeSession(s activeSession, reason string) {
	if s.session != nil {
		s.session.EndGame(false)
	}
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, reason)
	}
}
