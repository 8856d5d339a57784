// Package transcript writes per-session NDJSON transcripts of everything a
// game session displays.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one transcript line.
type Event struct {
	Time      time.Time `json:"time"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	Kind      string    `json:"kind"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text"`
}

// Logger accepts transcript events. Log never blocks.
type Logger interface {
	Log(ev Event)
	// Release closes the transcript of a finished tab once its queued
	// events are written. Later events for the tab reopen it.
	Release(userID, sessionID string)
	Close() error
}

// kindRelease marks an internal queue entry that closes a transcript.
const kindRelease = "release"


// NewLogger returns an asynchronous file logger, or a no-op logger when
// transcripts are disabled.
func NewLogger(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return nopLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l := &fileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		files:  make(map[string]*os.File),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

type nopLogger struct{}

func (nopLogger) Log(Event)              {}
func (nopLogger) Release(string, string) {}
func (nopLogger) Close() error           { return nil }

type fileLogger struct {
	dir    string
	queue  chan Event
	logger *slog.Logger

	filesMu sync.Mutex
	files   map[string]*os.File

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func (l *fileLogger) Log(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("transcript queue full, dropping event",
			"user_id", ev.UserID,
			"session_id", ev.SessionID,
			"kind", ev.Kind,
		)
	}
}

// Release queues behind pending events and may wait for queue space.
func (l *fileLogger) Release(userID, sessionID string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.queue <- Event{UserID: userID, SessionID: sessionID, Kind: kindRelease}
}

func (l *fileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	defer func() {
		l.filesMu.Lock()
		defer l.filesMu.Unlock()
		for key, f := range l.files {
			l.closeFile(key, f)
		}
		l.files = map[string]*os.File{}
	}()

	for ev := range l.queue {
		if ev.Kind == kindRelease {
			l.release(ev.UserID, ev.SessionID)
			continue
		}
		if err := l.write(ev); err != nil {
			l.logger.Warn("failed to write transcript event", "error", err, "user_id", ev.UserID)
		}
	}
}

func (l *fileLogger) write(ev Event) error {
	f, err := l.file(ev.UserID, ev.SessionID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (l *fileLogger) release(userID, sessionID string) {
	key := fileKey(userID, sessionID)
	l.filesMu.Lock()
	f, ok := l.files[key]
	delete(l.files, key)
	l.filesMu.Unlock()

	if ok {
		l.closeFile(key, f)
	}
}

func (l *fileLogger) closeFile(key string, f *os.File) {
	if err := f.Close(); err != nil {
		l.logger.Debug("failed to close transcript file", "file", key, "error", err)
	}
}

func fileKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

func (l *fileLogger) file(userID, sessionID string) (*os.File, error) {
	key := fileKey(userID, sessionID)
	l.filesMu.Lock()
	defer l.filesMu.Unlock()
	if f, ok := l.files[key]; ok {
		return f, nil
	}

	dir := filepath.Join(l.dir, safeName(userID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	path := filepath.Join(dir, safeName(sessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	l.files[key] = f
	return f, nil
}

// safeName keeps an id usable as a single path element.
func safeName(id string) string {
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
	if id == "" {
		return "unknown"
	}
	return id
}
