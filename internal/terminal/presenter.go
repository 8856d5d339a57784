package terminal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/coder/websocket"
)

// Server frame types.
const (
	frameStart        = "start"
	frameMessageStart = "message_start"
	frameMessageChunk = "message_chunk"
	frameMessageEnd   = "message_end"
	frameMessage      = "message"
	frameTimer        = "timer"
	frameStability    = "stability"
	frameInput        = "input"
	frameLoading      = "loading"
	frameLoadingDone  = "loading_done"
	frameError        = "error"
	framePong         = "pong"
)

type messageFrame struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`
}

type valueFrame struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type inputFrame struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type textFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
}

// frameWriter is the write half of a websocket connection.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Presenter implements game.Presenter by writing JSON frames to a websocket.
// Animated messages are streamed as message_start, one message_chunk per
// character and message_end.
type Presenter struct {
	ctx    context.Context
	conn   frameWriter
	typer  *Typewriter
	logger *slog.Logger

	// writeMu guards single frames; msgMu keeps messages from interleaving
	// while timer frames still flow during an animation.
	writeMu sync.Mutex
	msgMu   sync.Mutex
	nextID  atomic.Int64
	broken  atomic.Bool
}

var _ game.Presenter = (*Presenter)(nil)

// NewPresenter creates a presenter bound to the connection context.
func NewPresenter(ctx context.Context, conn frameWriter, typer *Typewriter, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	if typer == nil {
		typer = NewTypewriter(TypingConfig{})
	}
	return &Presenter{ctx: ctx, conn: conn, typer: typer, logger: logger}
}

func (p *Presenter) ShowStart(subjectID string) {
	p.send(textFrame{Type: frameStart, SubjectID: subjectID})
}

func (p *Presenter) AddMessage(text string, opts game.MessageOptions) {
	p.msgMu.Lock()
	defer p.msgMu.Unlock()

	id := p.nextID.Add(1)
	if !opts.Animated {
		p.send(messageFrame{Type: frameMessage, ID: id, Role: string(opts.Role), Text: text})
		return
	}

	if err := p.send(messageFrame{Type: frameMessageStart, ID: id, Role: string(opts.Role)}); err != nil {
		return
	}
	err := p.typer.Type(p.ctx, text, func(chunk string) error {
		return p.send(messageFrame{Type: frameMessageChunk, ID: id, Text: chunk})
	})
	if err != nil {
		return
	}
	p.send(messageFrame{Type: frameMessageEnd, ID: id})
}

func (p *Presenter) UpdateTimerDisplay(clock string) {
	p.send(valueFrame{Type: frameTimer, Value: clock})
}

func (p *Presenter) UpdateStabilityDisplay(percent int) {
	p.send(valueFrame{Type: frameStability, Value: percent})
}

func (p *Presenter) ToggleInputEnabled(enabled bool) {
	p.send(inputFrame{Type: frameInput, Enabled: enabled})
}

func (p *Presenter) ShowLoading(text string) {
	p.send(textFrame{Type: frameLoading, Text: text})
}

func (p *Presenter) HideLoading() {
	p.send(textFrame{Type: frameLoadingDone})
}

func (p *Presenter) ShowError(text string) {
	p.send(textFrame{Type: frameError, Text: text})
}

// Pong answers a client ping.
func (p *Presenter) Pong() {
	p.send(textFrame{Type: framePong})
}

// send writes one frame. After the first failed write the presenter goes
// quiet; the read loop notices the closed socket and tears the session down.
func (p *Presenter) send(v any) error {
	if p.broken.Load() {
		return context.Canceled
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.Write(p.ctx, websocket.MessageText, data); err != nil {
		if p.ctx.Err() == nil {
			p.logger.Debug("WebSocket write error", "error", err)
		}
		p.broken.Store(true)
		return err
	}
	return nil
}
