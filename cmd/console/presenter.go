package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/ashureev/pneuma-terminal/internal/terminal"
)

// consolePresenter renders a session as plain text lines.
type consolePresenter struct {
	ctx   context.Context
	out   io.Writer
	typer *terminal.Typewriter

	mu sync.Mutex
}

func newConsolePresenter(ctx context.Context, out io.Writer, typer *terminal.Typewriter) *consolePresenter {
	return &consolePresenter{ctx: ctx, out: out, typer: typer}
}

var rolePrefix = map[game.Role]string{
	game.RoleHuman:         "> ",
	game.RoleAI:            "PNEUMA: ",
	game.RoleSystem:        "",
	game.RoleSystemWarning: "!! ",
	game.RoleSystemError:   "XX ",
	game.RoleSystemWin:     "** ",
}

func (p *consolePresenter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *consolePresenter) ShowStart(subjectID string) {
	p.printf("=== SUBJECT %s CONNECTED ===\n", subjectID)
}

func (p *consolePresenter) AddMessage(text string, opts game.MessageOptions) {
	// The player's own line is already on screen.
	if opts.Role == game.RoleHuman {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, rolePrefix[opts.Role])
	if opts.Animated && p.typer != nil {
		_ = p.typer.Type(p.ctx, text, func(chunk string) error {
			_, err := io.WriteString(p.out, chunk)
			return err
		})
	} else {
		_, _ = io.WriteString(p.out, text)
	}
	_, _ = io.WriteString(p.out, "\n")
}

// UpdateTimerDisplay prints whole minutes and the final ten seconds.
func (p *consolePresenter) UpdateTimerDisplay(clock string) {
	if strings.HasSuffix(clock, ":00") || strings.HasPrefix(clock, "00:0") {
		p.printf("[%s remaining]\n", clock)
	}
}

func (p *consolePresenter) UpdateStabilityDisplay(percent int) {
	p.printf("[stability %d%%]\n", percent)
}

func (p *consolePresenter) ToggleInputEnabled(bool) {}

func (p *consolePresenter) ShowLoading(text string) {
	p.printf("%s\n", text)
}

func (p *consolePresenter) HideLoading() {}

func (p *consolePresenter) ShowError(text string) {
	p.printf("ERROR: %s\n", text)
}
