// Command console plays PNEUMA in a local terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/completion"
	"github.com/ashureev/pneuma-terminal/internal/config"
	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/ashureev/pneuma-terminal/internal/terminal"
	"github.com/ashureev/pneuma-terminal/internal/transcript"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type consoleOptions struct {
	model    string
	baseURL  string
	seconds  int
	noTyping bool
	verbose  bool
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	var opts consoleOptions

	cmd := &cobra.Command{
		Use:   "pneuma",
		Short: "Play PNEUMA in your terminal",
		Long: `Play a PNEUMA session against the configured completion endpoint.

Type to talk. /restart starts a new subject after a game ends, /quit leaves.
Configuration is read from the environment and .env, flags override it.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				slog.Debug("No .env file found, using environment variables")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("model") {
				cfg.Completion.Model = opts.model
			}
			if cmd.Flags().Changed("base-url") {
				cfg.Completion.BaseURL = opts.baseURL
			}
			if cmd.Flags().Changed("seconds") {
				cfg.Session.Seconds = opts.seconds
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			level := slog.LevelError
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return play(ctx, cfg, opts, in, out, logger)
		},
	}

	cmd.Flags().StringVar(&opts.model, "model", "", "completion model (overrides COMPLETION_MODEL)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "completion endpoint base URL (overrides COMPLETION_BASE_URL)")
	cmd.Flags().IntVar(&opts.seconds, "seconds", 0, "session length in seconds (overrides SESSION_SECONDS)")
	cmd.Flags().BoolVar(&opts.noTyping, "no-typing", false, "print replies at once instead of typing them out")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	return cmd
}

func play(ctx context.Context, cfg *config.Config, opts consoleOptions, in io.Reader, out io.Writer, logger *slog.Logger) error {
	typing := cfg.Typewriter()
	if opts.noTyping {
		typing = terminal.TypingConfig{}
	}

	transcripts, err := transcript.NewLogger(cfg.Transcripts(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = transcripts.Close() }()

	console := newConsolePresenter(ctx, out, terminal.NewTypewriter(typing))
	view := transcript.NewTee(console, transcripts, "console", fmt.Sprintf("console-%d", time.Now().Unix()))

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	client := completion.New(cfg.CompletionClient(), rng, completion.WithLogger(logger))

	ended := make(chan game.Summary, 1)
	session := game.NewSession(cfg.Game(), client, view,
		game.WithLogger(logger),
		game.WithOnEnd(func(sum game.Summary) {
			select {
			case ended <- sum:
			default:
			}
		}),
	)
	// Turns run beside the read loop, so a line typed while a reply is
	// pending is dropped by the session instead of waiting its turn.
	var turns sync.WaitGroup
	defer turns.Wait()
	defer session.EndGame(false)

	if err := session.Launch(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sum := <-ended:
			_, _ = fmt.Fprintf(out, "--- %s after %d turns, stability %d%%. /restart or /quit ---\n",
				sum.Outcome.Reason, sum.Turns, sum.Stability)
		case line, ok := <-lines:
			if !ok {
				turns.Wait()
				return nil
			}
			switch strings.TrimSpace(line) {
			case "/quit":
				turns.Wait()
				return nil
			case "/restart":
				session.EndGame(false)
				turns.Wait()
				drain(ended)
				if err := session.Reset(); err != nil {
					return err
				}
				if err := session.Launch(ctx); err != nil {
					return err
				}
				continue
			}
			turns.Add(1)
			go func() {
				defer turns.Done()
				submit(ctx, session, line, logger)
			}()
		}
	}
}

func submit(ctx context.Context, session *game.Session, line string, logger *slog.Logger) {
	err := session.SubmitTurn(ctx, line)
	switch {
	case err == nil:
	case errors.Is(err, game.ErrTurnInFlight):
		logger.Debug("Input dropped while a reply is pending")
	case errors.Is(err, game.ErrValidation):
		logger.Debug("Input rejected", "error", err)
	default:
		logger.Warn("Turn failed", "error", err)
	}
}

func drain(ch <-chan game.Summary) {
	select {
	case <-ch:
	default:
	}
}
