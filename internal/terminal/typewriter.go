package terminal

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// TypingConfig holds typewriter pacing.
type TypingConfig struct {
	// TypingSpeed is the base delay between characters (default: 15ms)
	TypingSpeed time.Duration
	// JitterMax is the maximum random jitter either side of TypingSpeed (default: 5ms)
	JitterMax time.Duration
	// LeadIn is the delay before the first character (default: 100ms)
	LeadIn time.Duration
}

// DefaultTypingConfig returns the standard PNEUMA typing cadence.
func DefaultTypingConfig() TypingConfig {
	return TypingConfig{
		TypingSpeed: 15 * time.Millisecond,
		JitterMax:   5 * time.Millisecond,
		LeadIn:      100 * time.Millisecond,
	}
}

// Rand supplies typing jitter.
type Rand interface {
	IntN(n int) int
}

// Typewriter paces text out one character at a time.
type Typewriter struct {
	config TypingConfig

	mu    sync.Mutex
	rng   Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// TypewriterOption customizes a Typewriter.
type TypewriterOption func(*Typewriter)

// WithTypingRand replaces the jitter source.
func WithTypingRand(r Rand) TypewriterOption {
	return func(t *Typewriter) { t.rng = r }
}

// WithSleeper replaces the sleep function.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) TypewriterOption {
	return func(t *Typewriter) { t.sleep = fn }
}

// NewTypewriter creates a typewriter. A zero config types instantly.
func NewTypewriter(config TypingConfig, opts ...TypewriterOption) *Typewriter {
	t := &Typewriter{
		config: config,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the pacing configuration.
func (t *Typewriter) Config() TypingConfig {
	return t.config
}

// Delay returns the pause after one character: TypingSpeed plus uniform
// jitter in [-JitterMax, +JitterMax], never negative.
func (t *Typewriter) Delay() time.Duration {
	d := t.config.TypingSpeed
	if j := t.config.JitterMax; j > 0 {
		t.mu.Lock()
		offset := time.Duration(t.rng.IntN(int(2*j)+1)) - j
		t.mu.Unlock()
		d += offset
	}
	return max(d, 0)
}

// Type emits text one rune at a time, pausing between runes. It stops at the
// first emit error or when ctx is done.
func (t *Typewriter) Type(ctx context.Context, text string, emit func(chunk string) error) error {
	if err := t.pause(ctx, t.config.LeadIn); err != nil {
		return err
	}
	for _, r := range text {
		if err := emit(string(r)); err != nil {
			return err
		}
		if err := t.pause(ctx, t.Delay()); err != nil {
			return err
		}
	}
	return nil
}

func (t *Typewriter) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return t.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
