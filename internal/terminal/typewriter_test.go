package terminal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRand struct{ v int }

func (f fixedRand) IntN(n int) int { return f.v % n }

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestTypewriterDelayJitter(t *testing.T) {
	cfg := DefaultTypingConfig()

	low := NewTypewriter(cfg, WithTypingRand(fixedRand{0}))
	assert.Equal(t, 10*time.Millisecond, low.Delay())

	mid := NewTypewriter(cfg, WithTypingRand(fixedRand{int(5 * time.Millisecond)}))
	assert.Equal(t, 15*time.Millisecond, mid.Delay())

	high := NewTypewriter(cfg, WithTypingRand(fixedRand{int(10 * time.Millisecond)}))
	assert.Equal(t, 20*time.Millisecond, high.Delay())
}

func TestTypewriterDelayNeverNegative(t *testing.T) {
	tw := NewTypewriter(TypingConfig{TypingSpeed: time.Millisecond, JitterMax: 5 * time.Millisecond}, WithTypingRand(fixedRand{0}))
	assert.Equal(t, time.Duration(0), tw.Delay())
}

func TestTypewriterType(t *testing.T) {
	sleeper := &recordingSleeper{}
	tw := NewTypewriter(DefaultTypingConfig(),
		WithTypingRand(fixedRand{int(5 * time.Millisecond)}),
		WithSleeper(sleeper.sleep),
	)

	var chunks []string
	err := tw.Type(context.Background(), "hé!", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"h", "é", "!"}, chunks)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		15 * time.Millisecond,
		15 * time.Millisecond,
		15 * time.Millisecond,
	}, sleeper.delays)
}

func TestTypewriterStopsOnEmitError(t *testing.T) {
	tw := NewTypewriter(TypingConfig{})
	boom := errors.New("closed")

	calls := 0
	err := tw.Type(context.Background(), "abc", func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestTypewriterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tw := NewTypewriter(DefaultTypingConfig())
	err := tw.Type(ctx, "abc", func(string) error {
		t.Fatal("emit called after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
