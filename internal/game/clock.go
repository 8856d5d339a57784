package game

import "time"

// Ticker is a stoppable periodic signal.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers and stamps game start and end times. Tests
// substitute a clock whose tickers never fire and drive Session.Tick
// directly.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// NewTicker wraps time.NewTicker.
func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }
