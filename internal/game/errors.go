package game

import (
	"errors"
	"fmt"
)

// ErrValidation is the class of rejected player actions. Rejections change
// no state and display nothing.
var ErrValidation = errors.New("turn rejected")

var (
	// ErrEmptyInput rejects blank input.
	ErrEmptyInput = fmt.Errorf("%w: empty input", ErrValidation)
	// ErrTurnInFlight rejects a submission while a reply is pending.
	ErrTurnInFlight = fmt.Errorf("%w: turn in flight", ErrValidation)
	// ErrNotActive rejects a submission outside an active game.
	ErrNotActive = fmt.Errorf("%w: session not active", ErrValidation)
)

var (
	// ErrAlreadyStarted is returned by Start outside the NotStarted state.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionActive is returned by Reset while a game is running.
	ErrSessionActive = errors.New("session is active")
)
