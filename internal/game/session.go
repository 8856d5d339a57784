// Package game implements the PNEUMA session state machine: stability decay,
// the countdown timer, phase escalation and the turn lifecycle.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/completion"
	"github.com/ashureev/pneuma-terminal/internal/prompt"
)

// State is the session lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EndReason records what ended a game.
type EndReason string

const (
	ReasonTimer     EndReason = "timer_expired"
	ReasonStability EndReason = "stability_depleted"
	ReasonSurvived  EndReason = "survived"
	ReasonAborted   EndReason = "aborted"
)

// Outcome is the terminal result of a game. Zero until the game ends.
type Outcome struct {
	Won    bool      `json:"won"`
	Reason EndReason `json:"reason,omitempty"`
}

// Completer is the slice of the completion client a session drives.
type Completer interface {
	Initialize(ctx context.Context)
	Greeting(ctx context.Context) string
	Generate(ctx context.Context, snap prompt.Snapshot, input string) completion.Result
	Remember(input, reply string)
	ClearHistory()
}

// Rand supplies stability loss and subject ids.
type Rand interface {
	IntN(n int) int
}

// Config holds the tunable game constants.
type Config struct {
	InitialStability int
	TimerSeconds     int
	TickInterval     time.Duration
	MinLoss          int
	MaxLoss          int
	// OpeningInput is sent on the player's behalf when the game boots.
	OpeningInput string
}

// DefaultConfig returns the standard ten-minute game.
func DefaultConfig() Config {
	return Config{
		InitialStability: 100,
		TimerSeconds:     600,
		TickInterval:     time.Second,
		MinLoss:          1,
		MaxLoss:          5,
		OpeningInput:     "Hi",
	}
}

// Snapshot is a consistent copy of session state.
type Snapshot struct {
	SubjectID    string  `json:"subject_id"`
	State        State   `json:"-"`
	Stability    int     `json:"stability"`
	TimerSeconds int     `json:"timer_seconds"`
	Phase        int     `json:"phase"`
	InFlight     bool    `json:"in_flight"`
	GameOver     bool    `json:"game_over"`
	Turns        int     `json:"turns"`
	Outcome      Outcome `json:"outcome"`
}

// Summary describes a finished game. It is passed to the end hook once.
type Summary struct {
	SubjectID    string
	Outcome      Outcome
	Stability    int
	TimerSeconds int
	Phase        int
	Turns        int
	StartedAt    time.Time
	EndedAt      time.Time
}

// PhaseFor maps stability to the escalation phase.
func PhaseFor(stability int) int {
	switch {
	case stability < 40:
		return 3
	case stability < 70:
		return 2
	default:
		return 1
	}
}

// Session is one playthrough. All state mutation happens under mu; presenter
// calls are made after mu is released.
type Session struct {
	cfg    Config
	client Completer
	view   Presenter
	clock  Clock
	rng    Rand
	logger *slog.Logger
	onEnd  func(Summary)

	mu        sync.Mutex
	state     State
	run       int
	subjectID string
	stability int
	timer     int
	phase     int
	inFlight  bool
	gameOver  bool
	turns     int
	outcome   Outcome
	startedAt time.Time
	ticker    Ticker
	stopTick  chan struct{}
}

// Option customizes a Session.
type Option func(*Session)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithRand replaces the random source.
func WithRand(r Rand) Option {
	return func(s *Session) { s.rng = r }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOnEnd registers a hook called once per finished game.
func WithOnEnd(fn func(Summary)) Option {
	return func(s *Session) { s.onEnd = fn }
}

// NewSession creates a session in the NotStarted state.
func NewSession(cfg Config, client Completer, view Presenter, opts ...Option) *Session {
	s := &Session{
		cfg:    cfg,
		client: client,
		view:   view,
		clock:  SystemClock{},
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.subjectID = s.newSubjectID()
	return s
}

func (s *Session) newSubjectID() string {
	return fmt.Sprintf("SUBJ-%d", 10000+s.rng.IntN(90000))
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SubjectID:    s.subjectID,
		State:        s.state,
		Stability:    s.stability,
		TimerSeconds: s.timer,
		Phase:        s.phase,
		InFlight:     s.inFlight,
		GameOver:     s.gameOver,
		Turns:        s.turns,
		Outcome:      s.outcome,
	}
}

// Launch starts the game and boots it. A boot failure is shown once as an
// error banner. Launching a game that is already running returns
// ErrAlreadyStarted and displays nothing.
func (s *Session) Launch(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.Boot(ctx); err != nil && !errors.Is(err, ErrValidation) {
		s.view.ShowError(initFailureText)
		return err
	}
	return nil
}

// Start moves NotStarted to Active, resets the meters and starts the tick.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateActive
	s.run++
	s.stability = s.cfg.InitialStability
	s.timer = s.cfg.TimerSeconds
	s.phase = PhaseFor(s.stability)
	s.inFlight = false
	s.gameOver = false
	s.turns = 0
	s.outcome = Outcome{}
	s.startedAt = s.clock.Now()
	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	stop := make(chan struct{})
	s.ticker = ticker
	s.stopTick = stop
	subject, timer, stability := s.subjectID, s.timer, s.stability
	s.mu.Unlock()

	s.logger.Info("session started", "subject_id", subject, "timer_seconds", timer)

	s.view.ShowStart(subject)
	s.view.UpdateTimerDisplay(prompt.FormatClock(timer))
	s.view.UpdateStabilityDisplay(stability)
	s.view.ToggleInputEnabled(true)

	go s.runTicker(ticker, stop)
	return nil
}

func (s *Session) runTicker(t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.Tick()
		}
	}
}

// Tick advances the timer by one step. At zero the game is lost.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	if s.timer > 0 {
		s.timer--
	}
	timer := s.timer
	var sum Summary
	ended := false
	if timer == 0 {
		sum, ended = s.endLocked(false, ReasonTimer), true
	}
	s.mu.Unlock()

	s.view.UpdateTimerDisplay(prompt.FormatClock(timer))
	if ended {
		s.announceEnd(sum)
	}
}

// Boot resolves the client identity, shows the greeting and plays the
// opening turn without echoing it. A boot that outlives its game, because
// the game ended or was restarted meanwhile, displays nothing further.
func (s *Session) Boot(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	run := s.run
	s.mu.Unlock()

	s.view.ShowLoading(loadingText)
	s.client.Initialize(ctx)
	s.view.HideLoading()
	if err := ctx.Err(); err != nil {
		return err
	}

	greeting := s.client.Greeting(ctx)
	if !s.isCurrent(run) {
		s.logger.Info("discarding boot of a finished game", "run", run)
		return nil
	}
	s.view.AddMessage(greeting, MessageOptions{Role: RoleSystem, Animated: true})

	// The game may already have ended or a turn may be running; neither is a
	// boot failure.
	if err := s.runTurn(ctx, s.cfg.OpeningInput, false, run); err != nil && !errors.Is(err, ErrValidation) {
		return err
	}
	return nil
}

func (s *Session) isCurrent(run int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive && s.run == run
}

// SubmitTurn plays one player turn. Rejected input returns an
// ErrValidation error and changes nothing.
func (s *Session) SubmitTurn(ctx context.Context, input string) error {
	return s.runTurn(ctx, input, true, currentRun)
}

// currentRun lets runTurn play in whichever game is active.
const currentRun = -1

// runTurn plays one turn in game run, or in the active game for currentRun.
func (s *Session) runTurn(ctx context.Context, input string, echo bool, run int) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	if s.state != StateActive || (run != currentRun && run != s.run) {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.inFlight = true
	run = s.run
	snap := prompt.Snapshot{
		SubjectID:    s.subjectID,
		Stability:    s.stability,
		LastInput:    input,
		TimerSeconds: s.timer,
	}
	s.mu.Unlock()

	defer s.finishTurn()

	s.view.ToggleInputEnabled(false)
	if echo {
		s.view.AddMessage(input, MessageOptions{Role: RoleHuman})
	}

	res := s.client.Generate(ctx, snap, input)

	s.mu.Lock()
	if s.state != StateActive || s.run != run {
		s.mu.Unlock()
		s.logger.Info("discarding reply after game over", "subject_id", snap.SubjectID, "fallback", res.Fallback)
		return nil
	}
	if !res.Fallback {
		s.client.Remember(input, res.Message)
	}
	loss := s.cfg.MinLoss + s.rng.IntN(s.cfg.MaxLoss-s.cfg.MinLoss+1)
	s.stability = max(0, s.stability-loss)
	s.turns++
	stability := s.stability
	prevPhase := s.phase
	s.phase = PhaseFor(stability)
	phase := s.phase
	var sum Summary
	ended := false
	if stability == 0 {
		sum, ended = s.endLocked(false, ReasonStability), true
	}
	s.mu.Unlock()

	s.logger.Debug("turn complete",
		"subject_id", snap.SubjectID,
		"loss", loss,
		"stability", stability,
		"phase", phase,
		"fallback", res.Fallback,
	)

	s.view.AddMessage(res.Message, MessageOptions{Role: RoleAI, Animated: true})
	s.view.UpdateStabilityDisplay(stability)

	switch {
	case stability > 0 && stability <= 20:
		s.view.AddMessage(criticalWarningText, MessageOptions{Role: RoleSystemError})
	case stability > 0 && stability <= 50:
		s.view.AddMessage(noticeText, MessageOptions{Role: RoleSystem})
	}
	if phase != prevPhase {
		s.view.AddMessage(fmt.Sprintf(escalationFormat, phase), MessageOptions{Role: RoleSystemWarning})
	}

	if ended {
		s.announceEnd(sum)
	}
	return nil
}

func (s *Session) finishTurn() {
	s.mu.Lock()
	s.inFlight = false
	active := s.state == StateActive
	s.mu.Unlock()

	if active {
		s.view.ToggleInputEnabled(true)
	}
}

// EndGame ends an active game. It is a no-op once the game has ended.
func (s *Session) EndGame(won bool) {
	reason := ReasonAborted
	if won {
		reason = ReasonSurvived
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	sum := s.endLocked(won, reason)
	s.mu.Unlock()

	s.announceEnd(sum)
}

// endLocked latches the game over. Caller holds mu and has checked the
// session is active.
func (s *Session) endLocked(won bool, reason EndReason) Summary {
	s.state = StateEnded
	s.gameOver = true
	s.outcome = Outcome{Won: won, Reason: reason}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}

	return Summary{
		SubjectID:    s.subjectID,
		Outcome:      s.outcome,
		Stability:    s.stability,
		TimerSeconds: s.timer,
		Phase:        s.phase,
		Turns:        s.turns,
		StartedAt:    s.startedAt,
		EndedAt:      s.clock.Now(),
	}
}

func (s *Session) announceEnd(sum Summary) {
	s.logger.Info("session ended",
		"subject_id", sum.SubjectID,
		"won", sum.Outcome.Won,
		"reason", sum.Outcome.Reason,
		"stability", sum.Stability,
		"timer_seconds", sum.TimerSeconds,
		"turns", sum.Turns,
	)

	s.view.ToggleInputEnabled(false)
	switch {
	case sum.Outcome.Won:
		s.view.AddMessage(survivedBanner, MessageOptions{Role: RoleSystemWin})
	case sum.Outcome.Reason == ReasonTimer:
		s.view.AddMessage(timerLostBanner, MessageOptions{Role: RoleSystemError})
	case sum.Outcome.Reason == ReasonAborted:
		s.view.AddMessage(abortedBanner, MessageOptions{Role: RoleSystemError})
	default:
		s.view.AddMessage(stabilityLostBanner, MessageOptions{Role: RoleSystemError})
	}

	if s.onEnd != nil {
		s.onEnd(sum)
	}
}

// Reset returns an ended (or never started) session to NotStarted with a
// new subject id and an empty conversation history.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.state == StateActive {
		s.mu.Unlock()
		return ErrSessionActive
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.state = StateNotStarted
	s.subjectID = s.newSubjectID()
	s.stability = 0
	s.timer = 0
	s.phase = 0
	s.gameOver = false
	s.turns = 0
	s.outcome = Outcome{}
	s.ticker = nil
	s.mu.Unlock()

	s.client.ClearHistory()
	return nil
}
