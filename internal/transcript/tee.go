package transcript

import (
	"sync"

	"github.com/ashureev/pneuma-terminal/internal/game"
)

// Event kinds.
const (
	KindStart   = "start"
	KindMessage = "message"
	KindError   = "error"
)

// Tee is a game.Presenter that records displayed text to a transcript and
// forwards every call to the wrapped presenter.
type Tee struct {
	next      game.Presenter
	log       Logger
	userID    string
	sessionID string

	mu        sync.Mutex
	subjectID string
}

var _ game.Presenter = (*Tee)(nil)

// NewTee wraps next.
func NewTee(next game.Presenter, log Logger, userID, sessionID string) *Tee {
	return &Tee{next: next, log: log, userID: userID, sessionID: sessionID}
}

func (t *Tee) record(kind, role, text string) {
	t.mu.Lock()
	subject := t.subjectID
	t.mu.Unlock()

	t.log.Log(Event{
		UserID:    t.userID,
		SessionID: t.sessionID,
		SubjectID: subject,
		Kind:      kind,
		Role:      role,
		Text:      text,
	})
}

func (t *Tee) ShowStart(subjectID string) {
	t.mu.Lock()
	t.subjectID = subjectID
	t.mu.Unlock()

	t.record(KindStart, "", subjectID)
	t.next.ShowStart(subjectID)
}

func (t *Tee) AddMessage(text string, opts game.MessageOptions) {
	t.record(KindMessage, string(opts.Role), text)
	t.next.AddMessage(text, opts)
}

func (t *Tee) ShowError(text string) {
	t.record(KindError, "", text)
	t.next.ShowError(text)
}

func (t *Tee) UpdateTimerDisplay(clock string)    { t.next.UpdateTimerDisplay(clock) }
func (t *Tee) UpdateStabilityDisplay(percent int) { t.next.UpdateStabilityDisplay(percent) }
func (t *Tee) ToggleInputEnabled(enabled bool)    { t.next.ToggleInputEnabled(enabled) }
func (t *Tee) ShowLoading(text string)            { t.next.ShowLoading(text) }
func (t *Tee) HideLoading()                       { t.next.HideLoading() }
