package game

// Role tags a displayed message so the presenter can style it.
type Role string

const (
	RoleHuman         Role = "human"
	RoleAI            Role = "ai"
	RoleSystem        Role = "system"
	RoleSystemWarning Role = "system-warning"
	RoleSystemError   Role = "system-error"
	RoleSystemWin     Role = "system-win"
)

// MessageOptions controls how a message is displayed.
type MessageOptions struct {
	Role Role
	// Animated asks the presenter to type the message out.
	Animated bool
}

// Presenter receives display commands from a session. Calls are
// notifications; a session never reads state back from its presenter.
// AddMessage may block while an animated message is typed out.
type Presenter interface {
	ShowStart(subjectID string)
	AddMessage(text string, opts MessageOptions)
	UpdateTimerDisplay(clock string)
	UpdateStabilityDisplay(percent int)
	ToggleInputEnabled(enabled bool)
	ShowLoading(text string)
	HideLoading()
	ShowError(text string)
}

// Display text emitted by the session.
const (
	loadingText         = "Initializing system..."
	initFailureText     = "Failed to initialize. Please refresh and try again."
	criticalWarningText = "WARNING: System stability critically low!"
	noticeText          = "NOTICE: System stability decreasing..."
	escalationFormat    = "// SECURITY PROTOCOL ESCALATED: PHASE %d ENGAGED //"
	survivedBanner      = "SYSTEM SHUTDOWN. YOU HAVE SURVIVED."
	stabilityLostBanner = "SYSTEM STABILITY CRITICAL. SUBJECT LOST. CONNECTION TERMINATED."
	timerLostBanner     = "SIMULATION WINDOW CLOSED. SUBJECT LOST. CONNECTION TERMINATED."
	abortedBanner       = "SESSION TERMINATED. SUBJECT LOST."
)
