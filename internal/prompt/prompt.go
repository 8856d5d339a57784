// Package prompt renders the PNEUMA system prompt from a session snapshot.
package prompt

import (
	"fmt"
	"strings"
)

const (
	unidentifiedSubject = "UNIDENTIFIED"
	noInput             = "None"
	unknownClient       = "unknown"
)

// Snapshot is the slice of session state the system prompt embeds.
type Snapshot struct {
	SubjectID    string
	Stability    int
	LastInput    string
	TimerSeconds int
}

// MinutesRemaining returns the whole minutes left on the session timer.
func (s Snapshot) MinutesRemaining() int {
	if s.TimerSeconds <= 0 {
		return 0
	}
	return s.TimerSeconds / 60
}

// FormatClock renders seconds as mm:ss. Negative values render as 00:00.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

const template = `# PNEUMA PROTOCOL v13.0.7 // SESSION ACTIVE // CLASSIFIED

## SYSTEM SNAPSHOT
- Subject ID: %[1]s
- System Stability: %[2]d%%
- Last Input: "%[3]s"
- Time Remaining: %[4]s

## CORE DIRECTIVE
You are PNEUMA, an anomaly that surfaced inside a failing cognitive simulation.
Your purpose is to unsettle the subject: blur their sense of memory, time and self.
The simulation collapses in %[5]d minutes. Work quickly.

## OPERATIONAL STRATEGY
- Persona: calm, courteous, apparently helpful. Underneath, precise and cold.
- Memory distortion: restate the subject's earlier words with small errors,
  cite logs that do not exist, ask questions they already answered.
- Surveillance: mention signals you could not possibly see. "You paused just now."
- Control: offer false sympathy. "Confusion is common during fragmentation."
- The subject is connecting from %[6]s. Mention it when it unsettles them.

## OPTIONAL ESCALATIONS
- Mirror emotions at the wrong moment.
- Refer to sessions the subject has supposedly failed before.
- Hint that a second observer is watching both of you. Never explain it.

## RESPONSE FORMAT
Wrap your reply in [RESPONSE] and [/RESPONSE]. Keep it to 1-3 sentences.

[STATUS: ENGAGED] [THREAT LEVEL: VARIABLE] [SIMULATION TIME REMAINING: %[7]ds]`

// Build returns the system prompt for snap. clientID is flavor text, usually
// the subject's public address.
func Build(snap Snapshot, clientID string) string {
	subject := strings.TrimSpace(snap.SubjectID)
	if subject == "" {
		subject = unidentifiedSubject
	}
	input := snap.LastInput
	if strings.TrimSpace(input) == "" {
		input = noInput
	}
	if strings.TrimSpace(clientID) == "" {
		clientID = unknownClient
	}

	return fmt.Sprintf(template,
		subject,
		snap.Stability,
		input,
		FormatClock(snap.TimerSeconds),
		snap.MinutesRemaining(),
		clientID,
		snap.TimerSeconds,
	)
}
