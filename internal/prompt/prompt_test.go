package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEmbedsSnapshot(t *testing.T) {
	t.Parallel()

	out := Build(Snapshot{
		SubjectID:    "SUBJ-12345",
		Stability:    87,
		LastInput:    "where am I",
		TimerSeconds: 545,
	}, "203.0.113.7")

	assert.Contains(t, out, "Subject ID: SUBJ-12345")
	assert.Contains(t, out, "System Stability: 87%")
	assert.Contains(t, out, `Last Input: "where am I"`)
	assert.Contains(t, out, "Time Remaining: 09:05")
	assert.Contains(t, out, "collapses in 9 minutes")
	assert.Contains(t, out, "203.0.113.7")
	assert.Contains(t, out, "[SIMULATION TIME REMAINING: 545s]")
	assert.Contains(t, out, "[RESPONSE]")
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	out := Build(Snapshot{Stability: 100, TimerSeconds: 59}, "")

	assert.Contains(t, out, "Subject ID: UNIDENTIFIED")
	assert.Contains(t, out, `Last Input: "None"`)
	assert.Contains(t, out, "connecting from unknown")
	assert.Contains(t, out, "collapses in 0 minutes")
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	snap := Snapshot{SubjectID: "SUBJ-10000", Stability: 40, LastInput: "hi", TimerSeconds: 120}
	assert.Equal(t, Build(snap, "x"), Build(snap, "x"))
}

func TestFormatClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds int
		want    string
	}{
		{600, "10:00"},
		{599, "09:59"},
		{61, "01:01"},
		{0, "00:00"},
		{-4, "00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatClock(tt.seconds), "seconds=%d", tt.seconds)
	}
}
