// Package completion talks to the remote chat-completion endpoint on behalf
// of a game session and keeps the conversation history it replays.
package completion

import (
	"net/http"
	"sync"
	"time"
)

// Role is the speaker of a history entry.
type Role string

const (
	// RoleSystem marks the system prompt. It is never stored in History.
	RoleSystem Role = "system"
	// RoleUser marks player input.
	RoleUser Role = "user"
	// RoleAssistant marks model replies.
	RoleAssistant Role = "assistant"
)

// Message is one history entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the per-turn payload sent to the completion endpoint.
type Request struct {
	SystemPrompt string
	History      []Message
	UserInput    string
	Seed         int
}

// Messages flattens r into the order the endpoint expects:
// system prompt, history, then the current input.
func (r Request) Messages() []Message {
	out := make([]Message, 0, len(r.History)+2)
	out = append(out, Message{Role: RoleSystem, Content: r.SystemPrompt})
	out = append(out, r.History...)
	out = append(out, Message{Role: RoleUser, Content: r.UserInput})
	return out
}

// Result is what a turn produces. Fallback is set when Message is canned
// filler rather than a model reply.
type Result struct {
	Message  string
	Fallback bool
}

// Rand is the randomness the client needs. *rand.Rand from math/rand/v2
// satisfies it.
type Rand interface {
	IntN(n int) int
}

// Config configures a Client.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	IdentityURL     string
	IdentityTimeout time.Duration
	GreetingURL     string
	GreetingModel   string
	// RequestTimeout bounds completion calls. Zero means no timeout.
	RequestTimeout time.Duration
}

// DefaultConfig returns the public Pollinations endpoints.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://text.pollinations.ai/openai",
		Model:           "gpt-4",
		IdentityURL:     "https://api.ipify.org?format=json",
		IdentityTimeout: 5 * time.Second,
		GreetingURL:     "https://pollinations.ai/pollinations/generate",
		GreetingModel:   "gpt-3.5-turbo",
	}
}

// History is the ordered conversation replayed on every turn.
type History struct {
	mu       sync.RWMutex
	messages []Message
}

// Append adds messages in order.
func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Messages returns a copy of the history.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear empties the history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
