package completion

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/ashureev/pneuma-terminal/internal/prompt"
	"github.com/sashabaranov/go-openai"
)

// seedRange is the exclusive upper bound for per-request seeds.
const seedRange = 1_000_000

// EmptyReplyFiller replaces a reply that is empty once tags and code fences
// are stripped.
const EmptyReplyFiller = "I'm experiencing some instability. Please continue..."

// UnknownClientID is used when the identity lookup fails.
const UnknownClientID = "unknown"

var fallbackReplies = []string{
	"Connection unstable. Your input is being processed...",
	"Temporary system anomaly detected. Please continue.",
	"Warning: Minor cognitive distortion detected. Your input is still valuable.",
	"I'm experiencing some system instability. Let's continue.",
	"Processing... The system requires more input to continue.",
	"Your response is being analyzed. Please stand by...",
	"System recalibrating. Your patience is appreciated.",
}

// FallbackReplies returns the canned replies used when a turn fails.
func FallbackReplies() []string {
	out := make([]string, len(fallbackReplies))
	copy(out, fallbackReplies)
	return out
}

var (
	responseTagPattern = regexp.MustCompile(`(?s)\[RESPONSE\](.*?)\[/RESPONSE\]`)
	codeFencePattern   = regexp.MustCompile("(?s)```.*?```")
)

// Client generates PNEUMA replies and owns the conversation history.
type Client struct {
	api      *openai.Client
	cfg      Config
	http     *http.Client
	logger   *slog.Logger
	history  History
	rngMu    sync.Mutex
	rng      Rand
	idMu     sync.RWMutex
	clientID string
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the client used for the identity and greeting
// lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a completion client.
func New(cfg Config, rng Rand, opts ...Option) *Client {
	defaults := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.GreetingModel == "" {
		cfg.GreetingModel = defaults.GreetingModel
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiCfg.HTTPClient = httpClient(cfg.RequestTimeout)

	c := &Client{
		api:      openai.NewClientWithConfig(apiCfg),
		cfg:      cfg,
		http:     httpClient(cfg.IdentityTimeout),
		logger:   slog.Default(),
		rng:      rng,
		clientID: UnknownClientID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the identifier resolved by Initialize.
func (c *Client) ClientID() string {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.clientID
}

// History returns a copy of the conversation history.
func (c *Client) History() []Message {
	return c.history.Messages()
}

// ClearHistory drops the conversation history.
func (c *Client) ClearHistory() {
	c.history.Clear()
}

// BuildRequest assembles the request for one turn from the current history.
func (c *Client) BuildRequest(snap prompt.Snapshot, input string) Request {
	return Request{
		SystemPrompt: prompt.Build(snap, c.ClientID()),
		History:      c.history.Messages(),
		UserInput:    input,
		Seed:         c.intN(seedRange),
	}
}

// GenerateResponse runs one turn and records it in history on success.
// It never fails: endpoint errors resolve to a fallback reply.
func (c *Client) GenerateResponse(ctx context.Context, snap prompt.Snapshot, input string) Result {
	res := c.Generate(ctx, snap, input)
	if !res.Fallback {
		c.Remember(input, res.Message)
	}
	return res
}

// Generate runs one turn without touching history.
func (c *Client) Generate(ctx context.Context, snap prompt.Snapshot, input string) Result {
	req := c.BuildRequest(snap, input)

	content, err := c.complete(ctx, req)
	if err != nil {
		c.logger.Warn("completion failed, using fallback reply",
			"subject_id", snap.SubjectID,
			"error", err,
			"transport", isTransport(err),
		)
		return c.fallback()
	}

	return Result{Message: ParseReply(content)}
}

// Remember appends a successful exchange to history, user input first.
func (c *Client) Remember(input, reply string) {
	c.history.Append(
		Message{Role: RoleUser, Content: input},
		Message{Role: RoleAssistant, Content: reply},
	)
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	msgs := req.Messages()
	chatMsgs := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		chatMsgs[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	seed := req.Seed
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: chatMsgs,
		Seed:     &seed,
	})
	if err != nil {
		return "", classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", classify("chat completion", errEmptyChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) fallback() Result {
	return Result{
		Message:  fallbackReplies[c.intN(len(fallbackReplies))],
		Fallback: true,
	}
}

func (c *Client) intN(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.IntN(n)
}

// ParseReply extracts the displayable text from a raw model reply.
func ParseReply(raw string) string {
	msg := raw
	if m := responseTagPattern.FindStringSubmatch(raw); m != nil {
		msg = m[1]
	}
	msg = strings.TrimSpace(codeFencePattern.ReplaceAllString(msg, ""))
	if msg == "" {
		return EmptyReplyFiller
	}
	return msg
}

func isTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
