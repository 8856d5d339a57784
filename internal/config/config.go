// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/pneuma-terminal/internal/completion"
	"github.com/ashureev/pneuma-terminal/internal/game"
	"github.com/ashureev/pneuma-terminal/internal/terminal"
	"github.com/ashureev/pneuma-terminal/internal/transcript"
	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT"         envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL"`
	DBPath      string `env:"DB_PATH"      envDefault:"./data/pneuma.db"`

	Completion CompletionConfig `envPrefix:"COMPLETION_"`
	Identity   IdentityConfig   `envPrefix:"IDENTITY_"`
	Greeting   GreetingConfig   `envPrefix:"GREETING_"`
	Session    SessionConfig    `envPrefix:"SESSION_"`
	Typing     TypingConfig     `envPrefix:"TYPING_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Transcript TranscriptConfig `envPrefix:"TRANSCRIPT_"`
}

// CompletionConfig points at the chat-completion endpoint.
type CompletionConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"https://text.pollinations.ai/openai"`
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL"    envDefault:"gpt-4"`
	// Timeout bounds a single completion call. Zero waits indefinitely.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"0s"`
}

// IdentityConfig controls the best-effort client address lookup.
type IdentityConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	URL     string        `env:"URL"     envDefault:"https://api.ipify.org?format=json"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// GreetingConfig controls the boot greeting. When disabled the canned
// greeting is used.
type GreetingConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	URL     string `env:"URL"     envDefault:"https://pollinations.ai/pollinations/generate"`
	Model   string `env:"MODEL"   envDefault:"gpt-3.5-turbo"`
}

// SessionConfig holds the game constants.
type SessionConfig struct {
	Seconds   int `env:"SECONDS"   envDefault:"600"`
	Stability int `env:"STABILITY" envDefault:"100"`
	MinLoss   int `env:"MIN_LOSS"  envDefault:"1"`
	MaxLoss   int `env:"MAX_LOSS"  envDefault:"5"`
}

// TypingConfig holds typewriter pacing.
type TypingConfig struct {
	Speed  time.Duration `env:"SPEED"   envDefault:"15ms"`
	Jitter time.Duration `env:"JITTER"  envDefault:"5ms"`
	LeadIn time.Duration `env:"LEAD_IN" envDefault:"100ms"`
}

// RateLimitConfig caps HTTP requests per anonymous user and client frames
// per WebSocket connection.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RPS"          envDefault:"10"`
	Burst             int     `env:"BURST"        envDefault:"20"`
	FramesPerSecond   float64 `env:"FRAMES_RPS"   envDefault:"5"`
	FrameBurst        int     `env:"FRAMES_BURST" envDefault:"10"`
}

// TranscriptConfig controls NDJSON transcripts.
type TranscriptConfig struct {
	Enabled   bool   `env:"ENABLED"    envDefault:"true"`
	Dir       string `env:"DIR"        envDefault:"./data/transcripts"`
	QueueSize int    `env:"QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Completion.BaseURL = strings.TrimRight(cfg.Completion.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH cannot be empty"))
	}
	if u, err := url.Parse(c.Completion.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("COMPLETION_BASE_URL must be an absolute URL, got %q", c.Completion.BaseURL))
	}
	if c.Completion.Model == "" {
		errs = append(errs, errors.New("COMPLETION_MODEL cannot be empty"))
	}
	if c.Completion.Timeout < 0 || c.Identity.Timeout < 0 {
		errs = append(errs, errors.New("timeouts cannot be negative"))
	}
	if c.Session.Seconds <= 0 {
		errs = append(errs, errors.New("SESSION_SECONDS must be > 0"))
	}
	if c.Session.Stability < 1 || c.Session.Stability > 100 {
		errs = append(errs, errors.New("SESSION_STABILITY must be within 1..100"))
	}
	if c.Session.MinLoss < 1 || c.Session.MaxLoss < c.Session.MinLoss {
		errs = append(errs, errors.New("SESSION_MIN_LOSS must be >= 1 and <= SESSION_MAX_LOSS"))
	}
	if c.Typing.Speed < 0 || c.Typing.Jitter < 0 || c.Typing.LeadIn < 0 {
		errs = append(errs, errors.New("TYPING_* durations cannot be negative"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0"))
	}
	if c.RateLimit.FramesPerSecond <= 0 || c.RateLimit.FrameBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_FRAMES_RPS and RATE_LIMIT_FRAMES_BURST must be > 0"))
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		errs = append(errs, errors.New("TRANSCRIPT_DIR cannot be empty"))
	}
	if c.Transcript.QueueSize <= 0 {
		errs = append(errs, errors.New("TRANSCRIPT_QUEUE_SIZE must be > 0"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// CompletionClient returns the completion client settings. Disabled lookups
// get an empty URL, which the client treats as "use the fallback".
func (c *Config) CompletionClient() completion.Config {
	cc := completion.Config{
		BaseURL:         c.Completion.BaseURL,
		APIKey:          c.Completion.APIKey,
		Model:           c.Completion.Model,
		RequestTimeout:  c.Completion.Timeout,
		IdentityURL:     c.Identity.URL,
		IdentityTimeout: c.Identity.Timeout,
		GreetingURL:     c.Greeting.URL,
		GreetingModel:   c.Greeting.Model,
	}
	if !c.Identity.Enabled {
		cc.IdentityURL = ""
	}
	if !c.Greeting.Enabled {
		cc.GreetingURL = ""
	}
	return cc
}

// Game returns the session constants.
func (c *Config) Game() game.Config {
	g := game.DefaultConfig()
	g.TimerSeconds = c.Session.Seconds
	g.InitialStability = c.Session.Stability
	g.MinLoss = c.Session.MinLoss
	g.MaxLoss = c.Session.MaxLoss
	return g
}

// Typewriter returns the typing cadence.
func (c *Config) Typewriter() terminal.TypingConfig {
	return terminal.TypingConfig{
		TypingSpeed: c.Typing.Speed,
		JitterMax:   c.Typing.Jitter,
		LeadIn:      c.Typing.LeadIn,
	}
}

// Transcripts returns the transcript logger settings.
func (c *Config) Transcripts() transcript.Config {
	return transcript.Config{
		Enabled:   c.Transcript.Enabled,
		Dir:       c.Transcript.Dir,
		QueueSize: c.Transcript.QueueSize,
	}
}
