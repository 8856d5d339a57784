package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitializeResolvesClientID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `{"ip":"198.51.100.23"}`)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.IdentityURL = srv.URL
	c := New(cfg, &seqRand{})

	assert.Equal(t, UnknownClientID, c.ClientID())
	c.Initialize(context.Background())
	assert.Equal(t, "198.51.100.23", c.ClientID())
	assert.Contains(t, c.BuildRequest(testSnap, "Hi").SystemPrompt, "198.51.100.23")
}

func TestInitializeFailureFallsBackToUnknown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `not json`)
		}},
		{"empty ip", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"ip":""}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cfg := DefaultConfig()
			cfg.IdentityURL = srv.URL
			c := New(cfg, &seqRand{})
			c.Initialize(context.Background())

			assert.Equal(t, UnknownClientID, c.ClientID())
		})
	}
}

func TestGreeting(t *testing.T) {
	t.Parallel()

	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"text":"> Session opened."}`)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.GreetingURL = srv.URL
	c := New(cfg, &seqRand{})

	assert.Equal(t, "> Session opened.", c.Greeting(context.Background()))
	assert.Equal(t, "gpt-3.5-turbo", got["model"])
	assert.NotEmpty(t, got["prompt"])
}

func TestGreetingFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"text":"   "}`)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.GreetingURL = srv.URL
	c := New(cfg, &seqRand{})
	assert.Equal(t, DefaultGreeting, c.Greeting(context.Background()))

	cfg.GreetingURL = ""
	assert.Equal(t, DefaultGreeting, New(cfg, &seqRand{}).Greeting(context.Background()))
}
