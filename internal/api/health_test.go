package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/pneuma-terminal/internal/terminal"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type pingRepo struct {
	fakeRepo
	pingErr error
}

func (p *pingRepo) Ping(context.Context) error { return p.pingErr }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		wantCode int
		wantBody string
	}{
		{"healthy", nil, http.StatusOK, `{"status":"ok","database":"ok","sessions":0}`},
		{"database down", errors.New("database is closed"), http.StatusServiceUnavailable, `{"status":"unhealthy","database":"database is closed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHealthHandler(&pingRepo{pingErr: tt.pingErr}, terminal.NewSessionManager()).RegisterHealth(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
