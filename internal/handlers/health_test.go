package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/hrhub-coa/internal/auth"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/handlers"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
	"github.com/marcogenualdo/hrhub-coa/internal/store"
)

type staticStatus auth.Status

func (s staticStatus) Status() auth.Status {
	return auth.Status(s)
}

type brokenStore struct {
	store.Store
}

func (brokenStore) Load(ctx context.Context) (*session.State, error) {
	return nil, errors.New("connection refused")
}

func TestHealthHandler(t *testing.T) {
	cfg := config.Default()
	populated := session.New()
	populated.Cookies[".AspNet.Cookies"] = "tok"

	memory := store.NewMemoryStore(0)
	require.NoError(t, memory.Save(context.Background(), populated))

	tests := []struct {
		name        string
		store       store.Store
		wantCode    int
		wantStatus  string
		storeStatus string
	}{
		{name: "empty store", store: store.NewMemoryStore(0), wantCode: http.StatusOK, wantStatus: "healthy", storeStatus: "empty"},
		{name: "stored session", store: memory, wantCode: http.StatusOK, wantStatus: "healthy", storeStatus: "session stored"},
		{name: "broken store", store: brokenStore{Store: store.NewMemoryStore(0)}, wantCode: http.StatusServiceUnavailable, wantStatus: "degraded", storeStatus: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(cfg, tt.store, staticStatus{Populated: true, Store: "memory"}, discardLogger())

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)

			var resp handlers.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.storeStatus, resp.Store.Status)
			assert.Equal(t, "memory", resp.Store.Type)
			assert.True(t, resp.Session.Populated)
			assert.Equal(t, cfg.Portal.BaseURL, resp.Portal.URL)
		})
	}
}
