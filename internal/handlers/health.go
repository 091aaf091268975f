package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcogenualdo/hrhub-coa/internal/auth"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/store"
)

// SessionStatus reports the session manager's state.
type SessionStatus interface {
	Status() auth.Status
}

type HealthHandler struct {
	cfg       config.Config
	store     store.Store
	sessions  SessionStatus
	logger    *slog.Logger
	startTime time.Time
}

func NewHealthHandler(cfg config.Config, st store.Store, sessions SessionStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		store:     st,
		sessions:  sessions,
		logger:    logger,
		startTime: time.Now(),
	}
}

type HealthResponse struct {
	Status  string       `json:"status"`
	Uptime  string       `json:"uptime"`
	Store   StoreHealth  `json:"store"`
	Session auth.Status  `json:"session"`
	Portal  PortalHealth `json:"portal"`
}

type StoreHealth struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type PortalHealth struct {
	URL string `json:"url"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "healthy",
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Session: h.sessions.Status(),
	}

	response.Store.Type = h.store.Type()
	switch _, err := h.store.Load(ctx); {
	case err == nil:
		response.Store.Status = "session stored"
	case errors.Is(err, store.ErrNotFound):
		response.Store.Status = "empty"
	default:
		h.logger.Warn("health check could not read session store", "error", err)
		response.Store.Status = "error"
		response.Status = "degraded"
	}

	response.Portal.URL = h.cfg.Portal.BaseURL

	w.Header().Set("Content-Type", "application/json")
	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}
