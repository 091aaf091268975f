package store

import (
	"context"
	"errors"

	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

var ErrNotFound = errors.New("session not found")

// Store persists the single Session State this process owns.
type Store interface {
	Load(ctx context.Context) (*session.State, error)
	Save(ctx context.Context, s *session.State) error
	Delete(ctx context.Context) error
	Type() string
	Close() error
}

func New(cfg config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case "file":
		return NewFileStore(cfg.Path), nil
	case "memory":
		return NewMemoryStore(cfg.TTL), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis config is required for redis store type")
		}
		return NewRedisStore(*cfg.Redis, cfg.Key, cfg.TTL)
	default:
		return nil, errors.New("unsupported store type: " + cfg.Store)
	}
}
