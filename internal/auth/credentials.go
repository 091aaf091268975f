package auth

import (
	"log/slog"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
)

// Credentials is a username/password pair. It is never persisted and its
// password never reaches a log line.
type Credentials struct {
	Username string
	Password string
}

func CredentialsFromConfig(cfg config.CredentialsConfig) Credentials {
	return Credentials{Username: cfg.Username, Password: cfg.Password}
}

func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

// Or returns c, or fallback when c is empty.
func (c Credentials) Or(fallback Credentials) Credentials {
	if c.IsZero() {
		return fallback
	}
	return c
}

func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return apperr.Newf(apperr.ErrValidation, "username and password are required to log in")
	}
	return nil
}

func (c Credentials) String() string {
	return c.Username + ":[redacted]"
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("password", "[redacted]"),
	)
}
