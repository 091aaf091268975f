package auth

import (
	"context"

	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

// Authenticator runs a full login and returns a populated state.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*session.State, error)
}

// Prober reports whether the portal still accepts a state.
type Prober interface {
	Probe(ctx context.Context, state *session.State) (bool, error)
}

// RelayVerifier checks an id_token carried by the identity provider's
// form-post relay. nonce is the value sent in the authorization request.
type RelayVerifier interface {
	VerifyRelay(ctx context.Context, rawIDToken, nonce string) error
}
