package oidc

import (
	"context"
	"crypto"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/marcogenualdo/hrhub-coa/internal/config"
)

// Verifier checks id_tokens relayed by the identity provider through the
// portal's form_post callback.
type Verifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the issuer's signing keys. httpClient is used for
// discovery and for later key set refreshes.
func NewVerifier(ctx context.Context, cfg config.OIDCConfig, httpClient *http.Client) (*Verifier, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &Verifier{
		issuer:   cfg.Issuer,
		verifier: provider.Verifier(verifierConfig(cfg.ClientID)),
	}, nil
}

// NewStaticVerifier verifies against a fixed set of public keys instead of
// the issuer's JWKS endpoint.
func NewStaticVerifier(issuer, clientID string, keys ...crypto.PublicKey) *Verifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &Verifier{
		issuer:   issuer,
		verifier: oidc.NewVerifier(issuer, keySet, verifierConfig(clientID)),
	}
}

func verifierConfig(clientID string) *oidc.Config {
	return &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: clientID == "",
	}
}

func (v *Verifier) Issuer() string {
	return v.issuer
}

// VerifyRelay checks signature, issuer, audience and expiry, then that the
// token answers the authorization request carrying nonce.
func (v *Verifier) VerifyRelay(ctx context.Context, rawIDToken, nonce string) error {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("failed to verify ID token: %w", err)
	}

	if nonce != "" && idToken.Nonce != nonce {
		return fmt.Errorf("ID token nonce does not match the authorization request")
	}

	return nil
}
