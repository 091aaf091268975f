package portal

import (
	"context"
	"strings"

	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

// IsLanding reports whether page is the authenticated landing page: served
// by the portal host, at the landing path or carrying the landing marker.
func (c *Client) IsLanding(p *Page) bool {
	if p == nil || !p.OK() || !c.IsPortalHost(p.URL) {
		return false
	}
	landing := strings.ToLower(strings.TrimPrefix(c.cfg.LandingPath, "/"))
	if landing != "" && strings.Contains(strings.ToLower(p.URL.Path), landing) {
		return true
	}
	return p.Contains(c.cfg.LandingMarker)
}

// Probe issues the validation probe for state. It reports false, with a
// nil error, when the portal answers but does not accept the session. A
// non-nil error means the portal could not be asked.
func (c *Client) Probe(ctx context.Context, state *session.State) (bool, error) {
	b, err := c.Browser(state)
	if err != nil {
		return false, err
	}

	page, err := b.GetNoRedirect(ctx, c.Resolve(c.cfg.ProbePath))
	if err != nil {
		return false, err
	}

	if page.Status != 200 || !c.IsPortalHost(page.URL) {
		c.logger.Debug("session probe rejected", "status", page.Status)
		return false, nil
	}

	return page.Contains(c.cfg.LandingMarker), nil
}
