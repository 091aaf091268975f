package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

const maxBodySize = 8 << 20

// Client knows the portal and identity provider endpoints and hands out
// Browsers, each with its own cookie jar.
type Client struct {
	cfg       config.PortalConfig
	baseURL   *url.URL
	ssoURL    *url.URL
	transport http.RoundTripper
	logger    *slog.Logger
}

func NewClient(portalCfg config.PortalConfig, ssoCfg config.SSOConfig, logger *slog.Logger) (*Client, error) {
	baseURL, err := url.Parse(portalCfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse portal base url: %w", err)
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}

	ssoURL, err := url.Parse(ssoCfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sso base url: %w", err)
	}

	return &Client{
		cfg:       portalCfg,
		baseURL:   baseURL,
		ssoURL:    ssoURL,
		transport: http.DefaultTransport,
		logger:    logger,
	}, nil
}

func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

func (c *Client) SSOURL() *url.URL {
	u := *c.ssoURL
	return &u
}

// Resolve returns path relative to the portal base URL.
func (c *Client) Resolve(path string) *url.URL {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return c.BaseURL()
	}
	return c.baseURL.ResolveReference(ref)
}

func (c *Client) IsPortalHost(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Host, c.baseURL.Host)
}

func (c *Client) IsSSOHost(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Host, c.ssoURL.Host)
}

func (c *Client) Config() config.PortalConfig {
	return c.cfg
}

// HTTPClient is a plain client sharing the transport and timeout, for
// callers outside the browser flow such as OIDC discovery.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c.transport, Timeout: c.cfg.Timeout}
}

// NewBrowser returns a Browser using jar. state, when non-nil, contributes
// its persisted headers to every request.
func (c *Client) NewBrowser(jar http.CookieJar, state *session.State) *Browser {
	return &Browser{client: c, jar: jar, state: state}
}

// Browser rebuilds a Browser from a Session State.
func (c *Client) Browser(state *session.State) (*Browser, error) {
	jar, err := state.Jar(c.baseURL)
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrNetwork, err, "failed to restore cookie jar")
	}
	return c.NewBrowser(jar, state), nil
}

// Page is a fully read response.
type Page struct {
	URL    *url.URL
	Status int
	Header http.Header
	Body   []byte
	// Every URL visited, starting with the request URL.
	Chain []*url.URL
}

func (p *Page) Contains(s string) bool {
	return s != "" && bytes.Contains(p.Body, []byte(s))
}

func (p *Page) OK() bool {
	return p.Status >= 200 && p.Status < 300
}

func (p *Page) IsRedirect() bool {
	return p.Status >= 300 && p.Status < 400
}

// Location resolves the Location header against the page URL.
func (p *Page) Location() (*url.URL, bool) {
	loc := p.Header.Get("Location")
	if loc == "" {
		return nil, false
	}
	u, err := p.URL.Parse(loc)
	if err != nil {
		return nil, false
	}
	return u, true
}

func (p *Page) DecodeJSON(v any) error {
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", apperr.RedactURL(p.URL), err)
	}
	return nil
}

// Browser performs requests the way the portal expects a browser to: a
// shared cookie jar, browser headers, optional redirect following.
type Browser struct {
	client *Client
	jar    http.CookieJar
	state  *session.State
}

func (b *Browser) Jar() http.CookieJar {
	return b.jar
}

// Cookies returns the cookies the jar would send to the portal.
func (b *Browser) Cookies() map[string]string {
	return session.CookiesFromJar(b.jar, b.client.baseURL)
}

type RequestOption func(*http.Request)

func WithHeader(name, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(name, value)
	}
}

func WithReferer(u *url.URL) RequestOption {
	return func(req *http.Request) {
		if u != nil {
			req.Header.Set("Referer", u.String())
		}
	}
}

func (b *Browser) Get(ctx context.Context, u *url.URL, opts ...RequestOption) (*Page, error) {
	return b.do(ctx, http.MethodGet, u, nil, true, opts...)
}

// GetNoRedirect returns the first response even when it is a redirect.
func (b *Browser) GetNoRedirect(ctx context.Context, u *url.URL, opts ...RequestOption) (*Page, error) {
	return b.do(ctx, http.MethodGet, u, nil, false, opts...)
}

func (b *Browser) PostForm(ctx context.Context, u *url.URL, form url.Values, follow bool, opts ...RequestOption) (*Page, error) {
	opts = append([]RequestOption{WithHeader("Content-Type", "application/x-www-form-urlencoded")}, opts...)
	return b.do(ctx, http.MethodPost, u, strings.NewReader(form.Encode()), follow, opts...)
}

func (b *Browser) PostJSON(ctx context.Context, u *url.URL, payload any, opts ...RequestOption) (*Page, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrValidation, err, "request body for %s cannot be encoded", apperr.RedactURL(u))
	}

	opts = append([]RequestOption{
		WithHeader("Content-Type", "application/json; charset=utf-8"),
		WithHeader("Accept", "application/json, text/javascript, */*; q=0.01"),
		WithHeader("X-Requested-With", "XMLHttpRequest"),
	}, opts...)
	return b.do(ctx, http.MethodPost, u, bytes.NewReader(data), false, opts...)
}

func (b *Browser) do(ctx context.Context, method string, u *url.URL, body io.Reader, follow bool, opts ...RequestOption) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrNetwork, err, "failed to build %s request for %s", method, apperr.RedactURL(u))
	}

	req.Header.Set("User-Agent", b.client.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for _, opt := range opts {
		opt(req)
	}
	for name, value := range b.client.cfg.Headers {
		if req.Header.Get(name) == "" {
			req.Header.Set(name, value)
		}
	}
	session.InjectHeaders(req, b.state)

	chain := []*url.URL{req.URL}
	hc := &http.Client{
		Transport: b.client.transport,
		Jar:       b.jar,
		Timeout:   b.client.cfg.Timeout,
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			if !follow {
				return http.ErrUseLastResponse
			}
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			chain = append(chain, next.URL)
			return nil
		},
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrNetwork, unwrapURLError(err), "%s %s", method, apperr.RedactURL(u))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrNetwork, err, "failed to read response from %s", apperr.RedactURL(resp.Request.URL))
	}

	b.client.logger.Debug("portal request",
		"method", method,
		"url", apperr.RedactURL(u),
		"final_url", apperr.RedactURL(resp.Request.URL),
		"status", resp.StatusCode,
		"hops", len(chain)-1,
	)

	return &Page{
		URL:    resp.Request.URL,
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		Chain:  chain,
	}, nil
}

// unwrapURLError strips *url.Error so the full request URL, which may carry
// state or codes in its query, does not end up in messages.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
