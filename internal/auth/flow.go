package auth

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/portal"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

// Engine drives the portal's login sequence: entry redirect to the identity
// provider, login form, credential post, form-post relay back to the
// portal, landing page. It never retries; every failure is returned
// classified.
type Engine struct {
	client   *portal.Client
	sso      config.SSOConfig
	portal   config.PortalConfig
	verifier RelayVerifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine builds an Engine. verifier may be nil, in which case relay
// id_tokens are not checked.
func NewEngine(client *portal.Client, sso config.SSOConfig, verifier RelayVerifier, logger *slog.Logger) *Engine {
	return &Engine{
		client:   client,
		sso:      sso,
		portal:   client.Config(),
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
	}
}

// flowContext is the state of a single login attempt.
type flowContext struct {
	attemptID  string
	browser    *portal.Browser
	chain      []string
	authParams url.Values
	loginForm  *portal.Form
	relayForm  *portal.Form
	logger     *slog.Logger
}

func (fc *flowContext) visit(p *portal.Page) {
	for _, u := range p.Chain {
		fc.chain = append(fc.chain, apperr.RedactURL(u))
	}
}

func (e *Engine) Authenticate(ctx context.Context, creds Credentials) (*session.State, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	jar, err := session.NewJar()
	if err != nil {
		return nil, apperr.Wrapf(apperr.ErrNetwork, err, "failed to create cookie jar")
	}

	fc := &flowContext{
		attemptID: uuid.NewString(),
		browser:   e.client.NewBrowser(jar, nil),
	}
	fc.logger = e.logger.With("attempt_id", fc.attemptID)
	fc.logger.Info("starting portal login", "username", creds.Username)

	loginPage, err := e.entryProbe(ctx, fc)
	if err != nil {
		return nil, e.fail(fc, "entry", err)
	}

	if err := e.extractLoginForm(fc, loginPage); err != nil {
		return nil, e.fail(fc, "extract", err)
	}

	relayPage, err := e.submitCredentials(ctx, fc, loginPage, creds)
	if err != nil {
		return nil, e.fail(fc, "credentials", err)
	}

	landing, err := e.consumeRelay(ctx, fc, relayPage)
	if err != nil {
		return nil, e.fail(fc, "relay", err)
	}

	if err := e.verifyLanding(landing); err != nil {
		return nil, e.fail(fc, "landing", err)
	}

	state := session.New()
	state.Cookies = fc.browser.Cookies()
	state.Headers["User-Agent"] = e.portal.UserAgent
	for name, value := range e.portal.Headers {
		state.Headers[name] = value
	}

	if !state.Populated(e.portal.AuthCookie) {
		return nil, e.fail(fc, "landing", apperr.Newf(apperr.ErrAuthRejected, "portal did not set the %s cookie", e.portal.AuthCookie))
	}

	state.MarkAuthenticated(e.now())
	fc.logger.Info("portal login succeeded",
		"hops", len(fc.chain),
		"cookies", len(state.Cookies),
	)

	return state, nil
}

func (e *Engine) fail(fc *flowContext, step string, err error) error {
	fc.logger.Warn("portal login failed",
		"step", step,
		"hops", fc.chain,
		"error", err,
	)
	return err
}

// entryProbe requests the portal entry point and expects to be redirected
// to the identity provider's login page.
func (e *Engine) entryProbe(ctx context.Context, fc *flowContext) (*portal.Page, error) {
	page, err := fc.browser.Get(ctx, e.client.Resolve(e.portal.EntryPath))
	if err != nil {
		return nil, err
	}
	fc.visit(page)

	if page.Status != 200 {
		return nil, apperr.Newf(apperr.ErrNetwork, "entry point returned status %d", page.Status)
	}

	if !e.client.IsSSOHost(page.URL) {
		return nil, apperr.Newf(apperr.ErrUnexpectedFlow, "entry point did not redirect to the identity provider (ended at %s)", apperr.RedactURL(page.URL))
	}

	fc.authParams = page.URL.Query()
	fc.logger.Debug("reached identity provider",
		"url", apperr.RedactURL(page.URL),
		"client_id", fc.authParams.Get("client_id"),
		"response_mode", fc.authParams.Get("response_mode"),
	)

	return page, nil
}

func (e *Engine) extractLoginForm(fc *flowContext, page *portal.Page) error {
	doc, err := page.Document()
	if err != nil {
		return err
	}

	form, ok := portal.FindForm(doc, e.sso.LoginFormSelector, page.URL)
	if !ok {
		return apperr.Newf(apperr.ErrParse, "login form %q with an action not found", e.sso.LoginFormSelector)
	}

	actionParams := form.Action.Query()
	for _, name := range e.sso.RequiredFields {
		if !form.Has(name) && !actionParams.Has(name) {
			return apperr.Newf(apperr.ErrParse, "login form is missing required field %q", name)
		}
	}

	fc.loginForm = form
	fc.logger.Debug("extracted login form",
		"action", apperr.RedactURL(form.Action),
		"hidden_fields", len(form.HiddenValues()),
	)

	return nil
}

func (e *Engine) submitCredentials(ctx context.Context, fc *flowContext, loginPage *portal.Page, creds Credentials) (*portal.Page, error) {
	values := fc.loginForm.HiddenValues()
	values.Set(e.sso.UsernameField, creds.Username)
	values.Set(e.sso.PasswordField, creds.Password)
	if !values.Has("credentialId") {
		values.Set("credentialId", "")
	}

	page, err := fc.browser.PostForm(ctx, fc.loginForm.Action, values, false,
		portal.WithReferer(loginPage.URL),
		portal.WithHeader("Origin", origin(loginPage.URL)),
	)
	if err != nil {
		return nil, err
	}
	fc.visit(page)

	if !page.OK() {
		return nil, apperr.Newf(apperr.ErrNetwork, "credential submission returned status %d", page.Status)
	}

	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	if msg, ok := portal.FirstText(doc, e.sso.ErrorSelector); ok {
		return nil, apperr.Newf(apperr.ErrInvalidCredentials, "identity provider said: %s", msg)
	}

	if _, ok := portal.FindForm(doc, e.sso.LoginFormSelector, page.URL); ok {
		return nil, apperr.Newf(apperr.ErrInvalidCredentials, "identity provider displayed the login form again")
	}

	return page, nil
}

// consumeRelay replays the identity provider's self-submitting form to the
// portal callback, as a browser would on load.
func (e *Engine) consumeRelay(ctx context.Context, fc *flowContext, page *portal.Page) (*portal.Page, error) {
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	relay, ok := portal.FindForm(doc, e.sso.RelayFormSelector, page.URL)
	if !ok || relay.Method != "POST" {
		return nil, apperr.Newf(apperr.ErrParse, "form-post relay not found in identity provider response")
	}
	fc.relayForm = relay

	if code := relay.Get("error"); code != "" {
		return nil, apperr.Newf(apperr.ErrAuthRejected, "identity provider returned error %q", code)
	}

	if want := fc.authParams.Get("state"); want != "" && relay.Has("state") && relay.Get("state") != want {
		return nil, apperr.Newf(apperr.ErrAuthRejected, "relay state does not match the authorization request")
	}

	if e.verifier != nil && relay.Has("id_token") {
		if err := e.verifier.VerifyRelay(ctx, relay.Get("id_token"), fc.authParams.Get("nonce")); err != nil {
			return nil, apperr.Wrapf(apperr.ErrAuthRejected, err, "relay id_token rejected")
		}
	}

	fc.logger.Debug("posting relay to portal",
		"action", apperr.RedactURL(relay.Action),
		"fields", len(relay.Fields),
	)

	landing, err := fc.browser.PostForm(ctx, relay.Action, relay.Values(), true,
		portal.WithReferer(page.URL),
		portal.WithHeader("Origin", origin(page.URL)),
	)
	if err != nil {
		return nil, err
	}
	fc.visit(landing)

	if landing.Status >= 400 {
		return nil, apperr.Newf(apperr.ErrAuthRejected, "portal callback rejected the relay with status %d", landing.Status)
	}

	return landing, nil
}

func (e *Engine) verifyLanding(page *portal.Page) error {
	if e.client.IsSSOHost(page.URL) {
		return apperr.Newf(apperr.ErrAuthRejected, "portal sent the login back to the identity provider")
	}
	if !e.client.IsLanding(page) {
		return apperr.Newf(apperr.ErrAuthRejected, "login ended at %s instead of the landing page", apperr.RedactURL(page.URL))
	}
	return nil
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
