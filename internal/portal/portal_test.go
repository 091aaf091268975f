package portal_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/portal"
	"github.com/marcogenualdo/hrhub-coa/internal/portal/portaltest"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, cfg config.Config) *portal.Client {
	t.Helper()
	c, err := portal.NewClient(cfg.Portal, cfg.SSO, discardLogger())
	require.NoError(t, err)
	return c
}

func TestClient_Resolve(t *testing.T) {
	cfg := config.Default()
	cfg.Portal.BaseURL = "https://engie.hrhub.ph/hr"
	c := newClient(t, cfg)

	assert.Equal(t, "https://engie.hrhub.ph/hr/", c.Resolve("/").String())
	assert.Equal(t, "https://engie.hrhub.ph/hr/EmployeeDashboard.aspx", c.Resolve("EmployeeDashboard.aspx").String())
	assert.Equal(t, "https://engie.hrhub.ph/hr/CertificateOfAttendance.aspx/Save", c.Resolve("/CertificateOfAttendance.aspx/Save").String())
	assert.True(t, c.IsPortalHost(c.Resolve("x")))
	assert.False(t, c.IsSSOHost(c.Resolve("x")))
}

func TestBrowser_FollowsRedirectsAndRecordsChain(t *testing.T) {
	fake := portaltest.New(t)
	c := newClient(t, fake.Config())

	jar, err := session.NewJar()
	require.NoError(t, err)
	b := c.NewBrowser(jar, nil)

	page, err := b.Get(context.Background(), c.Resolve("/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.True(t, c.IsSSOHost(page.URL))
	require.Len(t, page.Chain, 2)
	assert.True(t, c.IsPortalHost(page.Chain[0]))
	assert.Equal(t, portaltest.Nonce, page.URL.Query().Get("nonce"))
}

func TestBrowser_GetNoRedirect(t *testing.T) {
	fake := portaltest.New(t)
	c := newClient(t, fake.Config())

	jar, err := session.NewJar()
	require.NoError(t, err)

	page, err := c.NewBrowser(jar, nil).GetNoRedirect(context.Background(), c.Resolve("/"))
	require.NoError(t, err)
	assert.True(t, page.IsRedirect())
	loc, ok := page.Location()
	require.True(t, ok)
	assert.True(t, c.IsSSOHost(loc))
}

func TestBrowser_NetworkErrorIsClassifiedAndRedacted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/"
	srv.Close()

	cfg := config.Default()
	cfg.Portal.BaseURL = base
	c := newClient(t, cfg)

	jar, err := session.NewJar()
	require.NoError(t, err)

	target, _ := url.Parse(base + "login?state=secret-state")
	_, err = c.NewBrowser(jar, nil).Get(context.Background(), target)
	require.ErrorIs(t, err, apperr.ErrNetwork)
	assert.NotContains(t, err.Error(), "secret-state")
}

func TestBrowser_UnencodableJSONBodyIsClassified(t *testing.T) {
	fake := portaltest.New(t)
	c := newClient(t, fake.Config())

	b, err := c.Browser(fake.IssueSession())
	require.NoError(t, err)

	_, err = b.PostJSON(context.Background(), c.Resolve("CertificateOfAttendance.aspx/Save"), map[string]any{"bad": make(chan int)})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.NotContains(t, apperr.Describe(err), "unexpected error")
	assert.Equal(t, 0, fake.Stats().SubmitCalls)
}

func TestBrowser_TimeoutIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Portal.BaseURL = srv.URL + "/"
	cfg.Portal.Timeout = 50 * time.Millisecond
	c := newClient(t, cfg)

	jar, err := session.NewJar()
	require.NoError(t, err)

	_, err = c.NewBrowser(jar, nil).Get(context.Background(), c.Resolve("/"))
	require.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestBrowser_SendsStateHeadersAndCookies(t *testing.T) {
	var gotUA, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if c, err := r.Cookie("ASP.NET_SessionId"); err == nil {
			gotCookie = c.Value
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Portal.BaseURL = srv.URL + "/"
	c := newClient(t, cfg)

	st := session.New()
	st.Cookies["ASP.NET_SessionId"] = "sid-1"
	st.Headers["X-Portal-Client"] = "hrhub-coa"

	b, err := c.Browser(st)
	require.NoError(t, err)
	_, err = b.Get(context.Background(), c.Resolve("/"))
	require.NoError(t, err)

	assert.Equal(t, cfg.Portal.UserAgent, gotUA)
	assert.Equal(t, "sid-1", gotCookie)
}

func TestProbe(t *testing.T) {
	fake := portaltest.New(t)
	c := newClient(t, fake.Config())
	ctx := context.Background()

	valid, err := c.Probe(ctx, fake.IssueSession())
	require.NoError(t, err)
	assert.True(t, valid)

	stale := session.New()
	stale.Cookies[portaltest.AuthCookie] = "unknown"
	valid, err = c.Probe(ctx, stale)
	require.NoError(t, err)
	assert.False(t, valid)

	st := fake.IssueSession()
	fake.Expire()
	valid, err = c.Probe(ctx, st)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestFindForm(t *testing.T) {
	page := &portal.Page{
		URL: mustParse(t, "https://sso.sprout.ph/realms/engie/protocol/openid-connect/auth?x=1"),
		Body: []byte(`<html><body>
<form id="search" action=""><input name="q"></form>
<form id="kc-form-login" action="/realms/engie/login-actions/authenticate?session_code=abc" method="post">
  <input name="username" type="text" value="">
  <input name="password" type="password">
  <input type="hidden" name="credentialId">
  <input type="hidden" name="relay" value="r1">
  <input type="checkbox" name="rememberMe">
  <input type="submit" name="login" value="Sign In">
</form></body></html>`),
	}

	doc, err := page.Document()
	require.NoError(t, err)

	_, ok := portal.FindForm(doc, "form#search", page.URL)
	assert.False(t, ok, "forms without an action are skipped")

	form, ok := portal.FindForm(doc, "form#kc-form-login", page.URL)
	require.True(t, ok)
	assert.Equal(t, "POST", form.Method)
	assert.Equal(t, "https://sso.sprout.ph/realms/engie/login-actions/authenticate?session_code=abc", form.Action.String())
	assert.Equal(t, url.Values{"credentialId": {""}, "relay": {"r1"}}, form.HiddenValues())
	assert.True(t, form.Has("username"))
	assert.False(t, form.Has("rememberMe"))
	assert.False(t, form.Has("login"))
	assert.Equal(t, "r1", form.Get("relay"))

	text, ok := portal.FirstText(doc, "span.kc-feedback-text")
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestIsLanding(t *testing.T) {
	c := newClient(t, config.Default())

	landing := &portal.Page{URL: mustParse(t, "https://engie.hrhub.ph/EmployeeDashboard.aspx"), Status: 200}
	assert.True(t, c.IsLanding(landing))

	marker := &portal.Page{URL: mustParse(t, "https://engie.hrhub.ph/Default.aspx"), Status: 200, Body: []byte("<h1>Employee Dashboard</h1>")}
	assert.True(t, c.IsLanding(marker))

	sso := &portal.Page{URL: mustParse(t, "https://sso.sprout.ph/EmployeeDashboard.aspx"), Status: 200}
	assert.False(t, c.IsLanding(sso))

	errPage := &portal.Page{URL: mustParse(t, "https://engie.hrhub.ph/Error.aspx"), Status: 200}
	assert.False(t, c.IsLanding(errPage))
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
