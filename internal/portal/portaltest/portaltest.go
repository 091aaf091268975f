// Package portaltest provides an in-process fake of the HR portal and its
// identity provider for tests. The two run on separate httptest servers so
// host checks behave as they do against the real deployment.
package portaltest

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

const (
	Username   = "jdoe"
	Password   = "correct-horse"
	EmployeeID = "12345"
	AuthCookie = ".AspNet.Cookies"
	State      = "st-8c1f"
	Nonce      = "n-41d2"
)

// Behavior switches the fake away from the happy path.
type Behavior struct {
	SkipEntryRedirect bool
	OmitLoginForm     bool
	LoginStatus       int
	OmitRelayForm     bool
	RelayError        string
	RelayIDToken      string
	RejectRelay       bool
	LandElsewhere     bool

	DashboardMarkup string
	ProfileMarkup   string

	// ExpireAfterDashboard drops every session right after the dashboard
	// is served, so the next authenticated call finds it expired.
	ExpireAfterDashboard bool

	ValidateStatus   int
	ValidateResponse string
	SubmitStatus     int
	SubmitResponse   string
}

// Stats counts requests per endpoint.
type Stats struct {
	EntryHits     int
	LoginPages    int
	LoginPosts    int
	RelayPosts    int
	DashboardHits int
	ProfileHits   int
	ValidateCalls int
	SubmitCalls   int
}

type Portal struct {
	Portal *httptest.Server
	SSO    *httptest.Server

	mu       sync.Mutex
	behavior Behavior
	stats    Stats
	tokens   map[string]bool
	codes    map[string]bool
	seq      int
	payloads []json.RawMessage
}

// New starts both servers and registers their shutdown with t.
func New(t testing.TB) *Portal {
	t.Helper()

	p := &Portal{
		tokens: make(map[string]bool),
		codes:  make(map[string]bool),
	}

	portalMux := http.NewServeMux()
	portalMux.HandleFunc("GET /{$}", p.handleEntry)
	portalMux.HandleFunc("POST /signin-oidc", p.handleRelay)
	portalMux.HandleFunc("GET /EmployeeDashboard.aspx", p.handleDashboard)
	portalMux.HandleFunc("GET /EmployeeProfile.aspx", p.handleProfile)
	portalMux.HandleFunc("GET /Error.aspx", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, http.StatusOK, "<html><body>Something went wrong</body></html>")
	})
	portalMux.HandleFunc("POST /CertificateOfAttendance.aspx/ValidateSameFiling", p.handleValidate)
	portalMux.HandleFunc("POST /CertificateOfAttendance.aspx/Save", p.handleSubmit)

	ssoMux := http.NewServeMux()
	ssoMux.HandleFunc("GET /realms/engie/protocol/openid-connect/auth", p.handleLoginPage)
	ssoMux.HandleFunc("POST /realms/engie/login-actions/authenticate", p.handleLoginPost)

	p.Portal = httptest.NewServer(portalMux)
	p.SSO = httptest.NewServer(ssoMux)
	t.Cleanup(func() {
		p.Portal.Close()
		p.SSO.Close()
	})

	return p
}

// Config returns a configuration pointing at the fake, with a memory store
// and valid credentials.
func (p *Portal) Config() config.Config {
	cfg := config.Default()
	cfg.Portal.BaseURL = p.Portal.URL + "/"
	cfg.Portal.AuthCookie = AuthCookie
	cfg.Portal.ProfilePath = "EmployeeProfile.aspx"
	cfg.Portal.Timeout = 5 * time.Second
	cfg.SSO.BaseURL = p.SSO.URL + "/"
	cfg.Session.Store = "memory"
	cfg.Credentials.Username = Username
	cfg.Credentials.Password = Password
	return cfg
}

func (p *Portal) Configure(fn func(b *Behavior)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.behavior)
}

func (p *Portal) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Payloads returns the raw bodies of validate and submit calls in order.
func (p *Portal) Payloads() []json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]json.RawMessage(nil), p.payloads...)
}

// Expire forgets every issued auth cookie, as the portal does when its
// server-side sessions time out.
func (p *Portal) Expire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = make(map[string]bool)
}

// IssueSession returns a state the portal accepts without a login.
func (p *Portal) IssueSession() *session.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	token := fmt.Sprintf("tok-%d", p.seq)
	p.tokens[token] = true

	s := session.New()
	s.Cookies[AuthCookie] = token
	return s
}

func (p *Portal) snapshot() Behavior {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.behavior
}

func (p *Portal) count(fn func(s *Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.stats)
}

func (p *Portal) authed(r *http.Request) bool {
	c, err := r.Cookie(AuthCookie)
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens[c.Value]
}

func (p *Portal) authorizeURL() string {
	q := url.Values{}
	q.Set("client_id", "hrhub")
	q.Set("response_type", "code id_token")
	q.Set("response_mode", "form_post")
	q.Set("redirect_uri", p.Portal.URL+"/signin-oidc")
	q.Set("state", State)
	q.Set("nonce", Nonce)
	return p.SSO.URL + "/realms/engie/protocol/openid-connect/auth?" + q.Encode()
}

func (p *Portal) handleEntry(w http.ResponseWriter, r *http.Request) {
	p.count(func(s *Stats) { s.EntryHits++ })
	b := p.snapshot()

	switch {
	case p.authed(r):
		http.Redirect(w, r, "/EmployeeDashboard.aspx", http.StatusFound)
	case b.SkipEntryRedirect:
		writeHTML(w, http.StatusOK, "<html><body>Scheduled maintenance</body></html>")
	default:
		http.Redirect(w, r, p.authorizeURL(), http.StatusFound)
	}
}

const loginFormHTML = `<form id="kc-form-login" onsubmit="login.disabled = true; return true;" action="/realms/engie/login-actions/authenticate?session_code=sc-1&amp;execution=ex-1&amp;client_id=hrhub" method="post">
<input tabindex="1" id="username" name="username" value="" type="text" autofocus autocomplete="off" />
<input tabindex="2" id="password" name="password" type="password" autocomplete="off" />
<input type="hidden" id="id-hidden-input" name="credentialId" />
<input tabindex="4" name="login" id="kc-login" type="submit" value="Sign In"/>
</form>`

func (p *Portal) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	p.count(func(s *Stats) { s.LoginPages++ })
	b := p.snapshot()

	http.SetCookie(w, &http.Cookie{Name: "KC_RESTART", Value: "restart-token", Path: "/"})
	if b.OmitLoginForm {
		writeHTML(w, http.StatusOK, "<html><body><h1>Sign in</h1></body></html>")
		return
	}
	writeHTML(w, http.StatusOK, "<html><body>"+loginFormHTML+"</body></html>")
}

func (p *Portal) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	p.count(func(s *Stats) { s.LoginPosts++ })
	b := p.snapshot()

	if b.LoginStatus != 0 {
		writeHTML(w, b.LoginStatus, "<html><body>error</body></html>")
		return
	}
	if _, err := r.Cookie("KC_RESTART"); err != nil {
		writeHTML(w, http.StatusBadRequest, "<html><body>Cookie not found</body></html>")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeHTML(w, http.StatusBadRequest, "bad form")
		return
	}
	if r.URL.Query().Get("session_code") != "sc-1" || !r.PostForm.Has("credentialId") {
		writeHTML(w, http.StatusBadRequest, "<html><body>Invalid request</body></html>")
		return
	}

	if r.PostForm.Get("username") != Username || r.PostForm.Get("password") != Password {
		writeHTML(w, http.StatusOK, `<html><body>
<span class="kc-feedback-text">Invalid username or password.</span>`+loginFormHTML+`</body></html>`)
		return
	}

	if b.OmitRelayForm {
		writeHTML(w, http.StatusOK, "<html><body>You are signed in.</body></html>")
		return
	}

	p.mu.Lock()
	p.seq++
	code := fmt.Sprintf("code-%d", p.seq)
	p.codes[code] = true
	p.mu.Unlock()

	fields := fmt.Sprintf(`<input type="hidden" name="code" value="%s"/>
<input type="hidden" name="state" value="%s"/>
<input type="hidden" name="session_state" value="ss-1"/>`, code, State)
	if b.RelayError != "" {
		fields = fmt.Sprintf(`<input type="hidden" name="error" value="%s"/>
<input type="hidden" name="error_description" value="login refused"/>`, html.EscapeString(b.RelayError))
	}
	if b.RelayIDToken != "" {
		fields += fmt.Sprintf(`<input type="hidden" name="id_token" value="%s"/>`, html.EscapeString(b.RelayIDToken))
	}

	writeHTML(w, http.StatusOK, fmt.Sprintf(`<html><head><title>Submit This Form</title></head>
<body onload="javascript:document.forms[0].submit()">
<noscript>JavaScript is disabled.</noscript>
<form method="post" action="%s/signin-oidc">%s</form>
</body></html>`, p.Portal.URL, fields))
}

func (p *Portal) handleRelay(w http.ResponseWriter, r *http.Request) {
	p.count(func(s *Stats) { s.RelayPosts++ })
	b := p.snapshot()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	code := r.PostForm.Get("code")
	p.mu.Lock()
	valid := p.codes[code] && r.PostForm.Get("state") == State
	delete(p.codes, code)
	p.mu.Unlock()

	if b.RejectRelay || !valid {
		http.Error(w, "Correlation failed.", http.StatusUnauthorized)
		return
	}

	p.mu.Lock()
	p.seq++
	token := fmt.Sprintf("tok-%d", p.seq)
	p.tokens[token] = true
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: AuthCookie, Value: token, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "sid-" + token, Path: "/", HttpOnly: true})

	if b.LandElsewhere {
		http.Redirect(w, r, "/Error.aspx", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/EmployeeDashboard.aspx", http.StatusFound)
}

func (p *Portal) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p.count(func(s *Stats) { s.DashboardHits++ })
	b := p.snapshot()

	if !p.authed(r) {
		http.Redirect(w, r, p.authorizeURL(), http.StatusFound)
		return
	}

	markup := b.DashboardMarkup
	if markup == "" {
		markup = fmt.Sprintf(`<script type="text/javascript">var EmployeeID = %s;</script>`, EmployeeID)
	}
	writeHTML(w, http.StatusOK, `<html><head><title>Employee Dashboard</title></head><body>
<h1>Employee Dashboard</h1>`+markup+dashboardTables+`</body></html>`)

	if b.ExpireAfterDashboard {
		p.Expire()
	}
}

const dashboardTables = `
<table id="tblAttendance">
<tr><th>Date</th><th>Status</th><th>Time</th></tr>
<tr><td>07/19/2025</td><td>IN</td><td>09:01</td></tr>
<tr><td>07/18/2025</td><td>OUT</td><td>18:04</td></tr>
<tr><td>07/18/2025</td><td>IN</td><td>08:55</td></tr>
<tr><td>07/17/2025</td><td>OUT</td><td>18:10</td></tr>
<tr><td>07/17/2025</td><td>IN</td><td>09:12</td></tr>
<tr><td>07/16/2025</td><td>OUT</td><td>17:59</td></tr>
</table>
<table id="tblLeaveCredits">
<tr><th>Leave Type</th><th>Balance</th></tr>
<tr><td>Vacation Leave</td><td>7.5</td></tr>
<tr><td>Sick Leave</td><td>10</td></tr>
<tr><td>Birthday Leave</td><td>N/A</td></tr>
</table>
`

func (p *Portal) handleProfile(w http.ResponseWriter, r *http.Request) {
	p.count(func(s *Stats) { s.ProfileHits++ })
	b := p.snapshot()

	if !p.authed(r) {
		http.Redirect(w, r, p.authorizeURL(), http.StatusFound)
		return
	}
	writeHTML(w, http.StatusOK, "<html><body><h1>My Profile</h1>"+b.ProfileMarkup+"</body></html>")
}

func (p *Portal) handleValidate(w http.ResponseWriter, r *http.Request) {
	p.handleJSON(w, r, func(s *Stats) { s.ValidateCalls++ }, func(b Behavior) (int, string) {
		if b.ValidateResponse == "" {
			return b.ValidateStatus, `{"d":true}`
		}
		return b.ValidateStatus, b.ValidateResponse
	})
}

func (p *Portal) handleSubmit(w http.ResponseWriter, r *http.Request) {
	p.handleJSON(w, r, func(s *Stats) { s.SubmitCalls++ }, func(b Behavior) (int, string) {
		if b.SubmitResponse == "" {
			return b.SubmitStatus, `{"d":{"CertificateOfAttendanceID":987,"Status":"Pending"}}`
		}
		return b.SubmitStatus, b.SubmitResponse
	})
}

func (p *Portal) handleJSON(w http.ResponseWriter, r *http.Request, counter func(*Stats), respond func(Behavior) (int, string)) {
	if !p.authed(r) {
		http.Redirect(w, r, p.authorizeURL(), http.StatusFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	p.count(counter)
	p.mu.Lock()
	p.payloads = append(p.payloads, json.RawMessage(body))
	p.mu.Unlock()

	status, resp := respond(p.snapshot())
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, resp)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
