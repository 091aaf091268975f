package coa_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/coa"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/portal"
	"github.com/marcogenualdo/hrhub-coa/internal/portal/portaltest"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

func unsignedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("portal-secret"))
	require.NoError(t, err)
	return raw
}

func newResolver(t *testing.T, fake *portaltest.Portal, mutate func(cfg *config.Config)) (*coa.Resolver, *portal.Client) {
	t.Helper()
	cfg := fake.Config()
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := portal.NewClient(cfg.Portal, cfg.SSO, discardLogger())
	require.NoError(t, err)
	return coa.NewResolver(client, cfg.EmployeeID, discardLogger()), client
}

func resolve(t *testing.T, r *coa.Resolver, client *portal.Client, st *session.State) (string, error) {
	t.Helper()
	b, err := client.Browser(st)
	require.NoError(t, err)
	return r.Resolve(context.Background(), b, st)
}

func TestResolver_CookieStrategies(t *testing.T) {
	tests := []struct {
		name    string
		cookies map[string]string
		names   []string
		want    string
	}{
		{
			name:    "jwt claim",
			cookies: map[string]string{"access_token": unsignedToken(t, jwt.MapClaims{"sub": "u1", "EmployeeID": float64(4242)})},
			want:    "4242",
		},
		{
			name:    "jwt string claim",
			cookies: map[string]string{"id_token": unsignedToken(t, jwt.MapClaims{"employee_id": "777"})},
			want:    "777",
		},
		{
			name:    "form encoded value",
			cookies: map[string]string{"UserInfo": "Name=jdoe&EmployeeID=3131"},
			want:    "3131",
		},
		{
			name:    "url escaped form value",
			cookies: map[string]string{"UserInfo": "Name%3Djdoe%26empId%3D818"},
			want:    "818",
		},
		{
			name:    "configured bare cookie",
			cookies: map[string]string{"EmpNo": "5150", "Other": "99"},
			names:   []string{"EmpNo"},
			want:    "5150",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := portaltest.New(t)
			r, client := newResolver(t, fake, func(cfg *config.Config) {
				cfg.EmployeeID.Cookies = tt.names
			})

			st := session.New()
			for k, v := range tt.cookies {
				st.Cookies[k] = v
			}

			id, err := resolve(t, r, client, st)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
			assert.Equal(t, 0, fake.Stats().DashboardHits, "cookies are tried before any page")
		})
	}
}

func TestResolver_BareNumbersNeedConfiguredCookie(t *testing.T) {
	fake := portaltest.New(t)
	r, client := newResolver(t, fake, nil)

	st := fake.IssueSession()
	st.Cookies["LastVisit"] = "1721376000"

	id, err := resolve(t, r, client, st)
	require.NoError(t, err)
	assert.Equal(t, portaltest.EmployeeID, id)
	assert.Equal(t, 1, fake.Stats().DashboardHits)
}

func TestResolver_FallsBackToProfile(t *testing.T) {
	fake := portaltest.New(t)
	fake.Configure(func(b *portaltest.Behavior) {
		b.DashboardMarkup = "<p>Welcome</p>"
		b.ProfileMarkup = `<div class="card" data-employee-id="6006"></div>`
	})
	r, client := newResolver(t, fake, nil)

	id, err := resolve(t, r, client, fake.IssueSession())
	require.NoError(t, err)
	assert.Equal(t, "6006", id)

	stats := fake.Stats()
	assert.Equal(t, 1, stats.DashboardHits)
	assert.Equal(t, 1, stats.ProfileHits)
}

func TestResolver_NotFound(t *testing.T) {
	fake := portaltest.New(t)
	fake.Configure(func(b *portaltest.Behavior) {
		b.DashboardMarkup = "<p>Welcome</p>"
	})
	r, client := newResolver(t, fake, func(cfg *config.Config) {
		cfg.Portal.ProfilePath = ""
	})

	_, err := resolve(t, r, client, fake.IssueSession())
	require.ErrorIs(t, err, apperr.ErrEmployeeIDNotFound)
	assert.Equal(t, 0, fake.Stats().ProfileHits)
}

func TestResolver_TransportFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/"
	srv.Close()

	cfg := config.Default()
	cfg.Portal.BaseURL = base
	client, err := portal.NewClient(cfg.Portal, cfg.SSO, discardLogger())
	require.NoError(t, err)
	r := coa.NewResolver(client, cfg.EmployeeID, discardLogger())

	_, err = resolve(t, r, client, session.New())
	require.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestExtractEmployeeID(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{name: "script assignment", markup: `<script>var EmployeeID = 12345;</script>`, want: "12345"},
		{name: "json property", markup: `<script>init({"employeeId":"2024"})</script>`, want: "2024"},
		{name: "user id", markup: `<script>window.UserID='31'</script>`, want: "31"},
		{name: "employee id outranks earlier user id", markup: `<script>var UserID = 7; var EmployeeID = 42;</script>`, want: "42"},
		{name: "emp id outranks earlier user id", markup: `<script>var UserID = 7;</script><script>cfg = {empId: "15"}</script>`, want: "15"},
		{name: "skips zero", markup: `<script>var empId = 0; var EmployeeID = 88;</script>`, want: "88"},
		{name: "hidden input", markup: `<input type="hidden" name="ctl00$hfEmployeeId" value="4040">`, want: "4040"},
		{name: "hidden input needs digits", markup: `<input type="hidden" name="hfEmployeeName" value="Jane"><div data-employee-id="9">`, want: "9"},
		{name: "script wins over attribute", markup: `<div data-employee-id="1"></div><script>var EmployeeID = 2;</script>`, want: "2"},
		{name: "nothing", markup: `<p>Employee Dashboard</p>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := "<html><body>" + tt.markup + "</body></html>"
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(body)))
			require.NoError(t, err)

			id, ok := coa.ExtractEmployeeID(body, doc)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, id)
		})
	}
}
