package coa

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/golang-jwt/jwt/v5"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/portal"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

// scriptEmployeeID lists the inline script markers in priority order. Each
// one is tried over the whole page before the next.
var scriptEmployeeID = []*regexp.Regexp{
	regexp.MustCompile(`(?i)EmployeeID["']?\s*[:=]\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)empId["']?\s*[:=]\s*["']?(\d+)`),
	regexp.MustCompile(`(?i)UserID["']?\s*[:=]\s*["']?(\d+)`),
}

// Resolver derives the employee id the portal expects in COA payloads.
// Strategies run in a fixed order and the first hit wins: auth cookies or
// tokens, the landing page, the profile page.
type Resolver struct {
	client *portal.Client
	cfg    config.EmployeeIDConfig
	logger *slog.Logger
}

func NewResolver(client *portal.Client, cfg config.EmployeeIDConfig, logger *slog.Logger) *Resolver {
	return &Resolver{client: client, cfg: cfg, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, b *portal.Browser, s *session.State) (string, error) {
	if id, ok := r.fromCookies(s); ok {
		r.logger.Debug("employee id resolved", "strategy", "cookie")
		return id, nil
	}

	portalCfg := r.client.Config()
	pages := []struct {
		strategy string
		path     string
	}{
		{"landing", portalCfg.LandingPath},
		{"profile", portalCfg.ProfilePath},
	}

	for _, p := range pages {
		if p.path == "" {
			continue
		}

		id, ok, err := r.fromPage(ctx, b, p.path)
		if err != nil {
			return "", err
		}
		if ok {
			r.logger.Debug("employee id resolved", "strategy", p.strategy)
			return id, nil
		}
		r.logger.Debug("employee id strategy missed", "strategy", p.strategy)
	}

	return "", apperr.Newf(apperr.ErrEmployeeIDNotFound, "no strategy found an employee id")
}

// fromCookies looks for the id in cookie values: claims of a JWT, keys of
// a form-encoded value, or, for cookies configured by name, a bare number.
func (r *Resolver) fromCookies(s *session.State) (string, bool) {
	names := r.cfg.Cookies
	explicit := len(names) > 0
	if !explicit {
		for name := range s.Cookies {
			names = append(names, name)
		}
		slices.Sort(names)
	}

	for _, name := range names {
		raw, ok := s.Cookies[name]
		if !ok || raw == "" {
			continue
		}
		value, err := url.QueryUnescape(raw)
		if err != nil {
			value = raw
		}

		if id, ok := r.fromToken(value); ok {
			return id, true
		}
		if id, ok := r.fromFormValue(value); ok {
			return id, true
		}
		if explicit && isPositiveInt(value) {
			return value, true
		}
	}

	return "", false
}

func (r *Resolver) fromToken(value string) (string, bool) {
	if strings.Count(value, ".") != 2 {
		return "", false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return "", false
	}

	for _, name := range r.cfg.Claims {
		if id, ok := claimID(claims[name]); ok {
			return id, true
		}
	}
	return "", false
}

func (r *Resolver) fromFormValue(value string) (string, bool) {
	if !strings.Contains(value, "=") {
		return "", false
	}

	values, err := url.ParseQuery(value)
	if err != nil {
		return "", false
	}

	for _, name := range r.cfg.Claims {
		for key := range values {
			if strings.EqualFold(key, name) && isPositiveInt(values.Get(key)) {
				return values.Get(key), true
			}
		}
	}
	return "", false
}

// fromPage fetches path and extracts the id from its markup. Transport
// failures are returned; pages the portal refuses to serve are a miss.
func (r *Resolver) fromPage(ctx context.Context, b *portal.Browser, path string) (string, bool, error) {
	page, err := b.Get(ctx, r.client.Resolve(path))
	if err != nil {
		return "", false, err
	}

	if !page.OK() || !r.client.IsPortalHost(page.URL) {
		r.logger.Debug("employee id page unavailable",
			"url", apperr.RedactURL(page.URL),
			"status", page.Status,
		)
		return "", false, nil
	}

	doc, err := page.Document()
	if err != nil {
		return "", false, nil
	}

	id, ok := ExtractEmployeeID(string(page.Body), doc)
	return id, ok, nil
}

// ExtractEmployeeID searches page markup for the employee id: script
// assignments first, then hidden inputs named after the employee, then a
// data-employee-id attribute.
func ExtractEmployeeID(body string, doc *goquery.Document) (string, bool) {
	for _, re := range scriptEmployeeID {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if isPositiveInt(m[1]) {
				return m[1], true
			}
		}
	}

	var id string
	doc.Find("input[type=hidden][name]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		name := strings.ToLower(sel.AttrOr("name", ""))
		value := strings.TrimSpace(sel.AttrOr("value", ""))
		if strings.Contains(name, "employee") && isPositiveInt(value) {
			id = value
			return false
		}
		return true
	})
	if id != "" {
		return id, true
	}

	doc.Find("[data-employee-id]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		value := strings.TrimSpace(sel.AttrOr("data-employee-id", ""))
		if isPositiveInt(value) {
			id = value
			return false
		}
		return true
	})

	return id, id != ""
}

func claimID(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, isPositiveInt(val)
	case float64:
		if val <= 0 || val != float64(int64(val)) {
			return "", false
		}
		return strconv.FormatInt(int64(val), 10), true
	default:
		return "", false
	}
}

// isPositiveInt reports whether s is a positive decimal integer.
func isPositiveInt(s string) bool {
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return false
	}
	return strings.Trim(s, "0") != ""
}
