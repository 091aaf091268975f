package session

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

// NewJar returns an empty cookie jar using the public suffix list.
func NewJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// Jar rebuilds a cookie jar holding the state's cookies, scoped to portal.
func (s *State) Jar(portal *url.URL) (http.CookieJar, error) {
	jar, err := NewJar()
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	for name, value := range s.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  value,
			Path:   "/",
			Secure: portal.Scheme == "https",
		})
	}
	jar.SetCookies(portal, cookies)

	return jar, nil
}

// CookiesFromJar flattens the cookies jar would send to portal.
func CookiesFromJar(jar http.CookieJar, portal *url.URL) map[string]string {
	out := make(map[string]string)
	for _, c := range jar.Cookies(portal) {
		out[c.Name] = c.Value
	}
	return out
}
