package session

import (
	"net/http"
	"strings"
)

// Headers that are owned by the transport and never replayed from a
// persisted state.
var transportHeaders = map[string]bool{
	"Content-Length":    true,
	"Content-Type":      true,
	"Cookie":            true,
	"Host":              true,
	"Transfer-Encoding": true,
}

// InjectHeaders copies the state's persisted headers onto req. Headers
// already present on req win.
func InjectHeaders(req *http.Request, s *State) {
	if s == nil {
		return
	}

	for name, value := range s.Headers {
		canonical := http.CanonicalHeaderKey(strings.TrimSpace(name))
		if canonical == "" || transportHeaders[canonical] || value == "" {
			continue
		}
		if req.Header.Get(canonical) != "" {
			continue
		}
		req.Header.Set(canonical, value)
	}
}
