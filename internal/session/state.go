package session

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// State is the serializable unit of authentication with the portal.
//
// A State is empty (no cookies) or populated. Only populated states are
// used for authenticated calls.
type State struct {
	Cookies    map[string]string `json:"cookies"`
	Headers    map[string]string `json:"headers"`
	EmployeeID *string           `json:"employee_id"`

	// Set when a validation probe rejected the state. Never persisted.
	stale bool
	// When the state was produced by a login in this process.
	authenticatedAt time.Time
}

func New() *State {
	return &State{
		Cookies: make(map[string]string),
		Headers: make(map[string]string),
	}
}

// Populated reports whether the state carries cookies, and, when
// authCookie is non-empty, that specific cookie.
func (s *State) Populated(authCookie string) bool {
	if s == nil || len(s.Cookies) == 0 {
		return false
	}
	if authCookie == "" {
		return true
	}
	_, ok := s.Cookies[authCookie]
	return ok
}

func (s *State) Stale() bool {
	return s != nil && s.stale
}

// Invalidate marks the state as rejected by the portal. The state and any
// persisted copy are left in place until a fresh login overwrites them.
func (s *State) Invalidate() {
	s.stale = true
}

func (s *State) AuthenticatedAt() time.Time {
	return s.authenticatedAt
}

func (s *State) MarkAuthenticated(at time.Time) {
	s.authenticatedAt = at
	s.stale = false
}

func (s *State) EmployeeIDValue() string {
	if s == nil || s.EmployeeID == nil {
		return ""
	}
	return *s.EmployeeID
}

func (s *State) SetEmployeeID(id string) {
	s.EmployeeID = &id
}

func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := &State{
		Cookies:         maps.Clone(s.Cookies),
		Headers:         maps.Clone(s.Headers),
		stale:           s.stale,
		authenticatedAt: s.authenticatedAt,
	}
	if c.Cookies == nil {
		c.Cookies = make(map[string]string)
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	if s.EmployeeID != nil {
		c.SetEmployeeID(*s.EmployeeID)
	}
	return c
}

func Marshal(s *State) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

func Unmarshal(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.Cookies == nil {
		s.Cookies = make(map[string]string)
	}
	if s.Headers == nil {
		s.Headers = make(map[string]string)
	}
	return &s, nil
}
