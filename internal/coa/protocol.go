package coa

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/portal"
)

// envelope is the ASP.NET page method response: the result sits under
// "d", failures carry "Message".
type envelope struct {
	D       json.RawMessage `json:"d"`
	Message string          `json:"Message"`
}

// verdict is the object form of "d".
type verdict struct {
	IsValid       *bool           `json:"IsValid"`
	ErrorMessage  string          `json:"ErrorMessage"`
	Message       string          `json:"Message"`
	Token         string          `json:"Token"`
	COAID         json.RawMessage `json:"CertificateOfAttendanceID"`
	ApplicationID json.RawMessage `json:"ApplicationID"`
	ID            json.RawMessage `json:"ID"`
}

// rejection reports whether the verdict says the request was refused.
func (v *verdict) rejection() (string, bool) {
	msg := v.ErrorMessage
	if msg == "" {
		msg = v.Message
	}
	if v.IsValid != nil {
		return msg, !*v.IsValid
	}
	return msg, msg != ""
}

func rejected(page *portal.Page, message string) error {
	return &apperr.PortalError{
		Kind:    apperr.ErrAPIValidation,
		Status:  page.Status,
		Message: message,
	}
}

// statusRejection turns a non-200 response into an API validation error
// carrying the portal's message when the body is JSON.
func statusRejection(page *portal.Page) error {
	var env envelope
	if err := json.Unmarshal(page.Body, &env); err == nil && env.Message != "" {
		return rejected(page, env.Message)
	}
	return rejected(page, "")
}

// interpretValidation reads the response of the duplicate-filing check.
// It returns the token the submit call must echo, if the portal issued one.
// Shapes it does not recognize pass, with a warning on logger.
func interpretValidation(page *portal.Page, logger *slog.Logger) (string, error) {
	if page.Status != 200 {
		return "", statusRejection(page)
	}

	var env envelope
	if err := page.DecodeJSON(&env); err != nil {
		return "", apperr.Wrapf(apperr.ErrParse, err, "validation response is not JSON")
	}

	d := bytes.TrimSpace(env.D)
	switch {
	case len(d) == 0 || bytes.Equal(d, []byte("null")) || bytes.Equal(d, []byte("true")):
		return "", nil
	case bytes.Equal(d, []byte("false")):
		return "", rejected(page, "the portal refused the filing, most likely a COA already exists for this date")
	case d[0] == '"':
		var msg string
		if err := json.Unmarshal(d, &msg); err != nil {
			return "", apperr.Wrapf(apperr.ErrParse, err, "validation response is malformed")
		}
		if msg = strings.TrimSpace(msg); msg != "" {
			return "", rejected(page, msg)
		}
		return "", nil
	case d[0] == '{':
		var v verdict
		if err := json.Unmarshal(d, &v); err != nil {
			return "", apperr.Wrapf(apperr.ErrParse, err, "validation response is malformed")
		}
		if msg, ok := v.rejection(); ok {
			return "", rejected(page, msg)
		}
		return v.Token, nil
	default:
		logger.Warn("unrecognized coa validation result, treating it as accepted",
			"status", page.Status,
			"result", truncate(string(d), 64),
		)
		return "", nil
	}
}

// interpretSubmission reads the response of the save call and returns the
// new application's id.
func interpretSubmission(page *portal.Page) (string, error) {
	if page.Status != 200 {
		return "", statusRejection(page)
	}

	var env envelope
	if err := page.DecodeJSON(&env); err != nil {
		return "", apperr.Wrapf(apperr.ErrAmbiguousResult, err, "submission returned status 200 with an unreadable body")
	}

	d := bytes.TrimSpace(env.D)
	if bytes.Equal(d, []byte("false")) {
		return "", rejected(page, "the portal refused to save the application")
	}

	if len(d) > 0 && d[0] == '{' {
		var v verdict
		if err := json.Unmarshal(d, &v); err != nil {
			return "", apperr.Wrapf(apperr.ErrAmbiguousResult, err, "submission returned a malformed result")
		}
		if (v.IsValid != nil && !*v.IsValid) || v.ErrorMessage != "" {
			msg, _ := v.rejection()
			return "", rejected(page, msg)
		}
		for _, raw := range []json.RawMessage{v.COAID, v.ApplicationID, v.ID} {
			if id, ok := applicationID(raw); ok {
				return id, nil
			}
		}
		return "", apperr.Newf(apperr.ErrAmbiguousResult, "submission result carries no application id")
	}

	if id, ok := applicationID(d); ok {
		return id, nil
	}

	return "", apperr.Newf(apperr.ErrAmbiguousResult, "submission returned status 200 without an application id")
}

// applicationID accepts a positive JSON number or a string of digits.
func applicationID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, isPositiveInt(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	id, err := n.Int64()
	if err != nil || id <= 0 {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
