package apperr

import (
	"errors"
	"fmt"
	"net/url"
)

// Error kinds. Every error returned by the session engine and the COA
// protocol wraps exactly one of these.
var (
	// Transport errors
	ErrNetwork = errors.New("network error")

	// Portal or identity provider page layout errors
	ErrParse          = errors.New("unexpected page structure")
	ErrUnexpectedFlow = errors.New("unexpected login flow")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthRejected       = errors.New("authentication rejected")

	// COA errors
	ErrValidation         = errors.New("invalid input")
	ErrEmployeeIDNotFound = errors.New("employee id not found")
	ErrAPIValidation      = errors.New("portal rejected request")
	ErrAmbiguousResult    = errors.New("ambiguous result")
)

// Newf returns an error of the given kind with a formatted detail message.
func Newf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Wrapf classifies cause as kind, keeping cause in the chain.
func Wrapf(kind, cause error, format string, args ...any) error {
	if cause == nil {
		return Newf(kind, format, args...)
	}
	return fmt.Errorf("%w: %s: %w", kind, fmt.Sprintf(format, args...), cause)
}

// PortalError carries the message the portal attached to a rejected
// business request.
type PortalError struct {
	Kind    error
	Status  int
	Message string
}

func (e *PortalError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PortalError) Unwrap() error {
	return e.Kind
}

// Kind returns the taxonomy sentinel err wraps, or nil.
func Kind(err error) error {
	for _, kind := range []error{
		ErrNetwork,
		ErrParse,
		ErrUnexpectedFlow,
		ErrInvalidCredentials,
		ErrAuthRejected,
		ErrValidation,
		ErrEmployeeIDNotFound,
		ErrAPIValidation,
		ErrAmbiguousResult,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Describe renders err for people reading tool or CLI output.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var portalErr *PortalError
	if errors.As(err, &portalErr) && portalErr.Message != "" {
		return "the portal rejected the request: " + portalErr.Message
	}

	switch Kind(err) {
	case ErrNetwork:
		return "could not reach the HR portal (network error or timeout)"
	case ErrParse:
		return "the HR portal returned a page in an unexpected format; its layout may have changed"
	case ErrUnexpectedFlow:
		return "the HR portal login sequence changed; automated login is not possible"
	case ErrInvalidCredentials:
		return "the identity provider refused the username or password"
	case ErrAuthRejected:
		return "the HR portal did not accept the login or the session expired; the next request logs in again"
	case ErrValidation:
		return err.Error()
	case ErrEmployeeIDNotFound:
		return "could not determine the employee id for this account"
	case ErrAPIValidation:
		return "the portal rejected the request"
	case ErrAmbiguousResult:
		return "the portal accepted the request but returned no application id; check the portal before retrying"
	default:
		return "unexpected error: " + err.Error()
	}
}

// RedactURL drops the query string and fragment so state, nonce and codes
// never reach logs or error messages.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	return clean.String()
}

// RedactRawURL is RedactURL for strings. Unparseable input is dropped.
func RedactRawURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return RedactURL(u)
}
