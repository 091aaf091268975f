package coa

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/auth"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/portal"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

// SessionRunner runs authenticated work against the portal.
type SessionRunner interface {
	WithSession(ctx context.Context, creds auth.Credentials, fn func(ctx context.Context, s *session.State) error) error
}

// Result is the outcome of a submitted COA application.
type Result struct {
	ApplicationID string
	Success       bool
	Message       string
}

// Service files COA applications: validate the input, make sure the
// session is authenticated, resolve the employee id, then validate and
// submit with the portal. Submissions are not idempotent.
type Service struct {
	sessions SessionRunner
	client   *portal.Client
	resolver *Resolver
	cfg      config.COAConfig
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(sessions SessionRunner, client *portal.Client, resolver *Resolver, cfg config.COAConfig, logger *slog.Logger) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to load coa location: %w", err)
	}

	return &Service{
		sessions: sessions,
		client:   client,
		resolver: resolver,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// SetClock replaces the clock used to default clock-in and clock-out
// dates and times.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Apply(ctx context.Context, in Input) (*Result, error) {
	req, err := NewRequest(in, s.cfg)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, req)
}

// ClockIn files a single-sided COA for the given date and time, both
// defaulting to now.
func (s *Service) ClockIn(ctx context.Context, date, at string) (*Result, error) {
	date, at = s.defaultMoment(date, at)
	return s.Apply(ctx, Input{
		Date:            date,
		TimeIn:          at,
		Reason:          s.cfg.ClockInReason,
		TypeDescription: s.cfg.ClockInType,
	})
}

func (s *Service) ClockOut(ctx context.Context, date, at string) (*Result, error) {
	date, at = s.defaultMoment(date, at)
	return s.Apply(ctx, Input{
		Date:            date,
		TimeOut:         at,
		Reason:          s.cfg.ClockOutReason,
		TypeDescription: s.cfg.ClockOutType,
	})
}

func (s *Service) defaultMoment(date, at string) (string, string) {
	now := s.now().In(s.loc)
	if date == "" {
		date = now.Format(DateLayout)
	}
	if at == "" {
		at = now.Format(TimeLayout)
	}
	return date, at
}

func (s *Service) apply(ctx context.Context, req *Request) (*Result, error) {
	var result *Result

	err := s.sessions.WithSession(ctx, auth.Credentials{}, func(ctx context.Context, st *session.State) error {
		b, err := s.client.Browser(st)
		if err != nil {
			return err
		}

		employeeID := st.EmployeeIDValue()
		if employeeID == "" {
			employeeID, err = s.resolver.Resolve(ctx, b, st)
			if err != nil {
				return err
			}
			st.SetEmployeeID(employeeID)
		}

		payload := req.Payload(employeeID)
		referer := s.client.Resolve(s.cfg.PagePath)

		s.logger.Info("validating coa application", "date", req.Date, "times", req.Times())
		page, err := s.post(ctx, b, st, s.cfg.ValidatePath, payload, referer)
		if err != nil {
			return err
		}

		token, err := interpretValidation(page, s.logger)
		if err != nil {
			s.logger.Warn("portal rejected coa validation", "date", req.Date, "status", page.Status, "error", err)
			return err
		}
		payload.ValidationToken = token

		page, err = s.post(ctx, b, st, s.cfg.SubmitPath, payload, referer)
		if err != nil {
			return err
		}

		id, err := interpretSubmission(page)
		if err != nil {
			s.logger.Warn("coa submission not confirmed", "date", req.Date, "status", page.Status, "error", err)
			return err
		}

		s.logger.Info("coa application submitted", "date", req.Date, "application_id", id)
		result = &Result{
			ApplicationID: id,
			Success:       true,
			Message:       fmt.Sprintf("COA application %s submitted for %s (%s)", id, req.Date, req.Times()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// post sends payload to path. The portal answers an expired session with a
// redirect to the identity provider; that marks st stale so the next call
// logs in again.
func (s *Service) post(ctx context.Context, b *portal.Browser, st *session.State, path string, payload any, referer *url.URL) (*portal.Page, error) {
	page, err := b.PostJSON(ctx, s.client.Resolve(path), payload, portal.WithReferer(referer))
	if err != nil {
		return nil, err
	}

	if loc, ok := page.Location(); ok && page.IsRedirect() && s.client.IsSSOHost(loc) {
		st.Invalidate()
		s.logger.Warn("portal session expired during coa call", "path", path, "status", page.Status)
		return nil, apperr.Newf(apperr.ErrAuthRejected, "portal session expired before %s was accepted", path)
	}

	return page, nil
}
