package coa

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var clockTime = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Input is a COA request as supplied by a caller. Empty strings mean
// "not given".
type Input struct {
	Date            string
	TimeIn          string
	TimeOut         string
	Reason          string
	TypeDescription string
}

// Request is a validated Input with defaults applied.
type Request struct {
	Date            string
	TimeIn          string
	TimeOut         string
	Reason          string
	TypeDescription string
}

// NewRequest validates in. It never touches the network.
func NewRequest(in Input, defaults config.COAConfig) (*Request, error) {
	req := &Request{
		Date:            strings.TrimSpace(in.Date),
		TimeIn:          strings.TrimSpace(in.TimeIn),
		TimeOut:         strings.TrimSpace(in.TimeOut),
		Reason:          strings.TrimSpace(in.Reason),
		TypeDescription: strings.TrimSpace(in.TypeDescription),
	}

	if _, err := time.Parse(DateLayout, req.Date); err != nil {
		return nil, apperr.Newf(apperr.ErrValidation, "date %q must be a calendar date in YYYY-MM-DD format", req.Date)
	}

	if req.TimeIn == "" && req.TimeOut == "" {
		return nil, apperr.Newf(apperr.ErrValidation, "at least one of time_in or time_out is required")
	}
	if req.TimeIn != "" && !clockTime.MatchString(req.TimeIn) {
		return nil, apperr.Newf(apperr.ErrValidation, "time_in %q must be HH:MM in 24-hour format", req.TimeIn)
	}
	if req.TimeOut != "" && !clockTime.MatchString(req.TimeOut) {
		return nil, apperr.Newf(apperr.ErrValidation, "time_out %q must be HH:MM in 24-hour format", req.TimeOut)
	}

	if req.Reason == "" {
		req.Reason = defaults.Reason
	}
	if req.TypeDescription == "" {
		req.TypeDescription = defaults.TypeDescription
	}

	return req, nil
}

// Times renders the requested times for messages, e.g. "in 09:00, out 18:00".
func (r *Request) Times() string {
	var parts []string
	if r.TimeIn != "" {
		parts = append(parts, "in "+r.TimeIn)
	}
	if r.TimeOut != "" {
		parts = append(parts, "out "+r.TimeOut)
	}
	return strings.Join(parts, ", ")
}

type certificateLog struct {
	FormattedDate    string `json:"FormattedDate"`
	FormattedTime    string `json:"FormattedTime"`
	Type             string `json:"Type"`
	CertificateLogID int    `json:"CertificateLogID"`
}

type certificate struct {
	CertificateOfAttendanceID int              `json:"CertificateOfAttendanceID"`
	CertificateTypeID         string           `json:"CertificateTypeID"`
	CertificateTypeOthers     string           `json:"CertificateTypeOthers"`
	Remarks                   string           `json:"Remarks"`
	Status                    *string          `json:"Status"`
	EmployeeID                json.Number      `json:"EmployeeID"`
	FormattedCertificateLogs  []certificateLog `json:"FormattedCertificateLogs"`
}

// Payload is the body of both the validate and the submit call.
type Payload struct {
	CertificateOfAttendance certificate `json:"certificateOfAttendance"`
	ValidationToken         string      `json:"validationToken,omitempty"`
}

// certificateTypeOthers is the portal's "Others" category, which takes a
// free-text type description.
const certificateTypeOthers = "0"

func (r *Request) Payload(employeeID string) Payload {
	var logs []certificateLog
	if r.TimeIn != "" {
		logs = append(logs, certificateLog{FormattedDate: r.Date, FormattedTime: r.TimeIn, Type: "In"})
	}
	if r.TimeOut != "" {
		logs = append(logs, certificateLog{FormattedDate: r.Date, FormattedTime: r.TimeOut, Type: "Out"})
	}

	return Payload{
		CertificateOfAttendance: certificate{
			CertificateTypeID:        certificateTypeOthers,
			CertificateTypeOthers:    r.TypeDescription,
			Remarks:                  r.Reason,
			EmployeeID:               json.Number(employeeID),
			FormattedCertificateLogs: logs,
		},
	}
}
