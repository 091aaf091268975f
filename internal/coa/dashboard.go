package coa

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/auth"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

const recentAttendanceLimit = 5

// AttendanceEntry is one IN or OUT row of the dashboard attendance table.
type AttendanceEntry struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Dashboard is what the landing page tells about the account: the most
// recent attendance logs and the leave balances.
type Dashboard struct {
	RecentAttendance []AttendanceEntry `json:"recent_attendance"`
	LeaveCredits     map[string]string `json:"leave_credits"`
}

// ParseDashboard reads table rows from the landing page. A row whose second
// cell is IN or OUT is an attendance log; a row whose second cell is a
// number is a leave balance.
func ParseDashboard(doc *goquery.Document) *Dashboard {
	d := &Dashboard{LeaveCredits: make(map[string]string)}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(td.Text()))
		})

		if len(cells) >= 3 && cells[0] != "" && cells[2] != "" && (cells[1] == "IN" || cells[1] == "OUT") {
			if len(d.RecentAttendance) < recentAttendanceLimit {
				d.RecentAttendance = append(d.RecentAttendance, AttendanceEntry{Date: cells[0], Status: cells[1], Time: cells[2]})
			}
			return
		}

		if len(cells) >= 2 && cells[0] != "" && isBalance(cells[1]) {
			d.LeaveCredits[cells[0]] = cells[1]
		}
	})

	return d
}

// Summary renders the dashboard for tool and CLI output.
func (d *Dashboard) Summary() string {
	var b strings.Builder

	if len(d.RecentAttendance) == 0 {
		b.WriteString("Recent attendance: none found\n")
	} else {
		b.WriteString("Recent attendance:\n")
		for _, e := range d.RecentAttendance {
			fmt.Fprintf(&b, "  %s  %-3s  %s\n", e.Date, e.Status, e.Time)
		}
	}

	if len(d.LeaveCredits) == 0 {
		b.WriteString("Leave credits: none found")
		return b.String()
	}

	b.WriteString("Leave credits:")
	names := make([]string, 0, len(d.LeaveCredits))
	for name := range d.LeaveCredits {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, d.LeaveCredits[name])
	}
	return b.String()
}

// Dashboard fetches and parses the landing page with an authenticated
// session. The employee id is picked up on the way when still unknown.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var dashboard *Dashboard

	err := s.sessions.WithSession(ctx, auth.Credentials{}, func(ctx context.Context, st *session.State) error {
		b, err := s.client.Browser(st)
		if err != nil {
			return err
		}

		page, err := b.Get(ctx, s.client.Resolve(s.client.Config().LandingPath))
		if err != nil {
			return err
		}
		if !s.client.IsLanding(page) {
			st.Invalidate()
			return apperr.Newf(apperr.ErrAuthRejected, "portal did not serve the dashboard (status %d)", page.Status)
		}

		doc, err := page.Document()
		if err != nil {
			return err
		}

		if st.EmployeeIDValue() == "" {
			if id, ok := ExtractEmployeeID(string(page.Body), doc); ok {
				st.SetEmployeeID(id)
			}
		}

		dashboard = ParseDashboard(doc)
		s.logger.Info("dashboard read",
			"attendance_rows", len(dashboard.RecentAttendance),
			"leave_types", len(dashboard.LeaveCredits),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return dashboard, nil
}

// isBalance reports whether s is digits with optional dots, like 7.5.
func isBalance(s string) bool {
	digits := strings.ReplaceAll(s, ".", "")
	return digits != "" && strings.Trim(digits, "0123456789") == ""
}
