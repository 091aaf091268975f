package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/coa"
)

// COAService is the part of coa.Service the tools call.
type COAService interface {
	Apply(ctx context.Context, in coa.Input) (*coa.Result, error)
	ClockIn(ctx context.Context, date, at string) (*coa.Result, error)
	ClockOut(ctx context.Context, date, at string) (*coa.Result, error)
	Dashboard(ctx context.Context) (*coa.Dashboard, error)
}

type applyCOAInput struct {
	Date            string `json:"date" jsonschema:"Date to correct, YYYY-MM-DD"`
	TimeIn          string `json:"time_in,omitempty" jsonschema:"Clock-in time, HH:MM 24-hour. Omit to file only a clock-out"`
	TimeOut         string `json:"time_out,omitempty" jsonschema:"Clock-out time, HH:MM 24-hour. Omit to file only a clock-in"`
	Reason          string `json:"reason,omitempty" jsonschema:"Reason shown to the approver"`
	TypeDescription string `json:"type_description,omitempty" jsonschema:"Free-text certificate type"`
}

type clockInput struct {
	Time string `json:"time,omitempty" jsonschema:"Time, HH:MM 24-hour. Defaults to now"`
	Date string `json:"date,omitempty" jsonschema:"Date, YYYY-MM-DD. Defaults to today"`
}

// ToolHandler exposes COA operations as MCP tools.
type ToolHandler struct {
	service COAService
	logger  *slog.Logger
}

func NewToolHandler(service COAService, logger *slog.Logger) *ToolHandler {
	return &ToolHandler{service: service, logger: logger}
}

// Register adds apply_coa, clock_in, clock_out and user_info to server.
func (h *ToolHandler) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "apply_coa",
		Description: "File a Certificate of Attendance (time correction) with the HR portal. " +
			"At least one of time_in and time_out is required. Each call files a new application.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in applyCOAInput) (*mcp.CallToolResult, any, error) {
		result, err := h.service.Apply(ctx, coa.Input{
			Date:            in.Date,
			TimeIn:          in.TimeIn,
			TimeOut:         in.TimeOut,
			Reason:          in.Reason,
			TypeDescription: in.TypeDescription,
		})
		return h.render("apply_coa", result, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clock_in",
		Description: "Record a clock-in through a Certificate of Attendance. Date and time default to now.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in clockInput) (*mcp.CallToolResult, any, error) {
		result, err := h.service.ClockIn(ctx, in.Date, in.Time)
		return h.render("clock_in", result, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clock_out",
		Description: "Record a clock-out through a Certificate of Attendance. Date and time default to now.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in clockInput) (*mcp.CallToolResult, any, error) {
		result, err := h.service.ClockOut(ctx, in.Date, in.Time)
		return h.render("clock_out", result, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "user_info",
		Description: "Show the last attendance logs and the leave credit balances from the HR portal dashboard.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		dashboard, err := h.service.Dashboard(ctx)
		if err != nil {
			return h.failure("user_info", err), nil, nil
		}
		h.logger.Info("tool call succeeded", "tool", "user_info")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: dashboard.Summary()}},
		}, nil, nil
	})
}

// render turns an outcome into tool output. Failures are IsError results,
// never Go errors, so the client sees the message.
func (h *ToolHandler) render(tool string, result *coa.Result, err error) *mcp.CallToolResult {
	if err != nil {
		return h.failure(tool, err)
	}

	h.logger.Info("tool call succeeded", "tool", tool, "application_id", result.ApplicationID)

	var b strings.Builder
	b.WriteString(result.Message)
	if result.ApplicationID != "" {
		fmt.Fprintf(&b, "\nApplication ID: %s", result.ApplicationID)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}
}

func (h *ToolHandler) failure(tool string, err error) *mcp.CallToolResult {
	h.logger.Warn("tool call failed", "tool", tool, "error", err)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + apperr.Describe(err)}},
		IsError: true,
	}
}
