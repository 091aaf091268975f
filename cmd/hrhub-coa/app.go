package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/auth"
	"github.com/marcogenualdo/hrhub-coa/internal/auth/oidc"
	"github.com/marcogenualdo/hrhub-coa/internal/coa"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/handlers"
	"github.com/marcogenualdo/hrhub-coa/internal/portal"
	"github.com/marcogenualdo/hrhub-coa/internal/server"
	"github.com/marcogenualdo/hrhub-coa/internal/store"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   store.Store
	client  *portal.Client
	manager *auth.Manager
	service *coa.Service
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	client, err := portal.NewClient(cfg.Portal, cfg.SSO, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal client: %w", err)
	}

	st, err := store.New(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	logger.Info("session store initialized", "type", st.Type())

	var verifier auth.RelayVerifier
	if cfg.SSO.OIDC != nil {
		v, err := oidc.NewVerifier(ctx, *cfg.SSO.OIDC, client.HTTPClient())
		if err != nil {
			st.Close()
			return nil, err
		}
		verifier = v
		logger.Info("relay id_token verification enabled", "issuer", v.Issuer())
	}

	engine := auth.NewEngine(client, cfg.SSO, verifier, logger)
	manager := auth.NewManager(st, client, engine, auth.CredentialsFromConfig(cfg.Credentials), cfg.Portal.AuthCookie, logger)
	resolver := coa.NewResolver(client, cfg.EmployeeID, logger)

	service, err := coa.NewService(manager, client, resolver, cfg.COA, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		client:  client,
		manager: manager,
		service: service,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing session store", "error", err)
	}
}

// serve runs the MCP server until ctx is cancelled. The server closes the
// store on the way out.
func (a *app) serve(ctx context.Context) error {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: a.cfg.Server.Name, Version: version}, nil)
	handlers.NewToolHandler(a.service, a.logger).Register(mcpServer)

	health := handlers.NewHealthHandler(a.cfg, a.store, a.manager, a.logger)
	return server.New(a.cfg, mcpServer, health, a.store, a.logger).Run(ctx)
}

func (a *app) login(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fresh := fs.Bool("fresh", false, "discard the stored session before logging in")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if *fresh {
		if err := a.store.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete stored session: %w", err)
		}
	}

	if _, err := a.manager.EnsureAuthenticated(ctx, auth.Credentials{}); err != nil {
		return err
	}

	status := a.manager.Status()
	if status.LastLogin.IsZero() {
		fmt.Fprintf(out, "Stored session is still valid (%s store)\n", status.Store)
	} else {
		fmt.Fprintf(out, "Logged in to %s, session saved (%s store)\n", apperr.RedactURL(a.client.BaseURL()), status.Store)
	}

	dashboard, err := a.service.Dashboard(ctx)
	if err != nil {
		a.logger.Warn("could not read dashboard after login", "error", err)
		return nil
	}
	fmt.Fprintln(out, dashboard.Summary())
	return nil
}

func (a *app) dashboard(ctx context.Context, out io.Writer) error {
	dashboard, err := a.service.Dashboard(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, dashboard.Summary())
	return nil
}

func (a *app) apply(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	date := fs.String("date", "", "date to correct, YYYY-MM-DD")
	timeIn := fs.String("in", "", "clock-in time, HH:MM")
	timeOut := fs.String("out", "", "clock-out time, HH:MM")
	reason := fs.String("reason", "", "reason shown to the approver")
	typeDesc := fs.String("type", "", "certificate type description")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	result, err := a.service.Apply(ctx, coa.Input{
		Date:            *date,
		TimeIn:          *timeIn,
		TimeOut:         *timeOut,
		Reason:          *reason,
		TypeDescription: *typeDesc,
	})
	if err != nil {
		return err
	}

	printResult(out, result)
	return nil
}

func (a *app) clock(ctx context.Context, command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	date := fs.String("date", "", "date, YYYY-MM-DD (default today)")
	at := fs.String("time", "", "time, HH:MM (default now)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	clock := a.service.ClockIn
	if command == "clock-out" {
		clock = a.service.ClockOut
	}

	result, err := clock(ctx, *date, *at)
	if err != nil {
		return err
	}

	printResult(out, result)
	return nil
}

func printResult(out io.Writer, result *coa.Result) {
	fmt.Fprintln(out, result.Message)
	if result.ApplicationID != "" {
		fmt.Fprintf(out, "Application ID: %s\n", result.ApplicationID)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return apperr.Wrapf(apperr.ErrValidation, err, "invalid %s flags", fs.Name())
	}
	return nil
}
