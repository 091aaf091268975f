package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
)

const (
	appName = "hrhub-coa"
	version = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (built-in defaults when empty)")
	configPathShort := flag.String("c", "", "path to configuration file (short)")
	showVersion := flag.Bool("version", false, "show version and exit")
	showHelp := flag.Bool("help", false, "show help and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		displayAppname(appName)
		fmt.Printf("%s v%s\n", appName, version)
		os.Exit(0)
	}

	if *showHelp {
		usage()
		os.Exit(0)
	}

	cfgPath := *configPath
	if *configPathShort != "" {
		cfgPath = *configPathShort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfgPath, flag.Args())
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "%s - Certificate of Attendance filing for the HR portal\n\n", appName)
	fmt.Fprintf(out, "Usage:\n  %s [-config path] [command] [command flags]\n\n", appName)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  serve       run the MCP server (default)")
	fmt.Fprintln(out, "  login       log in, store the session and show the dashboard")
	fmt.Fprintln(out, "  dashboard   show recent attendance and leave credits")
	fmt.Fprintln(out, "  apply       file a COA: -date YYYY-MM-DD [-in HH:MM] [-out HH:MM] [-reason text] [-type text]")
	fmt.Fprintln(out, "  clock-in    file a clock-in COA: [-date YYYY-MM-DD] [-time HH:MM]")
	fmt.Fprintln(out, "  clock-out   file a clock-out COA: [-date YYYY-MM-DD] [-time HH:MM]")
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

func run(ctx context.Context, configPath string, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog.Close()

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	logger.Info("starting "+appName, "version", version, "command", command)

	a, err := newApp(ctx, *cfg, logger)
	if err != nil {
		return err
	}

	switch command {
	case "serve":
		return a.serve(ctx)
	case "login":
		defer a.close()
		return a.login(ctx, args, os.Stdout)
	case "dashboard":
		defer a.close()
		return a.dashboard(ctx, os.Stdout)
	case "apply":
		defer a.close()
		return a.apply(ctx, args, os.Stdout)
	case "clock-in", "clock-out":
		defer a.close()
		return a.clock(ctx, command, args, os.Stdout)
	default:
		a.close()
		return fmt.Errorf("unknown command %q (see -help)", command)
	}
}

// describe renders classified errors the way tool results do.
func describe(err error) string {
	if apperr.Kind(err) != nil {
		return apperr.Describe(err)
	}
	return err.Error()
}

func setupLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closer, nil
}

func displayAppname(name string) {
	myFigure := figure.NewFigure(name, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
