package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marcogenualdo/hrhub-coa/internal/apperr"
	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/portal/portaltest"
)

func writeConfig(t *testing.T, cfg config.Config) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func fakeConfig(t *testing.T, fake *portaltest.Portal) config.Config {
	t.Helper()
	cfg := fake.Config()
	cfg.Session.Store = "file"
	cfg.Session.Path = filepath.Join(t.TempDir(), "session.json")
	cfg.Logging.Output = filepath.Join(t.TempDir(), "hrhub.log")
	cfg.Logging.Level = "debug"
	return cfg
}

func TestRun_LoginThenApply(t *testing.T) {
	fake := portaltest.New(t)
	cfg := fakeConfig(t, fake)
	path := writeConfig(t, cfg)
	ctx := context.Background()

	require.NoError(t, run(ctx, path, []string{"login"}))
	assert.Equal(t, 1, fake.Stats().LoginPosts)
	assert.FileExists(t, cfg.Session.Path)

	require.NoError(t, run(ctx, path, []string{"apply", "-date", "2025-07-20", "-in", "09:00", "-out", "18:00"}))
	stats := fake.Stats()
	assert.Equal(t, 1, stats.LoginPosts, "apply reuses the stored session")
	assert.Equal(t, 1, stats.SubmitCalls)

	logData, err := os.ReadFile(cfg.Logging.Output)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "coa application submitted")
	assert.NotContains(t, string(logData), portaltest.Password)
}

func TestRun_ClockOut(t *testing.T) {
	fake := portaltest.New(t)
	path := writeConfig(t, fakeConfig(t, fake))

	require.NoError(t, run(context.Background(), path, []string{"clock-out", "-date", "2025-07-20", "-time", "18:00"}))
	assert.Equal(t, 1, fake.Stats().SubmitCalls)
}

func TestRun_Errors(t *testing.T) {
	fake := portaltest.New(t)
	cfg := fakeConfig(t, fake)
	path := writeConfig(t, cfg)
	ctx := context.Background()

	err := run(ctx, path, []string{"apply", "-date", "2025-07-20"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	err = run(ctx, path, []string{"dance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	err = run(ctx, filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")

	cfg.Credentials.Password = "wrong"
	err = run(ctx, writeConfig(t, cfg), []string{"login"})
	require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	assert.Equal(t, "the identity provider refused the username or password", describe(err))
}

func TestSetupLogger(t *testing.T) {
	logger, closer, err := setupLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	path := filepath.Join(t.TempDir(), "out.log")
	logger, closer, err = setupLogger(config.LoggingConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	logger.Info("hello", "k", "v")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte(`"msg":"hello"`)))
}

func TestApp_LoginShowsDashboard(t *testing.T) {
	fake := portaltest.New(t)
	ctx := context.Background()

	a, err := newApp(ctx, fakeConfig(t, fake), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.close()

	var out bytes.Buffer
	require.NoError(t, a.login(ctx, nil, &out))
	assert.Contains(t, out.String(), "Logged in to")
	assert.Contains(t, out.String(), "07/19/2025  IN   09:01")
	assert.Contains(t, out.String(), "Vacation Leave: 7.5")
	assert.Equal(t, 1, fake.Stats().LoginPosts)
}

func TestRun_BadFlagsAreValidationErrors(t *testing.T) {
	fake := portaltest.New(t)
	path := writeConfig(t, fakeConfig(t, fake))

	err := run(context.Background(), path, []string{"apply", "-bogus"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, describe(err), "invalid apply flags")
}
