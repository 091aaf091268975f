package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://engie.hrhub.ph/", cfg.Portal.BaseURL)
	assert.Equal(t, "EmployeeDashboard.aspx", cfg.Portal.LandingPath)
	assert.Equal(t, cfg.Portal.LandingPath, cfg.Portal.ProbePath)
	assert.Equal(t, 30*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, "form#kc-form-login", cfg.SSO.LoginFormSelector)
	assert.Equal(t, "forgot to in/out", cfg.COA.Reason)
	assert.Equal(t, "Clock in via MCP", cfg.COA.ClockInReason)
	assert.Equal(t, "file", cfg.Session.Store)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
portal:
  base_url: https://portal.example.com/
  timeout: 5s
  auth_cookie: .AspNet.Cookies
sso:
  base_url: https://sso.example.com/
  required_fields: [session_code]
session:
  store: redis
  redis:
    address: localhost:6379
server:
  transport: http
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://portal.example.com/", cfg.Portal.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, ".AspNet.Cookies", cfg.Portal.AuthCookie)
	assert.Equal(t, []string{"session_code"}, cfg.SSO.RequiredFields)
	require.NotNil(t, cfg.Session.Redis)
	assert.Equal(t, 10, cfg.Session.Redis.PoolSize)
	assert.Equal(t, 3, cfg.Session.Redis.MaxRetries)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("HRHUB_USERNAME", "jdoe")
	t.Setenv("HRHUB_PASSWORD", "s3cret")
	t.Setenv("REDIS_PASSWORD", "redispw")

	path := writeConfig(t, `
credentials:
  username: from-file
  password: from-file
session:
  store: redis
  redis:
    address: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", cfg.Credentials.Username)
	assert.Equal(t, "s3cret", cfg.Credentials.Password)
	assert.Equal(t, "redispw", cfg.Session.Redis.Password)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	_, err = Load(writeConfig(t, "portal: [not, a, map]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "portal url without scheme",
			mutate:  func(c *Config) { c.Portal.BaseURL = "engie.hrhub.ph" },
			wantErr: "portal config",
		},
		{
			name:    "timeout too small",
			mutate:  func(c *Config) { c.Portal.Timeout = time.Millisecond },
			wantErr: "timeout must be at least 1 second",
		},
		{
			name:    "sso on portal host",
			mutate:  func(c *Config) { c.SSO.BaseURL = "https://engie.hrhub.ph/auth" },
			wantErr: "must differ from the portal host",
		},
		{
			name:    "bad selector",
			mutate:  func(c *Config) { c.SSO.ErrorSelector = "span[" },
			wantErr: "invalid error_selector",
		},
		{
			name:    "oidc without issuer",
			mutate:  func(c *Config) { c.SSO.OIDC = &OIDCConfig{ClientID: "hrhub"} },
			wantErr: "oidc issuer is required",
		},
		{
			name:    "unknown location",
			mutate:  func(c *Config) { c.COA.Location = "Mars/Olympus" },
			wantErr: "invalid location",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Session.Store = "sqlite" },
			wantErr: "invalid store",
		},
		{
			name:    "redis without address",
			mutate:  func(c *Config) { c.Session.Store = "redis"; c.Session.Redis = &RedisConfig{} },
			wantErr: "redis address is required",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Server.Transport = "sse" },
			wantErr: "invalid transport",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "invalid level",
		},
		{
			name:    "stdout logging with stdio transport",
			mutate:  func(c *Config) { c.Logging.Output = "stdout" },
			wantErr: "reserved for the stdio transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
