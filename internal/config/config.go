package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Portal      PortalConfig      `yaml:"portal"`
	SSO         SSOConfig         `yaml:"sso"`
	COA         COAConfig         `yaml:"coa"`
	EmployeeID  EmployeeIDConfig  `yaml:"employee_id"`
	Session     SessionConfig     `yaml:"session"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type PortalConfig struct {
	BaseURL       string            `yaml:"base_url"`
	EntryPath     string            `yaml:"entry_path"`
	LandingPath   string            `yaml:"landing_path"`
	LandingMarker string            `yaml:"landing_marker"`
	ProbePath     string            `yaml:"probe_path"`
	ProfilePath   string            `yaml:"profile_path"`
	AuthCookie    string            `yaml:"auth_cookie"`
	UserAgent     string            `yaml:"user_agent"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       time.Duration     `yaml:"timeout"`
}

type SSOConfig struct {
	BaseURL           string      `yaml:"base_url"`
	LoginFormSelector string      `yaml:"login_form_selector"`
	RelayFormSelector string      `yaml:"relay_form_selector"`
	ErrorSelector     string      `yaml:"error_selector"`
	UsernameField     string      `yaml:"username_field"`
	PasswordField     string      `yaml:"password_field"`
	RequiredFields    []string    `yaml:"required_fields"`
	OIDC              *OIDCConfig `yaml:"oidc,omitempty"`
}

// OIDCConfig enables verification of an id_token carried by the relay form.
type OIDCConfig struct {
	Issuer   string `yaml:"issuer"`
	ClientID string `yaml:"client_id"`
}

type COAConfig struct {
	PagePath        string `yaml:"page_path"`
	ValidatePath    string `yaml:"validate_path"`
	SubmitPath      string `yaml:"submit_path"`
	Reason          string `yaml:"reason"`
	TypeDescription string `yaml:"type_description"`
	ClockInReason   string `yaml:"clock_in_reason"`
	ClockInType     string `yaml:"clock_in_type"`
	ClockOutReason  string `yaml:"clock_out_reason"`
	ClockOutType    string `yaml:"clock_out_type"`
	Location        string `yaml:"location"`
}

type EmployeeIDConfig struct {
	Cookies []string `yaml:"cookies"`
	Claims  []string `yaml:"claims"`
}

type SessionConfig struct {
	Store string        `yaml:"store"`
	Path  string        `yaml:"path"`
	Key   string        `yaml:"key"`
	TTL   time.Duration `yaml:"ttl"`
	Redis *RedisConfig  `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	MaxRetries int    `yaml:"max_retries"`
}

type CredentialsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ServerConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// envOverrides are read with envdecode after the file is parsed. Unset
// variables leave the file values alone.
type envOverrides struct {
	Username      string `env:"HRHUB_USERNAME"`
	Password      string `env:"HRHUB_PASSWORD"`
	SessionPath   string `env:"HRHUB_SESSION_FILE"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	LogLevel      string `env:"HRHUB_LOG_LEVEL"`
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := cfg.loadSecretsFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	_ = cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() error {
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = "https://engie.hrhub.ph/"
	}
	if c.Portal.EntryPath == "" {
		c.Portal.EntryPath = "/"
	}
	if c.Portal.LandingPath == "" {
		c.Portal.LandingPath = "EmployeeDashboard.aspx"
	}
	if c.Portal.LandingMarker == "" {
		c.Portal.LandingMarker = "Employee Dashboard"
	}
	if c.Portal.ProbePath == "" {
		c.Portal.ProbePath = c.Portal.LandingPath
	}
	if c.Portal.UserAgent == "" {
		c.Portal.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.Portal.Timeout == 0 {
		c.Portal.Timeout = 30 * time.Second
	}

	if c.SSO.BaseURL == "" {
		c.SSO.BaseURL = "https://sso.sprout.ph/"
	}
	if c.SSO.LoginFormSelector == "" {
		c.SSO.LoginFormSelector = "form#kc-form-login"
	}
	if c.SSO.RelayFormSelector == "" {
		c.SSO.RelayFormSelector = "form[method=post], form[method=POST]"
	}
	if c.SSO.ErrorSelector == "" {
		c.SSO.ErrorSelector = "span.kc-feedback-text, #input-error"
	}
	if c.SSO.UsernameField == "" {
		c.SSO.UsernameField = "username"
	}
	if c.SSO.PasswordField == "" {
		c.SSO.PasswordField = "password"
	}

	if c.COA.PagePath == "" {
		c.COA.PagePath = "CertificateOfAttendance.aspx"
	}
	if c.COA.ValidatePath == "" {
		c.COA.ValidatePath = "CertificateOfAttendance.aspx/ValidateSameFiling"
	}
	if c.COA.SubmitPath == "" {
		c.COA.SubmitPath = "CertificateOfAttendance.aspx/Save"
	}
	if c.COA.Reason == "" {
		c.COA.Reason = "forgot to in/out"
	}
	if c.COA.TypeDescription == "" {
		c.COA.TypeDescription = "forgot to in/out"
	}
	if c.COA.ClockInReason == "" {
		c.COA.ClockInReason = "Clock in via MCP"
	}
	if c.COA.ClockInType == "" {
		c.COA.ClockInType = "Clock in"
	}
	if c.COA.ClockOutReason == "" {
		c.COA.ClockOutReason = "Clock out via MCP"
	}
	if c.COA.ClockOutType == "" {
		c.COA.ClockOutType = "Clock out"
	}
	if c.COA.Location == "" {
		c.COA.Location = "Local"
	}

	if len(c.EmployeeID.Claims) == 0 {
		c.EmployeeID.Claims = []string{"EmployeeID", "employee_id", "employeeId", "empId"}
	}

	if c.Session.Store == "" {
		c.Session.Store = "file"
	}
	if c.Session.Path == "" {
		c.Session.Path = "engie_session.json"
	}
	if c.Session.Key == "" {
		c.Session.Key = "hrhub:session"
	}
	if c.Session.Store == "redis" && c.Session.Redis != nil {
		if c.Session.Redis.PoolSize == 0 {
			c.Session.Redis.PoolSize = 10
		}
		if c.Session.Redis.MaxRetries == 0 {
			c.Session.Redis.MaxRetries = 3
		}
	}

	if c.Server.Name == "" {
		c.Server.Name = "engie-hr-hub"
	}
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}

	return nil
}

func (c *Config) loadSecretsFromEnv() error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return err
	}

	if env.Username != "" {
		c.Credentials.Username = env.Username
	}
	if env.Password != "" {
		c.Credentials.Password = env.Password
	}
	if env.SessionPath != "" {
		c.Session.Path = env.SessionPath
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}

	if c.Session.Store == "redis" && c.Session.Redis != nil && env.RedisPassword != "" {
		c.Session.Redis.Password = env.RedisPassword
	}

	return nil
}
