package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

func (c *Config) Validate() error {
	if err := c.validatePortal(); err != nil {
		return fmt.Errorf("portal config: %w", err)
	}

	if err := c.validateSSO(); err != nil {
		return fmt.Errorf("sso config: %w", err)
	}

	if err := c.validateCOA(); err != nil {
		return fmt.Errorf("coa config: %w", err)
	}

	if err := c.validateSession(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validatePortal() error {
	if err := validateAbsoluteURL(c.Portal.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	if c.Portal.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second")
	}

	return nil
}

func (c *Config) validateSSO() error {
	if err := validateAbsoluteURL(c.SSO.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	portal, _ := url.Parse(c.Portal.BaseURL)
	sso, _ := url.Parse(c.SSO.BaseURL)
	if strings.EqualFold(portal.Host, sso.Host) {
		return fmt.Errorf("base_url must differ from the portal host")
	}

	for name, sel := range map[string]string{
		"login_form_selector": c.SSO.LoginFormSelector,
		"relay_form_selector": c.SSO.RelayFormSelector,
		"error_selector":      c.SSO.ErrorSelector,
	} {
		if err := validateSelector(sel); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if c.SSO.OIDC != nil && c.SSO.OIDC.Issuer == "" {
		return fmt.Errorf("oidc issuer is required when oidc verification is configured")
	}

	return nil
}

func (c *Config) validateCOA() error {
	if c.COA.ValidatePath == "" || c.COA.SubmitPath == "" {
		return fmt.Errorf("validate_path and submit_path are required")
	}

	if _, err := time.LoadLocation(c.COA.Location); err != nil {
		return fmt.Errorf("invalid location: %w", err)
	}

	return nil
}

func (c *Config) validateSession() error {
	switch c.Session.Store {
	case "file":
		if c.Session.Path == "" {
			return fmt.Errorf("path is required when store is file")
		}
	case "memory":
	case "redis":
		if c.Session.Redis == nil {
			return fmt.Errorf("redis config is required when store is redis")
		}
		if c.Session.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("invalid store: %s (must be file, memory or redis)", c.Session.Store)
	}

	if c.Session.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}

	return nil
}

func (c *Config) validateServer() error {
	transport := strings.ToLower(c.Server.Transport)
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("invalid transport: %s (must be stdio or http)", c.Server.Transport)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" {
		return fmt.Errorf("invalid level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Logging.Format)
	}

	if strings.EqualFold(c.Logging.Output, "stdout") && strings.EqualFold(c.Server.Transport, "stdio") {
		return fmt.Errorf("output stdout is reserved for the stdio transport")
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func validateSelector(sel string) error {
	_, err := cascadia.ParseGroup(sel)
	return err
}
