package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/dmapctl/internal/backend"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

// ClientConfig is the terminal client file.
type ClientConfig struct {
	BaseURL                 string `toml:"base_url"`
	RequestTimeout          string `toml:"request_timeout"`
	DefaultProtocol         string `toml:"default_protocol"`
	ClearScreenAfterCommand bool   `toml:"clear_screen_after_command"`
}

// WebConfig is the web console file.
type WebConfig struct {
	ID             string   `toml:"id"`
	BaseURL        string   `toml:"base_url"`
	RequestTimeout string   `toml:"request_timeout"`
	ListenAddr     string   `toml:"listen_addr"`
	CorsOrigins    []string `toml:"cors_origins"`
	MetricsEnabled bool     `toml:"metrics_enabled"`
	WaitTimeout    string   `toml:"wait_timeout"`
	SessionIdle    string   `toml:"session_idle_timeout"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:         backend.DefaultBaseURL,
		RequestTimeout:  backend.DefaultRequestTimeout.String(),
		DefaultProtocol: string(protocol.KeyRapi),
	}
}

func DefaultWebConfig() WebConfig {
	return WebConfig{
		ID:             "dmapweb",
		BaseURL:        backend.DefaultBaseURL,
		RequestTimeout: backend.DefaultRequestTimeout.String(),
		ListenAddr:     "127.0.0.1:8080",
		CorsOrigins:    []string{"http://localhost:3000"},
		MetricsEnabled: true,
		WaitTimeout:    "15s",
		SessionIdle:    "30m",
	}
}

// LoadClientConfig decodes path over the client defaults and validates the result.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// LoadWebConfig decodes path over the web defaults and validates the result.
func LoadWebConfig(path string) (WebConfig, error) {
	cfg := DefaultWebConfig()
	if err := loadToml(path, &cfg); err != nil {
		return WebConfig{}, err
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = "dmapweb"
	}
	if err := ValidateWebConfig(cfg); err != nil {
		return WebConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if err := validateBackend(cfg.BaseURL, cfg.RequestTimeout); err != nil {
		return err
	}
	if p := strings.TrimSpace(cfg.DefaultProtocol); p != "" {
		if _, err := protocol.Lookup(p); err != nil {
			return fmt.Errorf("%w: default_protocol %q is not a known protocol", ErrInvalidConfig, p)
		}
	}
	return nil
}

func ValidateWebConfig(cfg WebConfig) error {
	if err := validateBackend(cfg.BaseURL, cfg.RequestTimeout); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalidConfig)
	}
	for i, origin := range cfg.CorsOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("%w: cors_origins[%d] is empty", ErrInvalidConfig, i)
		}
	}
	if _, err := parseDuration("wait_timeout", cfg.WaitTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("session_idle_timeout", cfg.SessionIdle); err != nil {
		return err
	}
	return nil
}

func validateBackend(baseURL, timeout string) error {
	if strings.TrimSpace(baseURL) == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalidConfig)
	}
	if err := (backend.Config{BaseURL: baseURL}).Validate(); err != nil {
		return fmt.Errorf("%w: base_url: %v", ErrInvalidConfig, err)
	}
	if _, err := parseDuration("request_timeout", timeout); err != nil {
		return err
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, key)
	}
	return d, nil
}
