package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/dmapctl/internal/config"
)

const defaultConfigPath = "cmd/dmapctl/dmapctl.toml"

// clientFile is the persisted terminal client file.
type clientFile struct {
	BaseURL                 string `toml:"base_url"`
	RequestTimeout          string `toml:"request_timeout"`
	DefaultProtocol         string `toml:"default_protocol"`
	ClearScreenAfterCommand bool   `toml:"clear_screen_after_command"`
}

// loadClientConfig layers keys defined in path over the client defaults.
// A missing file is created empty.
func loadClientConfig(path string) (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if err := ensureFile(path); err != nil {
		return config.ClientConfig{}, err
	}

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.ClientConfig{}, fmt.Errorf("load dmapctl config: %w", err)
	}

	if meta.IsDefined("base_url") {
		if v := strings.TrimSpace(raw.BaseURL); v != "" {
			cfg.BaseURL = v
		}
	}
	if meta.IsDefined("request_timeout") {
		cfg.RequestTimeout = strings.TrimSpace(raw.RequestTimeout)
	}
	if meta.IsDefined("default_protocol") {
		cfg.DefaultProtocol = strings.TrimSpace(raw.DefaultProtocol)
	}
	if meta.IsDefined("clear_screen_after_command") {
		cfg.ClearScreenAfterCommand = raw.ClearScreenAfterCommand
	}

	if err := config.ValidateClientConfig(cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}

// saveClientConfig writes cfg to path.
func saveClientConfig(path string, cfg config.ClientConfig) error {
	raw := clientFile{
		BaseURL:                 cfg.BaseURL,
		RequestTimeout:          cfg.RequestTimeout,
		DefaultProtocol:         cfg.DefaultProtocol,
		ClearScreenAfterCommand: cfg.ClearScreenAfterCommand,
	}
	buf := strings.Builder{}
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}

// ensureFile creates a missing file and parent directory for config bootstrapping.
func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
