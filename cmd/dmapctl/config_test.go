package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/dmapctl/internal/config"
	"github.com/danmuck/dmapctl/internal/testutil/testlog"
)

func TestLoadClientConfigCreatesMissingFileWithDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "nested", "dmapctl.toml")

	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg != config.DefaultClientConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
}

func TestLoadClientConfigOverridesDefinedKeysOnly(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "dmapctl.toml")
	body := "base_url = \"http://10.0.0.5:8000\"\nclear_screen_after_command = true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BaseURL != "http://10.0.0.5:8000" {
		t.Fatalf("unexpected base url: %q", cfg.BaseURL)
	}
	if !cfg.ClearScreenAfterCommand {
		t.Fatalf("expected clear screen enabled")
	}
	if cfg.DefaultProtocol != "rapi" {
		t.Fatalf("unexpected default protocol: %q", cfg.DefaultProtocol)
	}
	if cfg.RequestTimeout != "10s" {
		t.Fatalf("unexpected request timeout: %q", cfg.RequestTimeout)
	}
}

func TestSaveClientConfigRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "dmapctl.toml")
	want := config.ClientConfig{
		BaseURL:                 "http://127.0.0.1:9000",
		RequestTimeout:          "3s",
		DefaultProtocol:         "mbtcp",
		ClearScreenAfterCommand: true,
	}
	if err := saveClientConfig(path, want); err != nil {
		t.Fatalf("save config: %v", err)
	}
	got, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestLoadClientConfigRejectsUnknownProtocol(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "dmapctl.toml")
	if err := os.WriteFile(path, []byte("default_protocol = \"opcua\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadClientConfig(path); err == nil {
		t.Fatalf("expected unknown default protocol to fail validation")
	}
}
