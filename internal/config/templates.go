package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client", "dmapctl":
		return clientTemplate, nil
	case "web", "dmapweb":
		return webTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as kind and reports the first problem.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client", "dmapctl":
		_, err := LoadClientConfig(path)
		return err
	case "web", "dmapweb":
		_, err := LoadWebConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const clientTemplate = `# data concentrator REST base url
base_url = "http://127.0.0.1:8000"
request_timeout = "10s"
# rapi | mbtcp | mqtt
default_protocol = "rapi"
clear_screen_after_command = false
`

const webTemplate = `id = "dmapweb"
base_url = "http://127.0.0.1:8000"
request_timeout = "10s"
listen_addr = "127.0.0.1:8080"
cors_origins = ["http://localhost:3000"]
metrics_enabled = true
# how long ?wait=1 requests block for a list or gate to settle
wait_timeout = "15s"
# create sessions untouched for this long are unmounted
session_idle_timeout = "30m"
`
