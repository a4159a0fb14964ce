package config

import (
	"strings"

	"github.com/danmuck/dmapctl/internal/backend"
	"github.com/danmuck/dmapctl/internal/console"
)

// Backend converts the client file into a backend client config.
func (c ClientConfig) Backend() (backend.Config, error) {
	timeout, err := parseDuration("request_timeout", c.RequestTimeout)
	if err != nil {
		return backend.Config{}, err
	}
	return backend.Config{BaseURL: strings.TrimSpace(c.BaseURL), RequestTimeout: timeout}.WithDefaults(), nil
}

// Backend converts the web file into a backend client config.
func (w WebConfig) Backend() (backend.Config, error) {
	return ClientConfig{BaseURL: w.BaseURL, RequestTimeout: w.RequestTimeout}.Backend()
}

// Console converts the web file into a console server config.
func (w WebConfig) Console() (console.Config, error) {
	wait, err := parseDuration("wait_timeout", w.WaitTimeout)
	if err != nil {
		return console.Config{}, err
	}
	idle, err := parseDuration("session_idle_timeout", w.SessionIdle)
	if err != nil {
		return console.Config{}, err
	}
	return console.Config{
		ID:             strings.TrimSpace(w.ID),
		Addr:           strings.TrimSpace(w.ListenAddr),
		CORSOrigins:    w.CorsOrigins,
		MetricsEnabled: w.MetricsEnabled,
		WaitTimeout:    wait,
		SessionIdle:    idle,
	}.WithDefaults(), nil
}
