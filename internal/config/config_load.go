package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("OPSDESK_STORE_URL", &c.Store.BaseURL)
	envStr("OPSDESK_STORE_TOKEN", &c.Store.Token)
	envStr("OPSDESK_BRIDGE_API_URL", &c.Bridge.APIURL)
	envStr("OPSDESK_BRIDGE_WS_URL", &c.Bridge.WSURL)
	envStr("OPSDESK_BRIDGE_TOKEN", &c.Bridge.Token)
	envStr("OPSDESK_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("OPSDESK_HOST", &c.Gateway.Host)
	if v := os.Getenv("OPSDESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	envStr("OPSDESK_LOG_LEVEL", &c.Log.Level)
	envStr("OPSDESK_LOG_FORMAT", &c.Log.Format)

	// Telemetry
	envStr("OPSDESK_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("OPSDESK_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("OPSDESK_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("OPSDESK_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OPSDESK_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}
