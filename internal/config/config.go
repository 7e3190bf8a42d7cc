package config

import "sync"

// Config is the root configuration for the OpsDesk engine.
type Config struct {
	Store     StoreConfig     `json:"store"`
	Bridge    BridgeConfig    `json:"bridge"`
	Gateway   GatewayConfig   `json:"gateway"`
	Refresh   RefreshConfig   `json:"refresh,omitempty"`
	Log       LogConfig       `json:"log,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// StoreConfig points at the conversation store's REST surface.
type StoreConfig struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// BridgeConfig points at the WhatsApp bridge.
type BridgeConfig struct {
	APIURL string `json:"api_url"`
	WSURL  string `json:"ws_url"`
	Token  string `json:"token,omitempty"`
}

// GatewayConfig configures the dashboard WebSocket/HTTP server.
type GatewayConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Token           string   `json:"token,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
	MaxMessageChars int      `json:"max_message_chars,omitempty"`
	RateLimitRPM    int      `json:"rate_limit_rpm,omitempty"`
}

// RefreshConfig tunes the background refresh cadences, in seconds.
// Hot-reloadable: a config file edit picks these up without restart.
type RefreshConfig struct {
	ListIntervalSec   int  `json:"list_interval_sec,omitempty"`
	ThreadIntervalSec int  `json:"thread_interval_sec,omitempty"`
	PageSize          int  `json:"page_size,omitempty"`
	AutoRefresh       bool `json:"auto_refresh"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text or json
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" or "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			BaseURL:    "http://127.0.0.1:8089",
			TimeoutSec: 15,
		},
		Bridge: BridgeConfig{
			APIURL: "http://127.0.0.1:8091",
			WSURL:  "ws://127.0.0.1:8091/push",
		},
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18890,
			MaxMessageChars: 32000,
			RateLimitRPM:    60,
		},
		Refresh: RefreshConfig{
			ListIntervalSec:   5,
			ThreadIntervalSec: 2,
			PageSize:          20,
			AutoRefresh:       true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "opsdesk",
		},
	}
}

// Snapshot returns a copy of the refresh section under the lock.
func (c *Config) Snapshot() RefreshConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Refresh
}

// SetRefresh replaces the refresh section under the lock.
func (c *Config) SetRefresh(r RefreshConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Refresh = r
}
