package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 18890 {
		t.Fatalf("port = %d, want default", cfg.Gateway.Port)
	}
	if !cfg.Refresh.AutoRefresh {
		t.Fatal("auto refresh should default on")
	}
}

func TestLoadJSON5WithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsdesk.json")
	body := `{
		// store lives on the staging box
		store: { base_url: "http://staging:9000" },
		refresh: { list_interval_sec: 11, auto_refresh: true },
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.BaseURL != "http://staging:9000" {
		t.Fatalf("base url = %q", cfg.Store.BaseURL)
	}
	if cfg.Refresh.ListIntervalSec != 11 {
		t.Fatalf("list interval = %d, want 11", cfg.Refresh.ListIntervalSec)
	}
	// Untouched sections keep defaults.
	if cfg.Gateway.MaxMessageChars != 32000 {
		t.Fatalf("max message chars = %d", cfg.Gateway.MaxMessageChars)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsdesk.json")
	if err := os.WriteFile(path, []byte(`{store: {base_url: "http://file"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPSDESK_STORE_URL", "http://env")
	t.Setenv("OPSDESK_PORT", "4242")
	t.Setenv("OPSDESK_TELEMETRY_ENABLED", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.BaseURL != "http://env" {
		t.Fatalf("base url = %q, want env value", cfg.Store.BaseURL)
	}
	if cfg.Gateway.Port != 4242 {
		t.Fatalf("port = %d, want 4242", cfg.Gateway.Port)
	}
	if !cfg.Telemetry.Enabled {
		t.Fatal("telemetry should be enabled via env")
	}
}

func TestBadPortEnvIgnored(t *testing.T) {
	t.Setenv("OPSDESK_PORT", "not-a-port")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 18890 {
		t.Fatalf("port = %d, want default", cfg.Gateway.Port)
	}
}
