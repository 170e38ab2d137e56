package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FETCH_BASE_URL", "http://fetch.local")
	t.Setenv("UNJUICED_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Sgp.CacheTTL != 90*time.Second {
		t.Errorf("sgp cache ttl = %v", cfg.Sgp.CacheTTL)
	}
	if cfg.Sgp.StreamTimeout != 15*time.Second {
		t.Errorf("sgp stream timeout = %v", cfg.Sgp.StreamTimeout)
	}
	if cfg.Stream.DebounceMS != 1000 {
		t.Errorf("debounce = %d", cfg.Stream.DebounceMS)
	}
}

func TestLoadRequiresFetchURL(t *testing.T) {
	t.Setenv("FETCH_BASE_URL", "")
	t.Setenv("UNJUICED_CONFIG", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without FETCH_BASE_URL")
	}
}

func TestLoadMalformedEnvKeepsDefaults(t *testing.T) {
	t.Setenv("FETCH_BASE_URL", "http://fetch.local")
	t.Setenv("UNJUICED_CONFIG", "")
	t.Setenv("SGP_CACHE_TTL_SEC", "ninety")
	t.Setenv("SGP_REQUESTS_PER_SECOND", "fast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Sgp.CacheTTL != 90*time.Second {
		t.Errorf("sgp cache ttl = %v, want default 90s", cfg.Sgp.CacheTTL)
	}
	if cfg.Sgp.RequestsPerSecond != 5 {
		t.Errorf("sgp rps = %g, want default 5", cfg.Sgp.RequestsPerSecond)
	}
}

func TestLoadTomlOverlayAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unjuiced.toml")
	content := `
[server]
port = "9100"

[fetch]
base_url = "http://fetch.from-file"

[sgp]
cache_ttl_sec = 30
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("UNJUICED_CONFIG", path)
	t.Setenv("FETCH_BASE_URL", "")
	t.Setenv("PORT", "9200") // env wins over file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "9200" {
		t.Errorf("port = %q, want env override", cfg.Server.Port)
	}
	if cfg.Fetch.BaseURL != "http://fetch.from-file" {
		t.Errorf("fetch url = %q, want file value", cfg.Fetch.BaseURL)
	}
	if cfg.Sgp.CacheTTL != 30*time.Second {
		t.Errorf("sgp cache ttl = %v, want file value", cfg.Sgp.CacheTTL)
	}
}
