package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{"name": "My Library"})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":3689" {
		t.Fatalf("listen = %q, want default", cfg.Listen)
	}
	if cfg.SessionTimeoutSec != 1800 {
		t.Fatalf("session_timeout_sec = %d, want 1800", cfg.SessionTimeoutSec)
	}
	if cfg.AuthMethod != "none" {
		t.Fatalf("auth_method = %q, want none", cfg.AuthMethod)
	}
}

func TestValidateRejectsPasswordModeWithoutCredentials(t *testing.T) {
	cfg := Default()
	cfg.AuthMethod = "password"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for password auth with no credentials")
	}
}

func TestValidateRejectsUserAndPasswordWithoutUsername(t *testing.T) {
	cfg := Default()
	cfg.AuthMethod = "user_and_password"
	cfg.Credentials = []Credential{{Password: "hunter2"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing username under user_and_password")
	}
}

func TestValidateRejectsUnknownAuthMethod(t *testing.T) {
	cfg := Default()
	cfg.AuthMethod = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown auth_method")
	}
}

func TestValidateClampsNegativeRateLimitFields(t *testing.T) {
	cfg := Default()
	cfg.ConnectionRateLimitPerSec = -5
	cfg.ConnectionBurst = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ConnectionRateLimitPerSec != 0 || cfg.ConnectionBurst != 0 {
		t.Fatalf("negative fields not clamped: %+v", cfg)
	}
}

func TestEnvOverlayWinsOverFileValue(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("DAAP_NAME=Overridden\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	path := writeConfig(t, dir, map[string]any{
		"name":     "Original",
		"env_file": envPath,
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "Overridden" {
		t.Fatalf("name = %q, want Overridden", cfg.Name)
	}
}

func TestValidateRejectsMPDBackendWithoutAddress(t *testing.T) {
	cfg := Default()
	cfg.LibraryBackend = "mpd"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for mpd backend with no mpd_address")
	}
}

func TestValidateAcceptsMPDBackendWithAddressAndDefaultsNetwork(t *testing.T) {
	cfg := Default()
	cfg.LibraryBackend = "mpd"
	cfg.MPDAddress = "127.0.0.1:6600"
	cfg.MPDNetwork = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MPDNetwork != "tcp" {
		t.Fatalf("mpd_network = %q, want tcp default", cfg.MPDNetwork)
	}
}

func TestValidateRejectsUnknownLibraryBackend(t *testing.T) {
	cfg := Default()
	cfg.LibraryBackend = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown library_backend")
	}
}

func TestSessionTimeoutConvertsToDuration(t *testing.T) {
	cfg := Default()
	cfg.SessionTimeoutSec = 60
	if cfg.SessionTimeout().Seconds() != 60 {
		t.Fatalf("SessionTimeout = %v, want 60s", cfg.SessionTimeout())
	}
}
