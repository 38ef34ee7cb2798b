// Package config loads and validates the DAAP server's configuration: the
// JSON config file shape and Default/Load/Validate pattern follow the
// teacher's internal/config package, generalized from a file-serving
// token table to the DAAP config table spec.md §5 describes, with an
// optional .env overlay (github.com/joho/godotenv) and a hot-reload
// watcher (github.com/fsnotify/fsnotify) for the safe subset of settings
// that can change without restarting listeners.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Credential is one entry in the auth table; Username is ignored under
// auth_method=password.
type Credential struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Config controls the DAAP server's behavior.
type Config struct {
	// Listen address, e.g. ":3689" (the conventional DAAP port) or
	// "127.0.0.1:3689".
	Listen string `json:"listen"`

	// Name is the server name advertised in /server-info and over mDNS.
	Name string `json:"name"`

	// AuthMethod is one of "none", "password", "user_and_password".
	AuthMethod  string       `json:"auth_method"`
	Credentials []Credential `json:"credentials"`

	// MaxUsers caps concurrent sessions; 0 means unlimited.
	MaxUsers int `json:"max_users"`

	// SessionTimeoutSec is the idle expiry window, in seconds.
	SessionTimeoutSec int `json:"session_timeout_sec"`

	// Publish controls whether the server advertises itself over mDNS.
	Publish bool `json:"publish"`
	// MachineID is an opaque, optional identifier included in the mDNS
	// TXT record (e.g. to disambiguate restarts under the same name).
	MachineID string `json:"machine_id"`

	// LibraryPath is the root directory the bundled filesystem library
	// adapter scans for audio files.
	LibraryPath string `json:"library_path"`

	// LibraryBackend selects which library.Adapter server.New constructs:
	// "fs" (default) scans LibraryPath directly; "mpd" sources tracks from
	// a running MPD daemon via MPDNetwork/MPDAddress/MPDPassword instead.
	LibraryBackend string `json:"library_backend"`

	// MPDNetwork/MPDAddress/MPDPassword configure the MPD connection used
	// when LibraryBackend is "mpd". MPDNetwork is almost always "tcp".
	MPDNetwork  string `json:"mpd_network"`
	MPDAddress  string `json:"mpd_address"`
	MPDPassword string `json:"mpd_password"`

	// --- Ambient stack ---

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// EnvFile, if set, is loaded with godotenv and overlays matching
	// environment variables (DAAP_LISTEN, DAAP_NAME, ...) onto the parsed
	// config before Validate runs.
	EnvFile string `json:"env_file"`

	// ConfigReloadEnabled watches the config file for changes and, without
	// restarting the listener, applies auth_method and credentials to
	// /login checks and session_timeout_sec to the timeout /server-info
	// reports. A reload does not change max_users, publish, or the idle
	// expiry window of the session manager.
	ConfigReloadEnabled bool `json:"config_reload_enabled"`

	// ConnectionRateLimitPerSec/ConnectionBurst configure the per-remote-IP
	// token bucket httpio.Server uses to throttle new connections. 0
	// disables throttling.
	ConnectionRateLimitPerSec float64 `json:"connection_rate_limit_per_sec"`
	ConnectionBurst           int     `json:"connection_burst"`
}

func Default() Config {
	return Config{
		Listen:                    ":3689",
		Name:                      "DAAP Server",
		AuthMethod:                "none",
		Credentials:               nil,
		MaxUsers:                  0,
		SessionTimeoutSec:         1800,
		Publish:                   true,
		MachineID:                 "",
		LibraryPath:               "./music",
		LibraryBackend:            "fs",
		MPDNetwork:                "tcp",
		MPDAddress:                "",
		MPDPassword:               "",
		LogLevel:                  "info",
		LogFile:                   "",
		EnvFile:                   "",
		ConfigReloadEnabled:       false,
		ConnectionRateLimitPerSec: 0,
		ConnectionBurst:           0,
	}
}

// SessionTimeout returns SessionTimeoutSec as a time.Duration.
func (c Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if cfg.EnvFile != "" {
		if err := cfg.applyEnvOverlay(); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverlay loads EnvFile via godotenv and overlays a fixed set of
// DAAP_* variables onto the config, the same .env-then-flags-win pattern
// the teacher's surrounding stack uses for local development overrides.
func (c *Config) applyEnvOverlay() error {
	vars, err := godotenv.Read(c.EnvFile)
	if err != nil {
		return fmt.Errorf("config: reading env_file: %w", err)
	}
	if v, ok := vars["DAAP_LISTEN"]; ok && v != "" {
		c.Listen = v
	}
	if v, ok := vars["DAAP_NAME"]; ok && v != "" {
		c.Name = v
	}
	if v, ok := vars["DAAP_AUTH_METHOD"]; ok && v != "" {
		c.AuthMethod = v
	}
	if v, ok := vars["DAAP_LIBRARY_PATH"]; ok && v != "" {
		c.LibraryPath = v
	}
	if v, ok := vars["DAAP_LOG_LEVEL"]; ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = ":3689"
	}
	if c.Name == "" {
		c.Name = "DAAP Server"
	}
	switch c.AuthMethod {
	case "", "none":
		c.AuthMethod = "none"
	case "password", "user_and_password":
		if len(c.Credentials) == 0 {
			return fmt.Errorf("config: auth_method %q requires at least one credential", c.AuthMethod)
		}
		if c.AuthMethod == "user_and_password" {
			for _, cr := range c.Credentials {
				if strings.TrimSpace(cr.Username) == "" {
					return fmt.Errorf("config: auth_method user_and_password requires a username on every credential")
				}
			}
		}
	default:
		return fmt.Errorf("config: unknown auth_method %q", c.AuthMethod)
	}
	if c.MaxUsers < 0 {
		return fmt.Errorf("config: max_users must be >= 0")
	}
	if c.SessionTimeoutSec <= 0 {
		c.SessionTimeoutSec = 1800
	}
	if c.LibraryPath == "" {
		c.LibraryPath = "./music"
	}
	switch c.LibraryBackend {
	case "":
		c.LibraryBackend = "fs"
	case "fs":
	case "mpd":
		if c.MPDNetwork == "" {
			c.MPDNetwork = "tcp"
		}
		if c.MPDAddress == "" {
			return fmt.Errorf("config: library_backend mpd requires mpd_address")
		}
	default:
		return fmt.Errorf("config: unknown library_backend %q", c.LibraryBackend)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConnectionRateLimitPerSec < 0 {
		c.ConnectionRateLimitPerSec = 0
	}
	if c.ConnectionBurst < 0 {
		c.ConnectionBurst = 0
	}
	return nil
}
