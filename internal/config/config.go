package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tiliavir/punch/internal/validate"
)

// Config is the root configuration for punch, stored in ~/.punch/config.json.
// The file supports single-line // comments for documentation purposes.
type Config struct {
	API APIConfig `json:"api"`
	// UserID overrides the user id read from the access token.
	UserID string `json:"user_id"`
	// Timezone is the IANA timezone that decides where a day begins. Empty = local.
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
	// PollInterval is how often today's record is refetched while waiting.
	PollInterval Duration `json:"poll_interval" validate:"min=1000000000"`
	// SubmitTimeout bounds a single OTP verification.
	SubmitTimeout Duration `json:"submit_timeout" validate:"min=1000000000"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`
}

// APIConfig holds the attendance server settings.
type APIConfig struct {
	// BaseURL is the server root; the API lives under /api/v1/attendance.
	BaseURL string `json:"base_url" validate:"required,url"`
	// TokenURL is the OAuth2 token endpoint used by punch login.
	TokenURL string `json:"token_url" validate:"required,url"`
	// ClientID is the OAuth2 client id of the CLI.
	ClientID string `json:"client_id" validate:"required"`
}

// Duration is a time.Duration written as a string ("45s") in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"45s\": %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

const (
	DefaultBaseURL       = "http://localhost:8080"
	DefaultTokenPath     = "/oauth/token"
	DefaultClientID      = "punch-cli"
	DefaultPollInterval  = 45 * time.Second
	DefaultSubmitTimeout = 30 * time.Second
	DefaultLogLevel      = "warn"
)

// defaultConfig returns a Config pre-filled with sensible defaults.
func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:  DefaultBaseURL,
			TokenURL: DefaultBaseURL + DefaultTokenPath,
			ClientID: DefaultClientID,
		},
		PollInterval:  Duration(DefaultPollInterval),
		SubmitTimeout: Duration(DefaultSubmitTimeout),
		LogLevel:      DefaultLogLevel,
	}
}

// configTemplate is the annotated config written on first run.
// Lines whose trimmed content starts with // are stripped before JSON parsing,
// allowing human-readable documentation inside the file.
const configTemplate = `// punch configuration – ~/.punch/config.json
//
// Every setting can also be given as an environment variable (PUNCH_BASE_URL,
// PUNCH_TOKEN_URL, PUNCH_CLIENT_ID, PUNCH_USER_ID, PUNCH_TIMEZONE,
// PUNCH_POLL_INTERVAL, PUNCH_SUBMIT_TIMEOUT, PUNCH_LOG_LEVEL) or in a .env
// file in the working directory. Environment values win over this file.
{
  // ── Attendance server ────────────────────────────────────────────────────
  "api": {
    // Root URL of the attendance server.
    "base_url": "http://localhost:8080",

    // OAuth2 token endpoint used by: punch login
    // Leave empty to use <base_url>/oauth/token.
    "token_url": "",

    // OAuth2 client id of this CLI.
    "client_id": "punch-cli"
  },

  // Your user id. Leave empty to read it from the access token.
  "user_id": "",

  // IANA timezone that decides when a new attendance day starts,
  // e.g. "Asia/Jakarta". Leave empty to use the system timezone.
  "timezone": "",

  // How often today's record is refetched while punch waits for input.
  "poll_interval": "45s",

  // Upper bound for a single OTP verification request.
  "submit_timeout": "30s",

  // Log level on stderr: debug, info, warn or error.
  "log_level": "warn"
}
`

// configFilePath returns the path to ~/.punch/config.json.
func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".punch", "config.json"), nil
}

// stripLineComments removes lines whose leading non-whitespace content starts
// with //. Only full-line comments are handled; inline comments are not stripped.
func stripLineComments(data []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("//")) {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out
}

// Load reads ~/.punch/config.json, creating it with annotated defaults on
// first run, then applies .env and PUNCH_* environment overrides.
func Load() (Config, error) {
	path, err := configFilePath()
	if err != nil {
		return defaultConfig(), err
	}
	// A missing .env is fine.
	_ = godotenv.Load()
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file is created from the
// annotated template.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run: write the annotated template so users can discover options.
		if writeErr := writeDefault(path); writeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
		}
	case err != nil:
		return defaultConfig(), fmt.Errorf("reading config file %s: %w", path, err)
	default:
		cleaned := stripLineComments(data)
		cfg = Config{}
		if err := json.Unmarshal(cleaned, &cfg); err != nil {
			return defaultConfig(), fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
		}
	}

	applyEnv(&cfg)
	fillDefaults(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// applyEnv overrides file values with PUNCH_* environment variables.
func applyEnv(cfg *Config) {
	cfg.API.BaseURL = getEnv("PUNCH_BASE_URL", cfg.API.BaseURL)
	cfg.API.TokenURL = getEnv("PUNCH_TOKEN_URL", cfg.API.TokenURL)
	cfg.API.ClientID = getEnv("PUNCH_CLIENT_ID", cfg.API.ClientID)
	cfg.UserID = getEnv("PUNCH_USER_ID", cfg.UserID)
	cfg.Timezone = getEnv("PUNCH_TIMEZONE", cfg.Timezone)
	cfg.LogLevel = strings.ToLower(getEnv("PUNCH_LOG_LEVEL", cfg.LogLevel))
	for key, target := range map[string]*Duration{
		"PUNCH_POLL_INTERVAL":  &cfg.PollInterval,
		"PUNCH_SUBMIT_TIMEOUT": &cfg.SubmitTimeout,
	} {
		if v := getEnv(key, ""); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*target = Duration(d)
			} else {
				fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: %v\n", key, v, err)
			}
		}
	}
}

// fillDefaults fills zero-value fields with built-in defaults so callers
// always get a usable Config even if the user only partially fills in the file.
func fillDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	if cfg.API.TokenURL == "" {
		cfg.API.TokenURL = cfg.API.BaseURL + DefaultTokenPath
	}
	if cfg.API.ClientID == "" {
		cfg.API.ClientID = DefaultClientID
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(DefaultPollInterval)
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = Duration(DefaultSubmitTimeout)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Location resolves Timezone; empty means the system zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// writeDefault creates the config directory and writes the annotated default
// config template.
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
