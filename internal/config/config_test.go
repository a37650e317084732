package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/punch/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileWritesTemplateOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, config.DefaultBaseURL+"/oauth/token", cfg.API.TokenURL)
	assert.Equal(t, config.DefaultPollInterval, cfg.PollInterval.Std())

	_, err = os.Stat(path)
	require.NoError(t, err, "template not written")

	// The template itself must load to the same values.
	again, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadFileWithComments(t *testing.T) {
	path := writeConfig(t, `// header
{
  "api": {
    // server
    "base_url": "https://hr.example.com/",
    "client_id": "mobile"
  },
  "user_id": "emp-1",
  "timezone": "Asia/Jakarta",
  "poll_interval": "1m",
  "log_level": "debug"
}
`)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://hr.example.com", cfg.API.BaseURL)
	assert.Equal(t, "https://hr.example.com/oauth/token", cfg.API.TokenURL)
	assert.Equal(t, "mobile", cfg.API.ClientID)
	assert.Equal(t, "emp-1", cfg.UserID)
	assert.Equal(t, time.Minute, cfg.PollInterval.Std())
	assert.Equal(t, config.DefaultSubmitTimeout, cfg.SubmitTimeout.Std())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"api": {"base_url": "https://file.example.com"}, "user_id": "from-file"}`)
	t.Setenv("PUNCH_BASE_URL", "https://env.example.com")
	t.Setenv("PUNCH_USER_ID", "from-env")
	t.Setenv("PUNCH_SUBMIT_TIMEOUT", "10s")
	t.Setenv("PUNCH_LOG_LEVEL", "INFO")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, "from-env", cfg.UserID)
	assert.Equal(t, 10*time.Second, cfg.SubmitTimeout.Std())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"api": `},
		{"bad duration", `{"poll_interval": "soon"}`},
		{"duration too short", `{"poll_interval": "10ms"}`},
		{"bad log level", `{"log_level": "loud"}`},
		{"bad url", `{"api": {"base_url": "not a url"}}`},
		{"bad timezone", `{"timezone": "Mars/Olympus"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLocationDefaultsToLocal(t *testing.T) {
	loc, err := config.Config{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
