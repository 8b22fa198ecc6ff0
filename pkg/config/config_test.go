package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/chat", cfg.Backend.ChatPath)
	assert.Equal(t, "/api/logout", cfg.Backend.LogoutPath)
	assert.Equal(t, 500*time.Millisecond, cfg.UI.ReplyDelay.Std())
	assert.Equal(t, 3*time.Second, cfg.UI.LogoutDelay.Std())
	assert.Equal(t, "********", cfg.UI.Mask)
	assert.Contains(t, cfg.Backend.Kinds.Authentication, "autenticacao")
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Backend.BaseURL, cfg.Backend.BaseURL)
}

func TestLoadConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "backend": {"base_url": "https://bank.example", "message_field": "message", "timeout": "5s"},
  "ui": {"reply_delay": "0s", "mask": "####"}
}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://bank.example", cfg.Backend.BaseURL)
	assert.Equal(t, "message", cfg.Backend.MessageField)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout.Std())
	assert.Equal(t, time.Duration(0), cfg.UI.ReplyDelay.Std())
	assert.Equal(t, "####", cfg.UI.Mask)
	// untouched sections keep their defaults
	assert.Equal(t, "/api/logout", cfg.Backend.LogoutPath)
	assert.Equal(t, 3*time.Second, cfg.UI.LogoutDelay.Std())
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[backend]
base_url = "http://127.0.0.1:8080"
chat_path = "/chat"

[backend.kinds]
success = ["ok"]

[ui]
logout_delay = "1s"
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8080", cfg.Backend.BaseURL)
	assert.Equal(t, "/chat", cfg.Backend.ChatPath)
	assert.Equal(t, []string{"ok"}, cfg.Backend.Kinds.Success)
	assert.Equal(t, time.Second, cfg.UI.LogoutDelay.Std())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend": {"base_url": "http://file.example"}}`), 0644))

	t.Setenv("PICOCHAT_BACKEND_BASE_URL", "http://env.example")
	t.Setenv("PICOCHAT_UI_REPLY_DELAY", "250ms")
	t.Setenv("PICOCHAT_BACKEND_KINDS_ERROR", "erro,fail")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env.example", cfg.Backend.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.UI.ReplyDelay.Std())
	assert.Equal(t, []string{"erro", "fail"}, cfg.Backend.Kinds.Error)
}

func TestLoadConfig_InlineJSON(t *testing.T) {
	t.Setenv("PICOCHAT_CONFIG_JSON", `{"backend": {"base_url": "http://inline.example"}}`)

	cfg, err := LoadConfig("/does/not/matter.json")
	require.NoError(t, err)
	assert.Equal(t, "http://inline.example", cfg.Backend.BaseURL)
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ui": {"reply_delay": "soon"}}`), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Backend.BaseURL = "https://saved.example"
			cfg.UI.LogoutDelay = Duration(7 * time.Second)

			require.NoError(t, SaveConfig(path, cfg))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, "https://saved.example", loaded.Backend.BaseURL)
			assert.Equal(t, 7*time.Second, loaded.UI.LogoutDelay.Std())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "relative url", mutate: func(c *Config) { c.Backend.BaseURL = "/api" }},
		{name: "bad scheme", mutate: func(c *Config) { c.Backend.BaseURL = "ftp://bank.example" }},
		{name: "empty field", mutate: func(c *Config) { c.Backend.MessageField = " " }},
		{name: "negative delay", mutate: func(c *Config) { c.UI.ReplyDelay = Duration(-time.Second) }},
		{name: "negative timeout", mutate: func(c *Config) { c.Backend.Timeout = Duration(-time.Second) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home+"/x/y", expandHome("~/x/y"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "", expandHome(""))
}
