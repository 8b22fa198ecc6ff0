package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Backend BackendConfig `json:"backend" toml:"backend"`
	UI      UIConfig      `json:"ui" toml:"ui"`
	Log     LogConfig     `json:"log" toml:"log"`
	mu      sync.RWMutex
}

type BackendConfig struct {
	BaseURL      string         `json:"base_url" toml:"base_url" env:"PICOCHAT_BACKEND_BASE_URL"`
	ChatPath     string         `json:"chat_path" toml:"chat_path" env:"PICOCHAT_BACKEND_CHAT_PATH"`
	LogoutPath   string         `json:"logout_path" toml:"logout_path" env:"PICOCHAT_BACKEND_LOGOUT_PATH"`
	MessageField string         `json:"message_field" toml:"message_field" env:"PICOCHAT_BACKEND_MESSAGE_FIELD"`
	Timeout      Duration       `json:"timeout" toml:"timeout" env:"PICOCHAT_BACKEND_TIMEOUT"`
	UserAgent    string         `json:"user_agent,omitempty" toml:"user_agent" env:"PICOCHAT_BACKEND_USER_AGENT"`
	Kinds        KindVocabulary `json:"kinds" toml:"kinds"`
}

// KindVocabulary lists the wire strings the backend uses for each response
// kind. Matching is case-insensitive; anything unlisted is treated as "other".
type KindVocabulary struct {
	Success        []string `json:"success" toml:"success" env:"PICOCHAT_BACKEND_KINDS_SUCCESS"`
	Authentication []string `json:"authentication" toml:"authentication" env:"PICOCHAT_BACKEND_KINDS_AUTHENTICATION"`
	Logout         []string `json:"logout" toml:"logout" env:"PICOCHAT_BACKEND_KINDS_LOGOUT"`
	Error          []string `json:"error" toml:"error" env:"PICOCHAT_BACKEND_KINDS_ERROR"`
}

type UIConfig struct {
	ReplyDelay  Duration `json:"reply_delay" toml:"reply_delay" env:"PICOCHAT_UI_REPLY_DELAY"`
	LogoutDelay Duration `json:"logout_delay" toml:"logout_delay" env:"PICOCHAT_UI_LOGOUT_DELAY"`
	Mask        string   `json:"mask" toml:"mask" env:"PICOCHAT_UI_MASK"`
	Apology     string   `json:"apology" toml:"apology" env:"PICOCHAT_UI_APOLOGY"`
	Welcome     string   `json:"welcome" toml:"welcome" env:"PICOCHAT_UI_WELCOME"`
	Title       string   `json:"title" toml:"title" env:"PICOCHAT_UI_TITLE"`
	TimeFormat  string   `json:"time_format" toml:"time_format" env:"PICOCHAT_UI_TIME_FORMAT"`
}

type LogConfig struct {
	Level  string `json:"level" toml:"level" env:"PICOCHAT_LOG_LEVEL"`
	File   string `json:"file" toml:"file" env:"PICOCHAT_LOG_FILE"`
	Format string `json:"format,omitempty" toml:"format" env:"PICOCHAT_LOG_FORMAT"`
}

// Duration is a time.Duration that reads and writes as a Go duration string
// ("500ms", "3s") in JSON, TOML and environment variables.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

const defaultWelcome = `Hello! Welcome to the virtual assistant.

I can help you with:
  * balance and statements
  * products and services
  * transfers and payments
  * frequently asked questions

To begin, please enter your CPF (numbers only).`

func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://localhost:5000",
			ChatPath:     "/api/chat",
			LogoutPath:   "/api/logout",
			MessageField: "mensagem",
			Timeout:      Duration(120 * time.Second),
			UserAgent:    "picochat",
			Kinds: KindVocabulary{
				Success:        []string{"success", "sucesso"},
				Authentication: []string{"authentication", "autenticacao"},
				Logout:         []string{"logout"},
				Error:          []string{"error", "erro"},
			},
		},
		UI: UIConfig{
			ReplyDelay:  Duration(500 * time.Millisecond),
			LogoutDelay: Duration(3 * time.Second),
			Mask:        "********",
			Apology:     "Sorry, something went wrong. Please try again.",
			Welcome:     defaultWelcome,
			Title:       "Virtual Assistant",
			TimeFormat:  "15:04",
		},
		Log: LogConfig{
			Level: "info",
			File:  "~/.picochat/picochat.log",
		},
	}
}

// DefaultPath is where the CLI looks for a config file when none is given.
func DefaultPath() string {
	return expandHome("~/.picochat/config.json")
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Support full config from env var (for containers / scripted runs)
	if cfgJSON := os.Getenv("PICOCHAT_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing PICOCHAT_CONFIG_JSON: %w", err)
		}
		if err := env.Parse(cfg); err != nil {
			return nil, fmt.Errorf("parsing environment: %w", err)
		}
		return cfg, nil
	}

	if path != "" {
		data, err := os.ReadFile(expandHome(path))
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return json.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	path = expandHome(path)

	var data []byte
	if isTOML(path) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return err
		}
		data = []byte(sb.String())
	} else {
		var err error
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports the first setting that would make the client unusable.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url scheme %q is not http or https", u.Scheme)
	}
	if strings.TrimSpace(c.Backend.MessageField) == "" {
		return fmt.Errorf("backend.message_field must not be empty")
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.UI.ReplyDelay < 0 || c.UI.LogoutDelay < 0 {
		return fmt.Errorf("ui delays must not be negative")
	}
	return nil
}

// LogFilePath returns the configured log file with ~ expanded.
func (c *Config) LogFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Log.File)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
