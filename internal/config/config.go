package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/user/supportrelay/internal/docpath"
)

const (
	DefaultThreadPath   = "users/{userId}/support/default"
	DefaultMessagesPath = "users/{userId}/support/default/messages"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	MaxConcurrent int    `json:"max_concurrent"`
	ProjectID     string `json:"project_id"`
	Firestore     struct {
		Database     string `json:"database"`
		ThreadPath   string `json:"thread_path"`
		MessagesPath string `json:"messages_path"`
	} `json:"firestore"`
	Slack struct {
		ChannelID     string `json:"channel_id"`
		BotID         string `json:"bot_id"`
		BotToken      string `json:"bot_token"`
		SigningSecret string `json:"signing_secret"`
	} `json:"slack"`
	HTTP struct {
		Listen string `json:"listen"`
	} `json:"http"`
}

// Defaults returns a Config with every optional value filled in.
func Defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".supportrelay"),
		MaxConcurrent: 8,
	}
	cfg.LogLevel = "info"
	cfg.LogFormat = "json"
	cfg.Firestore.Database = "(default)"
	cfg.Firestore.ThreadPath = DefaultThreadPath
	cfg.Firestore.MessagesPath = DefaultMessagesPath
	cfg.HTTP.Listen = ":8080"
	return cfg
}

// Load reads the JSON config at path on top of the defaults, then applies
// environment overrides. An empty path skips the file. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if os.IsNotExist(err) {
			if err := Save(path, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides file values; environment has the highest precedence.
func applyEnv(cfg *Config) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&cfg.ProjectID, "PROJECT_ID", "GCP_PROJECT", "GOOGLE_CLOUD_PROJECT")
	set(&cfg.Firestore.Database, "FIRESTORE_DATABASE")
	set(&cfg.Firestore.ThreadPath, "CONFIG_PATH")
	set(&cfg.Firestore.MessagesPath, "MESSAGES_PATH")
	set(&cfg.Slack.ChannelID, "SLACK_CHANNEL_ID")
	set(&cfg.Slack.BotID, "SLACK_BOT_ID")
	set(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	set(&cfg.Slack.SigningSecret, "SLACK_SIGNING_SECRET")
	set(&cfg.LogLevel, "LOG_LEVEL")
	set(&cfg.LogFormat, "LOG_FORMAT")
	set(&cfg.HTTP.Listen, "HTTP_LISTEN")
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" && os.Getenv("HTTP_LISTEN") == "" {
		cfg.HTTP.Listen = ":" + port
	}
}

var ErrMissing = errors.New("missing required configuration")

// ValidationError lists every required key that has no value.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissing, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrMissing }

// Keys required by each command.
var (
	ServeKeys     = []string{"project_id", "slack.channel_id", "slack.bot_token", "slack.signing_secret"}
	ProvisionKeys = []string{"project_id"}
	DeliverKeys   = []string{"project_id", "slack.channel_id", "slack.bot_token"}
)

// Require returns a *ValidationError if any of the dot-separated keys is empty.
func (c *Config) Require(keys ...string) error {
	m, err := ToMap(c)
	if err != nil {
		return err
	}
	flat := Flatten(m)
	var missing []string
	for _, k := range keys {
		if s, _ := flat[k].(string); strings.TrimSpace(s) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Paths are the parsed Firestore path templates.
type Paths struct {
	Thread   docpath.Template
	Messages docpath.Template
}

// Paths validates the configured templates once.
func (c *Config) Paths() (Paths, error) {
	thread, err := docpath.Parse(c.Firestore.ThreadPath, docpath.Document)
	if err != nil {
		return Paths{}, fmt.Errorf("firestore.thread_path: %w", err)
	}
	messages, err := docpath.Parse(c.Firestore.MessagesPath, docpath.Collection)
	if err != nil {
		return Paths{}, fmt.Errorf("firestore.messages_path: %w", err)
	}
	return Paths{Thread: thread, Messages: messages}, nil
}

// Validate checks the keys a command needs and parses the path templates.
// It runs once at startup.
func (c *Config) Validate(keys ...string) (Paths, error) {
	if err := c.Require(keys...); err != nil {
		return Paths{}, err
	}
	return c.Paths()
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested map using its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns the flattened config, with secrets masked if mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value stored under a dot-separated key in the file at
// path. Keys unknown to Config are still readable if present in the file.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores raw under key in the existing file at path. Values that
// parse as JSON (numbers, booleans) are stored typed, anything else as a string.
func SetValue(path, key, raw string) error {
	flat, err := readFlat(path)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	flat[key] = v
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, data)
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Flatten(m), nil
}
