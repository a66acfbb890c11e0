package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// LINEPREVIEW_WEB_PORT=9000 or LINEPREVIEW_PREVIEW_BOT_NAME=echo.
const EnvPrefix = "LINEPREVIEW_"

// Config is the root configuration for linepreview.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general" envPrefix:"GENERAL_"`
	Preview  PreviewConfig  `json:"preview" yaml:"preview" envPrefix:"PREVIEW_"`
	Web      WebConfig      `json:"web" yaml:"web" envPrefix:"WEB_"`
	Watch    WatchConfig    `json:"watch" yaml:"watch" envPrefix:"WATCH_"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot" envPrefix:"SNAPSHOT_"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"LOG_FILE"` // optional log file path
}

// PreviewConfig controls the chat-window page around each rendered message.
// URLs are emitted as given; an empty SiteCSSURL or PreviewScriptURL inlines
// the built-in stylesheet or script instead.
type PreviewConfig struct {
	BotName          string   `json:"botName" yaml:"botName" env:"BOT_NAME"`
	StylesheetURL    string   `json:"stylesheetUrl" yaml:"stylesheetUrl" env:"STYLESHEET_URL"`
	SiteCSSURL       string   `json:"siteCssUrl,omitempty" yaml:"siteCssUrl,omitempty" env:"SITE_CSS_URL"`
	PreviewScriptURL string   `json:"previewScriptUrl,omitempty" yaml:"previewScriptUrl,omitempty" env:"SCRIPT_URL"`
	ScriptURLs       []string `json:"scriptUrls" yaml:"scriptUrls" env:"SCRIPT_URLS"`
	KeyboardImageURL string   `json:"keyboardImageUrl,omitempty" yaml:"keyboardImageUrl,omitempty" env:"KEYBOARD_IMAGE_URL"`
	MapIDStrategy    string   `json:"mapIdStrategy" yaml:"mapIdStrategy" env:"MAP_ID_STRATEGY"` // "counter" | "uuid"
	LanguageIDs      []string `json:"languageIds" yaml:"languageIds" env:"LANGUAGE_IDS"`
}

type WebConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Host    string  `json:"host" yaml:"host" env:"HOST"`
	Port    int     `json:"port" yaml:"port" env:"PORT"`
	Auth    WebAuth `json:"auth" yaml:"auth" envPrefix:"AUTH_"`
}

type WebAuth struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Username     string `json:"username" yaml:"username" env:"USERNAME"`
	PasswordHash string `json:"passwordHash" yaml:"passwordHash" env:"PASSWORD_HASH"` // hex SHA-256
}

// WatchConfig configures the acme window watcher.
type WatchConfig struct {
	DebounceMs int    `json:"debounceMs" yaml:"debounceMs" env:"DEBOUNCE_MS"`
	OutputPath string `json:"outputPath" yaml:"outputPath" env:"OUTPUT_PATH"`
}

// SnapshotConfig configures headless Chrome screenshots of the preview.
type SnapshotConfig struct {
	Width          int    `json:"width" yaml:"width" env:"WIDTH"`
	Height         int    `json:"height" yaml:"height" env:"HEIGHT"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"TIMEOUT_SECONDS"`
	ChromePath     string `json:"chromePath,omitempty" yaml:"chromePath,omitempty" env:"CHROME_PATH"`
}

// MetricsConfig configures the Prometheus endpoint of the web server.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Endpoint string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
}

// DefaultConfigDir returns the default config directory (~/.linepreview).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linepreview"
	}
	return filepath.Join(home, ".linepreview")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// isYAML reports whether path should be read and written as YAML.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a JSON or YAML config file on top of Defaults, applies
// LINEPREVIEW_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Watch.OutputPath = ExpandPath(cfg.Watch.OutputPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadOrDefaults is Load, except that a missing file yields the validated
// defaults (with environment overrides) instead of an error.
func LoadOrDefaults(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
		cfg.Watch.OutputPath = ExpandPath(cfg.Watch.OutputPath)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// ApplyEnv overrides cfg fields from LINEPREVIEW_* environment variables.
// Unset variables leave the field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""
		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML or JSON depending on the file extension.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	var result *multierror.Error

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("general.logLevel must be one of: debug, info, warn, error"))
	}

	switch cfg.Preview.MapIDStrategy {
	case "counter", "uuid":
	default:
		result = multierror.Append(result, fmt.Errorf("preview.mapIdStrategy must be one of: counter, uuid"))
	}
	if len(cfg.Preview.LanguageIDs) == 0 {
		result = multierror.Append(result, fmt.Errorf("preview.languageIds must not be empty"))
	}

	if cfg.Web.Port < 0 || cfg.Web.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("web.port must be between 0 and 65535"))
	}
	if cfg.Web.Auth.Enabled && (cfg.Web.Auth.Username == "" || cfg.Web.Auth.PasswordHash == "") {
		result = multierror.Append(result, fmt.Errorf("web.auth requires username and passwordHash when enabled"))
	}

	if cfg.Watch.DebounceMs < 0 || cfg.Watch.DebounceMs > 10000 {
		result = multierror.Append(result, fmt.Errorf("watch.debounceMs must be between 0 and 10000"))
	}

	if cfg.Snapshot.Width < 1 || cfg.Snapshot.Height < 1 {
		result = multierror.Append(result, fmt.Errorf("snapshot.width and snapshot.height must be >= 1"))
	}
	if cfg.Snapshot.TimeoutSeconds < 1 {
		result = multierror.Append(result, fmt.Errorf("snapshot.timeoutSeconds must be >= 1"))
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		result = multierror.Append(result, fmt.Errorf("metrics.endpoint must start with /"))
	}

	return result.ErrorOrNil()
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
