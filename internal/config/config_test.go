package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for logLevel=verbose")
	}
}

func TestValidate_MapIDStrategy(t *testing.T) {
	for _, strategy := range []string{"counter", "uuid"} {
		cfg := Defaults()
		cfg.Preview.MapIDStrategy = strategy
		if err := Validate(cfg); err != nil {
			t.Fatalf("strategy %q should be valid: %v", strategy, err)
		}
	}

	cfg := Defaults()
	cfg.Preview.MapIDStrategy = "timestamp"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for mapIdStrategy=timestamp")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Web.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Web.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_AuthNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Web.Auth.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for auth without credentials")
	}
	cfg.Web.Auth.Username = "admin"
	cfg.Web.Auth.PasswordHash = "abc"
	if err := Validate(cfg); err != nil {
		t.Fatalf("auth with credentials should be valid: %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	cfg.Preview.LanguageIDs = nil
	cfg.Snapshot.TimeoutSeconds = 0
	cfg.Metrics.Endpoint = "metrics"

	err := Validate(cfg)
	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("expected *multierror.Error, got %T: %v", err, err)
	}
	if len(merr.Errors) != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", len(merr.Errors), err)
	}
	for _, want := range []string{"general.logLevel", "preview.languageIds", "snapshot.timeoutSeconds", "metrics.endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %s in %v", want, err)
		}
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := Defaults()
			original.Preview.BotName = "echo bot"
			original.Preview.ScriptURLs = []string{"/a.js", "/b.js"}

			if err := Save(path, original); err != nil {
				t.Fatalf("save: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.Preview.BotName != "echo bot" {
				t.Fatalf("expected 'echo bot', got %q", loaded.Preview.BotName)
			}
			if len(loaded.Preview.ScriptURLs) != 2 || loaded.Preview.ScriptURLs[1] != "/b.js" {
				t.Fatalf("unexpected scriptUrls: %v", loaded.Preview.ScriptURLs)
			}
		})
	}
}

func TestLoad_YAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "preview:\n  botName: yaml bot\nweb:\n  port: 9001\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Preview.BotName != "yaml bot" || cfg.Web.Port != 9001 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Web.Host != "127.0.0.1" || cfg.Preview.MapIDStrategy != "counter" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefaults_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefaults(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("expected defaults, got: %v", err)
	}
	if cfg.Web.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Web.Port)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"preview": {"mapIdStrategy": "clock"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for mapIdStrategy=clock")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BOT_NAME", "from-env")
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"preview": {"botName": "${TEST_BOT_NAME}", "stylesheetUrl": "${TEST_UNSET_CSS:-/local.css}"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Preview.BotName != "from-env" || cfg.Preview.StylesheetURL != "/local.css" {
		t.Fatalf("env vars not expanded: %+v", cfg.Preview)
	}
}

// --- ApplyEnv ---

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("LINEPREVIEW_WEB_PORT", "9100")
	t.Setenv("LINEPREVIEW_WEB_AUTH_USERNAME", "alice")
	t.Setenv("LINEPREVIEW_PREVIEW_LANGUAGE_IDS", "json,json5")
	t.Setenv("LINEPREVIEW_METRICS_ENABLED", "false")

	cfg := Defaults()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Web.Port != 9100 {
		t.Errorf("web.port: got %d", cfg.Web.Port)
	}
	if cfg.Web.Auth.Username != "alice" {
		t.Errorf("web.auth.username: got %q", cfg.Web.Auth.Username)
	}
	if len(cfg.Preview.LanguageIDs) != 2 || cfg.Preview.LanguageIDs[1] != "json5" {
		t.Errorf("preview.languageIds: got %v", cfg.Preview.LanguageIDs)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics.enabled should be false")
	}
	// Untouched fields keep their defaults.
	if cfg.Web.Host != "127.0.0.1" || cfg.Preview.BotName != "bot" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("LINEPREVIEW_SNAPSHOT_WIDTH", "wide")
	if err := ApplyEnv(Defaults()); err == nil {
		t.Fatal("expected error for non-numeric width")
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "preview.mapIdStrategy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "counter" {
		t.Fatalf("expected 'counter', got %v", val)
	}

	val, err = GetByPath(cfg, "preview.languageIds.0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "json" {
		t.Fatalf("expected 'json', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "preview.botName", "helper"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Preview.BotName != "helper" {
		t.Fatalf("expected 'helper', got %q", cfg.Preview.BotName)
	}
}

func TestSetByPath_NumericStringField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "preview.botName", "42"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Preview.BotName != "42" {
		t.Fatalf("expected '42', got %q", cfg.Preview.BotName)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "metrics.enabled", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("expected metrics.enabled=false")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "watch.debounceMs", "150"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Watch.DebounceMs != 150 {
		t.Fatalf("expected 150, got %d", cfg.Watch.DebounceMs)
	}
}

func TestSetByPath_ListFromCommaString(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "preview.languageIds", "json, jsonc ,json5"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	want := []string{"json", "jsonc", "json5"}
	if strings.Join(cfg.Preview.LanguageIDs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, cfg.Preview.LanguageIDs)
	}
}

func TestSetByPath_ListWhenUnset(t *testing.T) {
	cfg := Defaults()
	cfg.Preview.ScriptURLs = nil
	if err := SetByPath(cfg, "preview.scriptUrls", "https://cdn/a.js,https://cdn/b.js"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	if len(cfg.Preview.ScriptURLs) != 2 || cfg.Preview.ScriptURLs[1] != "https://cdn/b.js" {
		t.Fatalf("unexpected scriptUrls: %v", cfg.Preview.ScriptURLs)
	}
}

func TestSetByPath_Rejects(t *testing.T) {
	tests := map[string]struct {
		path  string
		value any
	}{
		"unknown key":     {"preview.botNmae", "x"},
		"unknown section": {"nonexistent.path", "x"},
		"section":         {"web.auth", "x"},
		"through a leaf":  {"preview.botName.x", "x"},
		"bad bool":        {"metrics.enabled", "maybe"},
		"bad int":         {"watch.debounceMs", "soon"},
		"wrong json type": {"web.port", true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			before := *cfg
			if err := SetByPath(cfg, tt.path, tt.value); err == nil {
				t.Fatalf("SetByPath(%q, %v): expected error", tt.path, tt.value)
			}
			if cfg.Metrics.Enabled != before.Metrics.Enabled || cfg.Watch.DebounceMs != before.Watch.DebounceMs {
				t.Error("rejected value changed the config")
			}
		})
	}
}

// --- Sanitize ---

func TestSanitize_MasksPasswordHash(t *testing.T) {
	cfg := Defaults()
	cfg.Web.Auth.PasswordHash = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"

	sanitized := Sanitize(cfg)
	if sanitized.Web.Auth.PasswordHash != "***" {
		t.Fatalf("password hash should be masked, got %q", sanitized.Web.Auth.PasswordHash)
	}
	if cfg.Web.Auth.PasswordHash == "***" {
		t.Fatal("original config should not be modified")
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "preview.botName", "web.auth.enabled", "snapshot.width", "metrics.endpoint"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_CSS_URL", "https://cdn/x.css")
	result := ExpandEnvVars(`{"stylesheetUrl": "${TEST_CSS_URL}"}`)
	expected := `{"stylesheetUrl": "https://cdn/x.css"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-8080}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	expected := `"fallback"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}
