package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// tree returns cfg as its JSON object form, keyed by the json tags.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "preview.botName").
// A numeric segment indexes into a list ("preview.languageIds.0").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid list index %q in %s", key, path)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
	}
	return current, nil
}

// SetByPath sets an existing leaf of the config. String values are coerced
// to the leaf's type: "true"/"false" for switches, integers for numbers and
// comma-separated items for lists.
func SetByPath(cfg *Config, path string, value any) error {
	m, err := tree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	section := m
	for _, key := range parts[:len(parts)-1] {
		next, ok := section[key].(map[string]any)
		if !ok {
			return fmt.Errorf("key not found: %s", path)
		}
		section = next
	}
	leaf := parts[len(parts)-1]
	current, ok := section[leaf]
	if !ok {
		return fmt.Errorf("key not found: %s", path)
	}
	if _, isSection := current.(map[string]any); isSection {
		return fmt.Errorf("%s is a section, not a setting", path)
	}

	if s, isString := value.(string); isString {
		if value, err = coerce(current, s); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	section[leaf] = value

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// coerce converts s to the JSON type of current.
func coerce(current any, s string) (any, error) {
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("want true or false, got %q", s)
		}
		return b, nil
	case float64:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("want an integer, got %q", s)
		}
		return n, nil
	case []any, nil:
		// Scalars always marshal to a value, so a null leaf is an unset list.
		items := []string{}
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		return items, nil
	}
	return s, nil
}

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	if c.Web.Auth.PasswordHash != "" {
		c.Web.Auth.PasswordHash = "***"
	}
	return &c
}

// ListPaths returns all settable config paths with their current values.
func ListPaths(cfg *Config) map[string]any {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(k, sub)
				continue
			}
			out[k] = v
		}
	}
	walk("", m)
	return out
}
