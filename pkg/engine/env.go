package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/germanamz/crewtrace/pkg/modeladapter"
)

// Default connection settings used when the environment leaves them unset.
const (
	DefaultAPIBase = "https://api.dynaroute.vizuara.com/chat/completions"
	DefaultModel   = "gpt-4o-mini"
)

// Settings is the process-level configuration read from the environment.
type Settings struct {
	APIKey   string //nolint:gosec // configuration field, not a hardcoded secret
	APIBase  string
	Model    string
	LogLevel slog.Level
	Timeout  time.Duration
}

// ConfigurationMissingError reports required settings that are absent.
type ConfigurationMissingError struct {
	Keys []string
}

func (e *ConfigurationMissingError) Error() string {
	return "engine: missing configuration: " + strings.Join(e.Keys, ", ")
}

// LoadSettings reads Settings from the process environment.
func LoadSettings() (Settings, error) {
	return SettingsFrom(os.Getenv)
}

// SettingsFrom reads Settings through getenv. Each key falls back to its
// OPENAI_ prefixed alias.
//
// The returned Settings are always usable. An invalid LOG_LEVEL or
// REQUEST_TIMEOUT keeps its default and is reported in the error, which
// callers should log rather than treat as fatal.
func SettingsFrom(getenv func(string) string) (Settings, error) {
	lookup := func(key string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(getenv("OPENAI_" + key))
	}

	s := Settings{
		APIKey:   lookup("API_KEY"),
		APIBase:  lookup("API_BASE"),
		Model:    lookup("MODEL_NAME"),
		LogLevel: slog.LevelWarn,
		Timeout:  modeladapter.DefaultTimeout,
	}

	if s.APIBase == "" {
		s.APIBase = DefaultAPIBase
	}
	if s.Model == "" {
		s.Model = DefaultModel
	}

	var errs []error

	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		if lvl, err := ParseLevel(v); err != nil {
			errs = append(errs, err)
		} else {
			s.LogLevel = lvl
		}
	}

	if v := strings.TrimSpace(getenv("REQUEST_TIMEOUT")); v != "" {
		if d, err := parseTimeout(v); err != nil {
			errs = append(errs, err)
		} else {
			s.Timeout = d
		}
	}

	return s, errors.Join(errs...)
}

// Require reports the required settings that are missing.
func (s Settings) Require() error {
	if s.APIKey == "" {
		return &ConfigurationMissingError{Keys: []string{"API_KEY"}}
	}
	return nil
}

// MaskedKey returns the first ten characters of the API key followed by an
// ellipsis, or "Not set".
func (s Settings) MaskedKey() string {
	if s.APIKey == "" {
		return "Not set"
	}

	r := []rune(s.APIKey)
	if len(r) > 10 {
		r = r[:10]
	}

	return string(r) + "..."
}

// ParseLevel maps debug, info, warn and error to slog levels. The aliases
// warning, critical and fatal are accepted too.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "warning":
		return slog.LevelWarn, nil
	case "critical", "fatal":
		return slog.LevelError, nil
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("engine: invalid LOG_LEVEL %q: %w", s, err)
	}
	return lvl, nil
}

// parseTimeout accepts a Go duration ("90s") or a number of seconds ("90").
func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("engine: invalid REQUEST_TIMEOUT %q: must be positive", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("engine: invalid REQUEST_TIMEOUT %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("engine: invalid REQUEST_TIMEOUT %q: must be positive", s)
	}

	return d, nil
}
