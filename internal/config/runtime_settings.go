package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings is the user-adjustable subset of the configuration: the
// language preferences and the dual-subtitle toggle. The engine only observes
// it; it never writes it back.
type RuntimeSettings struct {
	PrimaryLanguage   string `json:"primary_language"`
	SecondaryLanguage string `json:"secondary_language"`
	DualSubtitles     bool   `json:"dual_subtitles"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.PrimaryLanguage) == "" {
		return fmt.Errorf("primary_language is required")
	}
	if _, err := language.Parse(s.PrimaryLanguage); err != nil {
		return fmt.Errorf("invalid primary_language: %w", err)
	}
	if s.DualSubtitles {
		if strings.TrimSpace(s.SecondaryLanguage) == "" {
			return fmt.Errorf("secondary_language is required when dual_subtitles is enabled")
		}
		if _, err := language.Parse(s.SecondaryLanguage); err != nil {
			return fmt.Errorf("invalid secondary_language: %w", err)
		}
		if s.SecondaryLanguage == s.PrimaryLanguage {
			return fmt.Errorf("secondary_language must differ from primary_language")
		}
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		PrimaryLanguage:   c.Subtitles.PrimaryLanguage.String(),
		SecondaryLanguage: c.Subtitles.SecondaryLanguage.String(),
		DualSubtitles:     c.Subtitles.DualSubtitles,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if tag, err := language.Parse(settings.PrimaryLanguage); err == nil {
			c.Subtitles.PrimaryLanguage = tag
		}
		if tag, err := language.Parse(settings.SecondaryLanguage); err == nil {
			c.Subtitles.SecondaryLanguage = tag
		}
		c.Subtitles.DualSubtitles = settings.DualSubtitles
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore holds the current runtime settings and notifies
// observers when they change.
type RuntimeSettingsStore struct {
	path string

	mu        sync.RWMutex
	current   RuntimeSettings
	observers []func(RuntimeSettings)
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	changed := next != s.current
	s.current = next
	observers := make([]func(RuntimeSettings), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(next)
		}
	}
	return next, nil
}

// Observe registers a callback invoked after every settings change.
func (s *RuntimeSettingsStore) Observe(fn func(RuntimeSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}
