// Package prefs stores the small set of durable user preferences: the API
// credential, the vocabulary hint, the handoff target and the auto-capture
// flag.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KeyAPIKey         = "api_key"
	KeyVocabularyHint = "vocabulary_hint"
	KeyTargetApp      = "target_app"
	KeyAutoCapture    = "auto_capture"
)

const fileName = "config.yaml"

// Preferences holds every configurable value. Last write wins; there is no
// schema versioning.
type Preferences struct {
	APIKey         string `yaml:"api_key,omitempty"`
	VocabularyHint string `yaml:"vocabulary_hint,omitempty"`
	TargetApp      string `yaml:"target_app,omitempty"`
	AutoCapture    bool   `yaml:"auto_capture,omitempty"`
}

// Store reads and writes the preferences file in a config directory.
// Environment variables (VOICEBOX_API_KEY, VOICEBOX_VOCABULARY_HINT,
// VOICEBOX_TARGET_APP, VOICEBOX_AUTO_CAPTURE) override file values on load.
type Store struct {
	path string

	// lookupEnv is swapped by tests.
	lookupEnv func(string) (string, bool)
}

func NewStore(configDir string) *Store {
	return &Store{
		path:      filepath.Join(configDir, fileName),
		lookupEnv: os.LookupEnv,
	}
}

// Load returns the current preferences. A missing file yields zero values,
// not an error.
func (s *Store) Load() (Preferences, error) {
	var p Preferences

	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return Preferences{}, fmt.Errorf("parse preferences %s: %w", s.path, err)
		}
	}

	s.applyEnv(&p)
	return p, nil
}

// Save writes the preferences atomically: temp file in the same directory,
// then rename.
func (s *Store) Save(p Preferences) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write preferences: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Set updates a single named value.
func (s *Store) Set(key, value string) error {
	p, err := s.loadFileOnly()
	if err != nil {
		return err
	}

	switch key {
	case KeyAPIKey:
		p.APIKey = strings.TrimSpace(value)
	case KeyVocabularyHint:
		p.VocabularyHint = value
	case KeyTargetApp:
		p.TargetApp = strings.TrimSpace(value)
	case KeyAutoCapture:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q (want true or false)", key, value)
		}
		p.AutoCapture = b
	default:
		return fmt.Errorf("unknown preference key: %s\n\nValid keys: %s", key, strings.Join(ValidKeys(), ", "))
	}

	return s.Save(p)
}

// Get returns a single named value as a string.
func (s *Store) Get(key string) (string, error) {
	p, err := s.Load()
	if err != nil {
		return "", err
	}

	switch key {
	case KeyAPIKey:
		return p.APIKey, nil
	case KeyVocabularyHint:
		return p.VocabularyHint, nil
	case KeyTargetApp:
		return p.TargetApp, nil
	case KeyAutoCapture:
		return strconv.FormatBool(p.AutoCapture), nil
	default:
		return "", fmt.Errorf("unknown preference key: %s\n\nValid keys: %s", key, strings.Join(ValidKeys(), ", "))
	}
}

func ValidKeys() []string {
	keys := []string{KeyAPIKey, KeyVocabularyHint, KeyTargetApp, KeyAutoCapture}
	sort.Strings(keys)
	return keys
}

// loadFileOnly skips env overrides so Set never writes an env value into the
// file.
func (s *Store) loadFileOnly() (Preferences, error) {
	var p Preferences

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("parse preferences %s: %w", s.path, err)
	}
	return p, nil
}

func (s *Store) applyEnv(p *Preferences) {
	lookup := s.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup("VOICEBOX_API_KEY"); ok {
		p.APIKey = v
	}
	if v, ok := lookup("VOICEBOX_VOCABULARY_HINT"); ok {
		p.VocabularyHint = v
	}
	if v, ok := lookup("VOICEBOX_TARGET_APP"); ok {
		p.TargetApp = v
	}
	if v, ok := lookup("VOICEBOX_AUTO_CAPTURE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			p.AutoCapture = b
		}
	}
}
