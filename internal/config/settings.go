package config

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath is read when REASON_CONFIG is unset.
const DefaultSettingsPath = "reasonloop.yaml"

// Profile is one set of generation options.
//
// Temperature pins a value. Otherwise, when TemperatureMax > TemperatureMin,
// each call draws uniformly from that range.
type Profile struct {
	Temperature    *float32 `yaml:"temperature"`
	TemperatureMin float32  `yaml:"temperature_min"`
	TemperatureMax float32  `yaml:"temperature_max"`
	MaxTokens      int      `yaml:"max_tokens"`
}

// SampleTemperature returns the temperature for one call, or nil to leave it
// to the provider.
func (p Profile) SampleTemperature() *float32 {
	if p.Temperature != nil {
		t := *p.Temperature
		return &t
	}
	if p.TemperatureMax > p.TemperatureMin {
		t := p.TemperatureMin + rand.Float32()*(p.TemperatureMax-p.TemperatureMin)
		return &t
	}
	if p.TemperatureMin > 0 {
		t := p.TemperatureMin
		return &t
	}
	return nil
}

// Profiles groups the option sets used by the capabilities.
type Profiles struct {
	Default    Profile `yaml:"default"`    // completeness, redundancy, final answer
	Reasoning  Profile `yaml:"reasoning"`  // reasoning item generation
	Similarity Profile `yaml:"similarity"` // similarity scoring
}

// Limits bounds the reasoning loop. Zero disables a cap.
type Limits struct {
	MaxItems             int     `yaml:"max_items"`
	MaxRejectionsPerSlot int     `yaml:"max_rejections_per_slot"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	SimilarityCacheSize  int     `yaml:"similarity_cache_size"`
}

// Server holds HTTP front-end settings.
type Server struct {
	Port                  int    `yaml:"port"`
	SessionTTLMinutes     int    `yaml:"session_ttl_minutes"`
	SessionMaxMessages    int    `yaml:"session_max_messages"`
	MaxConcurrentSessions int64  `yaml:"max_concurrent_sessions"`
	PromptsDir            string `yaml:"prompts_dir"`
	UserRulesPath         string `yaml:"user_rules_path"`
}

// Settings is the YAML configuration file.
type Settings struct {
	Profiles Profiles `yaml:"profiles"`
	Limits   Limits   `yaml:"limits"`
	Server   Server   `yaml:"server"`
}

func float32Ptr(v float32) *float32 { return &v }

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Profiles: Profiles{
			Default:    Profile{TemperatureMin: 0.66, TemperatureMax: 0.72},
			Reasoning:  Profile{Temperature: float32Ptr(0.74), MaxTokens: 400},
			Similarity: Profile{Temperature: float32Ptr(0.35), MaxTokens: 100},
		},
		Limits: Limits{
			SimilarityThreshold: 0.90,
			SimilarityCacheSize: 256,
		},
		Server: Server{
			Port:                  8080,
			SessionTTLMinutes:     30,
			SessionMaxMessages:    40,
			MaxConcurrentSessions: 8,
		},
	}
}

// SettingsPath picks the settings file: path, then REASON_CONFIG, then
// DefaultSettingsPath located with FindFile. When nothing is found the bare
// DefaultSettingsPath is returned and loading falls back to defaults.
func SettingsPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("REASON_CONFIG"); env != "" {
		return env
	}
	if found, ok := FindFile(DefaultSettingsPath); ok {
		return found
	}
	return DefaultSettingsPath
}

// LoadSettings reads the file chosen by SettingsPath over the defaults, then
// applies environment overrides. A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	s := Defaults()
	path = SettingsPath(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse %s: %w", path, err)
		}
		log.Printf("[Config] Loaded settings from %s", path)
	case errors.Is(err, os.ErrNotExist):
		log.Printf("[Config] No settings file at %s, using defaults", path)
	default:
		return s, fmt.Errorf("read %s: %w", path, err)
	}

	if err := s.applyEnv(); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"WEB_PORT", &s.Server.Port},
		{"SESSION_TTL_MINUTES", &s.Server.SessionTTLMinutes},
		{"SESSION_MAX_MESSAGES", &s.Server.SessionMaxMessages},
		{"REASON_MAX_ITEMS", &s.Limits.MaxItems},
		{"REASON_MAX_REJECTIONS", &s.Limits.MaxRejectionsPerSlot},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", e.key, err)
			}
			*e.dst = n
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_SESSIONS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_CONCURRENT_SESSIONS: %w", err)
		}
		s.Server.MaxConcurrentSessions = n
	}
	if v := os.Getenv("PROMPTS_DIR"); v != "" {
		s.Server.PromptsDir = v
	}
	if v := os.Getenv("USER_RULES_PATH"); v != "" {
		s.Server.UserRulesPath = v
	}
	return nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	for name, p := range map[string]Profile{
		"default":    s.Profiles.Default,
		"reasoning":  s.Profiles.Reasoning,
		"similarity": s.Profiles.Similarity,
	} {
		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			return fmt.Errorf("profile %s: temperature must be between 0 and 2, got %v", name, *p.Temperature)
		}
		if p.TemperatureMin < 0 || p.TemperatureMax > 2 {
			return fmt.Errorf("profile %s: temperature range must be within 0..2", name)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("profile %s: max_tokens cannot be negative", name)
		}
	}
	if s.Limits.MaxItems < 0 || s.Limits.MaxRejectionsPerSlot < 0 || s.Limits.SimilarityCacheSize < 0 {
		return fmt.Errorf("limits cannot be negative")
	}
	if t := s.Limits.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %v", t)
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Server.Port)
	}
	if s.Server.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("max_concurrent_sessions must be positive")
	}
	return nil
}
