// Package config provides the configuration schema, loader, and recognition
// provider registry for the Murmur dictation pipeline.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that decodes from YAML strings like "90s"
// or "2m".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// String returns the duration in [time.Duration] notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// PayloadFormat selects how submitted transcripts are stored in history.
type PayloadFormat string

const (
	// PayloadLegacy stores the combined text as a plain string.
	PayloadLegacy PayloadFormat = "legacy"

	// PayloadEnhanced stores local, remote, and combined transcript variants.
	PayloadEnhanced PayloadFormat = "enhanced"
)

// IsValid reports whether f is a recognised payload format.
func (f PayloadFormat) IsValid() bool {
	return f == PayloadLegacy || f == PayloadEnhanced
}

// Config is the root configuration structure for Murmur.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Recording RecordingConfig `yaml:"recording"`
	STT       STTConfig       `yaml:"stt"`
	PII       PIIConfig       `yaml:"pii"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds network and logging settings for the local gateway
// server that the UI connects to.
type ServerConfig struct {
	// ListenAddr is the TCP address the gateway listens on (e.g., ":8471").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BackendConfig describes the remote clinical backend that accepted
// dictations are submitted to.
type BackendConfig struct {
	// BaseURL is the backend API root (e.g., "https://api.example.com").
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a Bearer token with every request.
	APIKey string `yaml:"api_key"`

	// ChatID is the conversation submissions are appended to.
	ChatID string `yaml:"chat_id"`

	// SendTimeout bounds a single submission attempt. Default: 2m.
	SendTimeout Duration `yaml:"send_timeout"`
}

// RecordingConfig holds audio capture settings.
type RecordingConfig struct {
	// Device is the capture device name. Empty selects the system default.
	Device string `yaml:"device"`

	// SampleRate is the capture rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count. Default: 1 (mono).
	Channels int `yaml:"channels"`
}

// STTConfig selects and configures the recognition backends. Providers are
// tried in failover order: the configured primary first, then any fallbacks.
type STTConfig struct {
	// Provider selects the primary recognition backend. One of the names in
	// [ValidSTTProviders].
	Provider string `yaml:"provider"`

	// Language is the BCP-47 recognition language tag (e.g., "en-GB").
	// Empty lets the provider auto-detect.
	Language string `yaml:"language"`

	// Endpoint is the streaming service URL (provider "live") or the
	// whisper-server URL (provider "whisper").
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates against the streaming service. Ignored by the
	// local providers.
	APIKey string `yaml:"api_key"`

	// ModelPath is the local model file used by provider "whisper-native".
	ModelPath string `yaml:"model_path"`

	// Fallbacks lists additional provider names tried in order when the
	// primary cannot open a stream.
	Fallbacks []string `yaml:"fallbacks"`
}

// PIIConfig tunes the transcript disclosure scanner.
type PIIConfig struct {
	// KnownNames lists patient and clinician surnames matched phonetically,
	// catching common mistranscriptions.
	KnownNames []string `yaml:"known_names"`

	// ExtraPatterns appends site-specific detection patterns to the built-in
	// category set.
	ExtraPatterns []PatternConfig `yaml:"extra_patterns"`
}

// PatternConfig is one site-specific detection pattern.
type PatternConfig struct {
	// Category names the detection in scan results (e.g., "mrn").
	Category string `yaml:"category"`

	// Regexp is the detection expression, RE2 syntax.
	Regexp string `yaml:"regexp"`

	// Placeholder replaces every match in the redacted text
	// (e.g., "[MRN]").
	Placeholder string `yaml:"placeholder"`
}

// HistoryConfig holds settings for the local submission history store.
type HistoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string. Empty disables
	// history recording.
	PostgresDSN string `yaml:"postgres_dsn"`

	// PayloadFormat selects the stored transcript shape. Default: enhanced.
	PayloadFormat PayloadFormat `yaml:"payload_format"`
}
