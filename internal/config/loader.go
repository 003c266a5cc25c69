package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the recognition backend names the registry knows
// how to build.
var ValidSTTProviders = []string{"live", "whisper", "whisper-native", "canned"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8471"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Recording.SampleRate == 0 {
		cfg.Recording.SampleRate = 16000
	}
	if cfg.Recording.Channels == 0 {
		cfg.Recording.Channels = 1
	}
	if cfg.STT.Provider == "" {
		cfg.STT.Provider = "canned"
	}
	if cfg.History.PayloadFormat == "" {
		cfg.History.PayloadFormat = PayloadEnhanced
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend. Dictation and scanning work offline, so an absent backend is
	// a warning, not an error.
	if cfg.Backend.BaseURL == "" {
		slog.Warn("backend.base_url is empty; submissions will fail until it is configured")
	} else if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q is not an absolute URL", cfg.Backend.BaseURL))
	}
	if cfg.Backend.BaseURL != "" && cfg.Backend.ChatID == "" {
		errs = append(errs, errors.New("backend.chat_id is required when backend.base_url is set"))
	}
	if cfg.Backend.SendTimeout < 0 {
		errs = append(errs, fmt.Errorf("backend.send_timeout %s is negative", cfg.Backend.SendTimeout))
	}

	// Recording.
	if cfg.Recording.SampleRate < 8000 || cfg.Recording.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("recording.sample_rate %d is out of range [8000, 48000]", cfg.Recording.SampleRate))
	}
	if cfg.Recording.Channels != 1 && cfg.Recording.Channels != 2 {
		errs = append(errs, fmt.Errorf("recording.channels %d is invalid; valid values: 1, 2", cfg.Recording.Channels))
	}

	// STT provider selection.
	errs = append(errs, validateSTTProvider("stt.provider", cfg.STT.Provider, cfg)...)
	for i, name := range cfg.STT.Fallbacks {
		errs = append(errs, validateSTTProvider(fmt.Sprintf("stt.fallbacks[%d]", i), name, cfg)...)
		if name == cfg.STT.Provider {
			errs = append(errs, fmt.Errorf("stt.fallbacks[%d] %q duplicates the primary provider", i, name))
		}
	}

	// Extra scan patterns must compile and carry all fields.
	seen := make(map[string]int, len(cfg.PII.ExtraPatterns))
	for i, p := range cfg.PII.ExtraPatterns {
		prefix := fmt.Sprintf("pii.extra_patterns[%d]", i)
		if p.Category == "" {
			errs = append(errs, fmt.Errorf("%s.category is required", prefix))
		} else if prev, dup := seen[p.Category]; dup {
			errs = append(errs, fmt.Errorf("%s.category %q duplicates pii.extra_patterns[%d]", prefix, p.Category, prev))
		} else {
			seen[p.Category] = i
		}
		if p.Placeholder == "" {
			errs = append(errs, fmt.Errorf("%s.placeholder is required", prefix))
		}
		if p.Regexp == "" {
			errs = append(errs, fmt.Errorf("%s.regexp is required", prefix))
		} else if _, err := regexp.Compile(p.Regexp); err != nil {
			errs = append(errs, fmt.Errorf("%s.regexp does not compile: %w", prefix, err))
		}
	}

	// History.
	if !cfg.History.PayloadFormat.IsValid() {
		errs = append(errs, fmt.Errorf("history.payload_format %q is invalid; valid values: legacy, enhanced", cfg.History.PayloadFormat))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; submitted messages will not be recorded locally")
	}

	return errors.Join(errs...)
}

// validateSTTProvider checks a provider name and its required settings.
func validateSTTProvider(field, name string, cfg *Config) []error {
	var errs []error
	if !slices.Contains(ValidSTTProviders, name) {
		errs = append(errs, fmt.Errorf("%s %q is invalid; valid values: live, whisper, whisper-native, canned", field, name))
		return errs
	}
	switch name {
	case "live", "whisper":
		if cfg.STT.Endpoint == "" {
			errs = append(errs, fmt.Errorf("%s: provider %q requires stt.endpoint", field, name))
		}
	case "whisper-native":
		if cfg.STT.ModelPath == "" {
			errs = append(errs, fmt.Errorf("%s: provider %q requires stt.model_path", field, name))
		}
	}
	return errs
}
