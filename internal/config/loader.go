package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, expands ${VAR} references
// from the environment, applies defaults, and validates the result.
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

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults, and validates. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure and logs warnings for
// suspicious but workable settings.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !cfg.Providers.Chat.Name.IsValid() {
		errs = append(errs, fmt.Errorf("providers.chat.name %q is invalid; valid values: groq, gemini-live", cfg.Providers.Chat.Name))
	}

	for i, name := range cfg.Providers.TTS.Order {
		if !slices.Contains(knownTTSProviders, name) {
			errs = append(errs, fmt.Errorf("providers.tts.order[%d] %q is unknown; valid values: %v", i, name, knownTTSProviders))
		}
	}

	if !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: file, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
	}

	if cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt.api_key is empty; transcription will fail and every turn will degrade")
	}
	if cfg.Providers.Chat.APIKey == "" {
		slog.Warn("providers.chat.api_key is empty; relying on the backend's environment variable fallback")
	}
	if slices.Contains(cfg.Providers.TTS.Order, "gemini") && cfg.Providers.TTS.Gemini.APIKey == "" {
		slog.Warn("providers.tts.gemini.api_key is empty; the gemini synthesis provider will be skipped")
	}

	return errors.Join(errs...)
}
