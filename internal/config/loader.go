package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/MrWong99/sensekit/pkg/spatial"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":   {"elevenlabs", "coqui", "openai"},
	"audio": {string(BackendOto), string(BackendVirtual)},
}

// Default values filled in by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultPoolSize         = 5
	DefaultMaxConcurrent    = 3
	DefaultSpatialDistance  = 1.0
	DefaultSampleRate       = 22050
	DefaultOutputSampleRate = 48000
	DefaultBufferMillis     = 50
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default. Explicitly
// set values are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	s := &cfg.Speech
	if s.PoolSize == 0 {
		s.PoolSize = DefaultPoolSize
	}
	if s.MaxConcurrent == 0 {
		s.MaxConcurrent = DefaultMaxConcurrent
	}
	if s.SpatialDistance == 0 {
		s.SpatialDistance = DefaultSpatialDistance
	}
	if s.SampleRate == 0 {
		s.SampleRate = DefaultSampleRate
	}

	att := &cfg.Environment.Attenuation
	def := spatial.DefaultAttenuation()
	if att.Model == "" {
		att.Model = def.Model
	}
	if att.ReferenceDistance == 0 {
		att.ReferenceDistance = def.ReferenceDistance
	}
	if att.MaximumDistance == 0 {
		att.MaximumDistance = def.MaximumDistance
	}
	if att.RolloffFactor == 0 {
		att.RolloffFactor = def.RolloffFactor
	}

	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = BackendOto
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultOutputSampleRate
	}
	if cfg.Audio.BufferMillis == 0 {
		cfg.Audio.BufferMillis = DefaultBufferMillis
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Speech
	s := cfg.Speech
	if s.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("speech.pool_size must be >= 1, got %d", s.PoolSize))
	}
	if s.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("speech.max_concurrent must be >= 1, got %d", s.MaxConcurrent))
	} else if s.PoolSize >= 1 && s.MaxConcurrent > s.PoolSize {
		slog.Warn("speech.max_concurrent exceeds speech.pool_size; it will be clamped",
			"max_concurrent", s.MaxConcurrent,
			"pool_size", s.PoolSize,
		)
	}
	if s.SpatialDistance < 0 {
		errs = append(errs, fmt.Errorf("speech.spatial_distance must be >= 0, got %g", s.SpatialDistance))
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d is out of range [8000, 192000]", s.SampleRate))
	}
	if s.Volume != nil && *s.Volume < 0 {
		errs = append(errs, fmt.Errorf("speech.volume must be >= 0, got %g", *s.Volume))
	}
	if f := s.Voice.SpeedFactor; f != 0 && (f < 0.5 || f > 2.0) {
		errs = append(errs, fmt.Errorf("speech.voice.speed_factor %.2f is out of range [0.5, 2.0]", f))
	}

	// Environment
	if err := cfg.Environment.Attenuation.Attenuation().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("environment.attenuation: %w", err))
	}
	if err := cfg.Environment.Reverb.Reverb().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("environment.reverb: %w", err))
	}

	// Audio
	if cfg.Audio.Backend != "" && !cfg.Audio.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: oto, virtual", cfg.Audio.Backend))
	}
	if cfg.Audio.OutputSampleRate < 0 || cfg.Audio.BufferMillis < 0 {
		errs = append(errs, errors.New("audio.output_sample_rate and audio.buffer_ms must be >= 0"))
	}

	// Providers
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}

	// Triggers
	for i, tr := range cfg.Triggers {
		if tr.Phrase == "" {
			errs = append(errs, fmt.Errorf("triggers[%d].phrase is required", i))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
