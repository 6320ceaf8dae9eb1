// Package config provides the configuration schema, loader, and provider registry
// for the sensekit spatial speech service.
package config

import (
	"github.com/MrWong99/sensekit/pkg/provider/tts"
	"github.com/MrWong99/sensekit/pkg/spatial"
)

// LogLevel controls log verbosity for the sensekit server.
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

// Backend selects the audio graph implementation.
type Backend string

const (
	// BackendOto renders to the default output device.
	BackendOto Backend = "oto"

	// BackendVirtual renders nowhere; playback completes after the buffer's
	// duration. Useful on headless hosts.
	BackendVirtual Backend = "virtual"
)

// IsValid reports whether b is a recognised audio backend.
func (b Backend) IsValid() bool {
	return b == BackendOto || b == BackendVirtual
}

// Config is the root configuration structure for sensekit.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Speech      SpeechConfig      `yaml:"speech"`
	Environment EnvironmentConfig `yaml:"environment"`
	Audio       AudioConfig       `yaml:"audio"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Triggers    []TriggerConfig   `yaml:"triggers"`
}

// ServerConfig holds network and logging settings for the sensekit server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// SpeechConfig tunes the speech scheduler.
type SpeechConfig struct {
	// PoolSize is the number of spatial channels. Default 5.
	PoolSize int `yaml:"pool_size"`

	// MaxConcurrent caps simultaneously active channels. Default 3.
	MaxConcurrent int `yaml:"max_concurrent"`

	// SpatialDistance multiplies every item position. Default 1.0.
	SpatialDistance float64 `yaml:"spatial_distance"`

	// Overlap lets items play simultaneously up to MaxConcurrent instead of
	// one after another.
	Overlap bool `yaml:"overlap"`

	// SampleRate is the PCM rate requested from TTS providers. Default 22050.
	SampleRate int `yaml:"sample_rate"`

	// Volume is a linear gain applied to synthesised audio. Nil means 1.0.
	Volume *float64 `yaml:"volume"`

	// Voice selects the TTS voice.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice parameters.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Language is a BCP-47 language hint (e.g., "en-US").
	Language string `yaml:"language"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// Profile converts v into a [tts.VoiceProfile] for the named provider.
func (v VoiceConfig) Profile(provider string) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          v.VoiceID,
		Provider:    provider,
		Language:    v.Language,
		SpeedFactor: v.SpeedFactor,
	}
}

// EnvironmentConfig describes the listener and the room model.
type EnvironmentConfig struct {
	Listener    ListenerConfig    `yaml:"listener"`
	Attenuation AttenuationConfig `yaml:"attenuation"`
	Reverb      ReverbConfig      `yaml:"reverb"`
}

// ListenerConfig is the initial listener pose.
type ListenerConfig struct {
	Position spatial.Vec3 `yaml:"position"`

	// Forward is the facing direction. Default +Z.
	Forward spatial.Vec3 `yaml:"forward"`
}

// Listener converts l to a [spatial.Listener].
func (l ListenerConfig) Listener() spatial.Listener {
	out := spatial.DefaultListener()
	out.Position = l.Position
	if !l.Forward.IsZero() {
		out.Forward = l.Forward
	}
	return out
}

// AttenuationConfig mirrors [spatial.Attenuation].
type AttenuationConfig struct {
	Model             spatial.AttenuationModel `yaml:"model"`
	ReferenceDistance float64                  `yaml:"reference_distance"`
	MaximumDistance   float64                  `yaml:"maximum_distance"`
	RolloffFactor     float64                  `yaml:"rolloff_factor"`
}

// Attenuation converts a to a [spatial.Attenuation].
func (a AttenuationConfig) Attenuation() spatial.Attenuation {
	return spatial.Attenuation{
		Model:             a.Model,
		ReferenceDistance: a.ReferenceDistance,
		MaximumDistance:   a.MaximumDistance,
		RolloffFactor:     a.RolloffFactor,
	}
}

// ReverbConfig mirrors [spatial.Reverb]. Enabled defaults to true.
type ReverbConfig struct {
	Enabled *bool                `yaml:"enabled"`
	Preset  spatial.ReverbPreset `yaml:"preset"`
	Level   *float64             `yaml:"level"`
}

// Reverb converts r to a [spatial.Reverb], filling unset fields from
// [spatial.DefaultReverb].
func (r ReverbConfig) Reverb() spatial.Reverb {
	out := spatial.DefaultReverb()
	if r.Enabled != nil {
		out.Enabled = *r.Enabled
	}
	if r.Preset != "" {
		out.Preset = r.Preset
	}
	if r.Level != nil {
		out.Level = *r.Level
	}
	return out
}

// AudioConfig selects and tunes the audio backend.
type AudioConfig struct {
	// Backend is "oto" (default) or "virtual".
	Backend Backend `yaml:"backend"`

	// OutputSampleRate is the device mix rate. Default 48000.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// BufferMillis is the device buffer length. Default 50.
	BufferMillis int `yaml:"buffer_ms"`
}

// ProvidersConfig declares the TTS provider and its ordered fallbacks. Each
// entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "elevenlabs", "coqui").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// TriggerConfig logs a notice whenever an item containing Phrase is
// dispatched.
type TriggerConfig struct {
	Phrase        string `yaml:"phrase"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}
