package config

import "github.com/MrWong99/sensekit/pkg/spatial"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (pool size, backend, providers, listen address) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MaxConcurrentChanged bool
	NewMaxConcurrent     int

	SpatialDistanceChanged bool
	NewSpatialDistance     float64

	ListenerChanged bool
	NewListener     spatial.Listener

	AttenuationChanged bool
	NewAttenuation     spatial.Attenuation

	ReverbChanged bool
	NewReverb     spatial.Reverb

	// RestartRequired lists dotted paths of changed fields that are not
	// hot-reloadable.
	RestartRequired []string
}

// Empty reports whether d carries no hot-reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MaxConcurrentChanged && !d.SpatialDistanceChanged &&
		!d.ListenerChanged && !d.AttenuationChanged && !d.ReverbChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Speech.MaxConcurrent != new.Speech.MaxConcurrent {
		d.MaxConcurrentChanged = true
		d.NewMaxConcurrent = new.Speech.MaxConcurrent
	}
	if old.Speech.SpatialDistance != new.Speech.SpatialDistance {
		d.SpatialDistanceChanged = true
		d.NewSpatialDistance = new.Speech.SpatialDistance
	}

	if l := new.Environment.Listener.Listener(); old.Environment.Listener.Listener() != l {
		d.ListenerChanged = true
		d.NewListener = l
	}
	if a := new.Environment.Attenuation.Attenuation(); old.Environment.Attenuation.Attenuation() != a {
		d.AttenuationChanged = true
		d.NewAttenuation = a
	}
	if r := new.Environment.Reverb.Reverb(); old.Environment.Reverb.Reverb() != r {
		d.ReverbChanged = true
		d.NewReverb = r
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("speech.pool_size", old.Speech.PoolSize != new.Speech.PoolSize)
	restart("speech.overlap", old.Speech.Overlap != new.Speech.Overlap)
	restart("speech.sample_rate", old.Speech.SampleRate != new.Speech.SampleRate)
	restart("speech.voice", old.Speech.Voice != new.Speech.Voice)
	restart("audio", old.Audio != new.Audio)
	restart("providers.tts", !sameEntry(old.Providers.TTS, new.Providers.TTS))
	restart("providers.tts_fallbacks", !sameEntries(old.Providers.TTSFallbacks, new.Providers.TTSFallbacks))

	return d
}

// sameEntry compares the scalar fields of two provider entries. Options maps
// are not compared.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}
