package speech

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/provider/tts"
)

const (
	DefaultPoolSize      = 5
	DefaultMaxConcurrent = 3
	DefaultDistanceScale = 1.0
	DefaultSampleRate    = 22050
)

type options struct {
	poolSize      int
	maxConcurrent int
	distanceScale float64
	overlap       bool
	sampleRate    int
	voice         tts.VoiceProfile
	volume        float64
	logger        *slog.Logger
	observer      Observer
	triggers      []Trigger
}

func defaultOptions() options {
	return options{
		poolSize:      DefaultPoolSize,
		maxConcurrent: DefaultMaxConcurrent,
		distanceScale: DefaultDistanceScale,
		sampleRate:    DefaultSampleRate,
		volume:        1,
		logger:        slog.Default(),
		observer:      NopObserver{},
	}
}

func (o *options) validate() error {
	if o.poolSize < 1 {
		return fmt.Errorf("%w: pool size %d must be at least 1", ErrInvalidOption, o.poolSize)
	}
	if o.distanceScale < 0 {
		return fmt.Errorf("%w: distance scale %g must not be negative", ErrInvalidOption, o.distanceScale)
	}
	if o.volume < 0 {
		return fmt.Errorf("%w: volume %g must not be negative", ErrInvalidOption, o.volume)
	}
	if err := audio.MonoFormat(o.sampleRate).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	o.maxConcurrent = clampConcurrency(o.maxConcurrent, o.poolSize)
	return nil
}

func clampConcurrency(n, poolSize int) int {
	return max(1, min(n, poolSize))
}

// Option configures a [Scheduler].
type Option func(*options)

// WithPoolSize sets the number of spatial channels. Default 5.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithMaxConcurrent caps how many channels may be active at once. The value
// is clamped to [1, pool size]. Default 3.
func WithMaxConcurrent(n int) Option {
	return func(o *options) { o.maxConcurrent = n }
}

// WithDistanceScale multiplies every item position before rendering.
// Default 1.
func WithDistanceScale(f float64) Option {
	return func(o *options) { o.distanceScale = f }
}

// WithOverlap releases the processing flag once an item's audio is scheduled
// rather than when its playback completes, so up to the concurrency cap
// items play at the same time. Without it items play one after another.
func WithOverlap(enabled bool) Option {
	return func(o *options) { o.overlap = enabled }
}

// WithSampleRate sets the sample rate of the mono PCM the provider emits.
// Default 22050.
func WithSampleRate(hz int) Option {
	return func(o *options) { o.sampleRate = hz }
}

// WithVoice sets the voice passed to the provider.
func WithVoice(v tts.VoiceProfile) Option {
	return func(o *options) { o.voice = v }
}

// WithVolume sets a linear gain applied to synthesised audio. Default 1.
func WithVolume(v float64) Option {
	return func(o *options) { o.volume = v }
}

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithTrigger registers a phrase trigger. May be repeated.
func WithTrigger(t Trigger) Option {
	return func(o *options) { o.triggers = append(o.triggers, t) }
}
