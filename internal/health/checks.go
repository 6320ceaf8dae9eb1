package health

import (
	"context"
	"errors"

	"github.com/MrWong99/sensekit/pkg/audio"
)

var (
	errEngineStopped = errors.New("audio engine not running")
	errNoSynthesis   = errors.New("every tts backend circuit is open")
)

// AudioEngine reports whether g is rendering.
func AudioEngine(g audio.Graph) Checker {
	return Checker{
		Name: "audio",
		Check: func(context.Context) error {
			if !g.IsRunning() {
				return errEngineStopped
			}
			return nil
		},
	}
}

// HealthReporter is implemented by components that track their own
// availability, such as a TTS failover group.
type HealthReporter interface {
	Healthy() bool
}

// Synthesis reports whether at least one TTS backend accepts calls. It is
// optional: open breakers recover on their own, and the queue keeps
// accepting items meanwhile.
func Synthesis(r HealthReporter) Checker {
	return Checker{
		Name:     "tts",
		Optional: true,
		Check: func(context.Context) error {
			if !r.Healthy() {
				return errNoSynthesis
			}
			return nil
		},
	}
}
