package audio

import (
	"sync"

	"github.com/MrWong99/sensekit/pkg/spatial"
)

var _ SpatialMixer = (*Environment)(nil)

// Environment is a [SpatialMixer] holding listener and room state behind a
// read/write lock. Backends embed it and read a consistent view with
// [Environment.Snapshot] while rendering.
type Environment struct {
	mu          sync.RWMutex
	id          string
	listener    spatial.Listener
	attenuation spatial.Attenuation
	reverb      spatial.Reverb
}

// EnvironmentState is a point-in-time copy of an [Environment].
type EnvironmentState struct {
	Listener    spatial.Listener
	Attenuation spatial.Attenuation
	Reverb      spatial.Reverb
}

// NewEnvironment returns an environment with the default listener,
// attenuation and reverb.
func NewEnvironment(id string) *Environment {
	return &Environment{
		id:          id,
		listener:    spatial.DefaultListener(),
		attenuation: spatial.DefaultAttenuation(),
		reverb:      spatial.DefaultReverb(),
	}
}

func (e *Environment) ID() string { return e.id }

func (e *Environment) Listener() spatial.Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listener
}

func (e *Environment) SetListener(l spatial.Listener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

func (e *Environment) DistanceAttenuation() spatial.Attenuation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attenuation
}

func (e *Environment) SetDistanceAttenuation(a spatial.Attenuation) {
	e.mu.Lock()
	e.attenuation = a
	e.mu.Unlock()
}

func (e *Environment) Reverb() spatial.Reverb {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reverb
}

func (e *Environment) SetReverb(r spatial.Reverb) {
	e.mu.Lock()
	e.reverb = r
	e.mu.Unlock()
}

// Snapshot returns all environment state under a single lock.
func (e *Environment) Snapshot() EnvironmentState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return EnvironmentState{Listener: e.listener, Attenuation: e.attenuation, Reverb: e.reverb}
}
