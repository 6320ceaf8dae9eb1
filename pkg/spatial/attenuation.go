package spatial

import (
	"fmt"
	"math"
)

// AttenuationModel selects the distance attenuation curve.
type AttenuationModel string

const (
	AttenuationExponential AttenuationModel = "exponential"
	AttenuationInverse     AttenuationModel = "inverse"
	AttenuationLinear      AttenuationModel = "linear"
)

// Attenuation describes how source gain falls with distance from the
// listener. Distances below ReferenceDistance play at full gain; distances
// beyond MaximumDistance are attenuated as if at MaximumDistance.
type Attenuation struct {
	Model             AttenuationModel
	ReferenceDistance float64
	MaximumDistance   float64
	RolloffFactor     float64
}

// DefaultAttenuation is the environment's default: exponential rolloff with
// reference distance 1, maximum distance 10 and rolloff factor 1.
func DefaultAttenuation() Attenuation {
	return Attenuation{
		Model:             AttenuationExponential,
		ReferenceDistance: 1,
		MaximumDistance:   10,
		RolloffFactor:     1,
	}
}

// Validate reports whether the parameters describe a usable curve.
func (a Attenuation) Validate() error {
	switch a.Model {
	case AttenuationExponential, AttenuationInverse, AttenuationLinear:
	default:
		return fmt.Errorf("spatial: unknown attenuation model %q", a.Model)
	}
	if a.ReferenceDistance <= 0 {
		return fmt.Errorf("spatial: reference distance must be > 0, got %g", a.ReferenceDistance)
	}
	if a.MaximumDistance < a.ReferenceDistance {
		return fmt.Errorf("spatial: maximum distance %g is below reference distance %g", a.MaximumDistance, a.ReferenceDistance)
	}
	if a.RolloffFactor < 0 {
		return fmt.Errorf("spatial: rolloff factor must be >= 0, got %g", a.RolloffFactor)
	}
	return nil
}

// Gain returns the linear gain in [0, 1] for a source at distance d.
func (a Attenuation) Gain(d float64) float64 {
	ref := a.ReferenceDistance
	if ref <= 0 {
		ref = 1
	}
	maxD := math.Max(a.MaximumDistance, ref)
	d = math.Min(math.Max(d, ref), maxD)

	var g float64
	switch a.Model {
	case AttenuationInverse:
		g = ref / (ref + a.RolloffFactor*(d-ref))
	case AttenuationLinear:
		if maxD == ref {
			return 1
		}
		g = 1 - a.RolloffFactor*(d-ref)/(maxD-ref)
	default:
		g = math.Pow(d/ref, -a.RolloffFactor)
	}
	return math.Min(math.Max(g, 0), 1)
}

// ReverbPreset names a room character for the environment reverb.
type ReverbPreset string

const (
	ReverbSmallRoom  ReverbPreset = "small_room"
	ReverbMediumRoom ReverbPreset = "medium_room"
	ReverbLargeRoom  ReverbPreset = "large_room"
	ReverbHall       ReverbPreset = "hall"
)

// Reverb holds the environment reverb settings.
type Reverb struct {
	Enabled bool
	Preset  ReverbPreset
	// Level is the wet level in decibels, in [-40, 40].
	Level float64
}

// DefaultReverb enables a small-room reverb at level 20 dB.
func DefaultReverb() Reverb {
	return Reverb{Enabled: true, Preset: ReverbSmallRoom, Level: 20}
}

// Seconds returns the decay time for the preset.
func (p ReverbPreset) Seconds() float64 {
	switch p {
	case ReverbMediumRoom:
		return 0.6
	case ReverbLargeRoom:
		return 1.0
	case ReverbHall:
		return 1.8
	default:
		return 0.3
	}
}

// Validate reports whether the reverb settings are in range.
func (r Reverb) Validate() error {
	switch r.Preset {
	case "", ReverbSmallRoom, ReverbMediumRoom, ReverbLargeRoom, ReverbHall:
	default:
		return fmt.Errorf("spatial: unknown reverb preset %q", r.Preset)
	}
	if r.Level < -40 || r.Level > 40 {
		return fmt.Errorf("spatial: reverb level %g outside [-40, 40]", r.Level)
	}
	return nil
}

// WetGain converts Level to a linear wet gain in [0, 1]. Disabled reverb
// yields 0.
func (r Reverb) WetGain() float64 {
	if !r.Enabled {
		return 0
	}
	// Map [-40, 40] dB onto [0, 1].
	return math.Min(math.Max((r.Level+40)/80, 0), 1)
}
