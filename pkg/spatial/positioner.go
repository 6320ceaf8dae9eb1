package spatial

// RenderingMode selects the spatialisation algorithm a backend applies to a
// source.
type RenderingMode int

const (
	// RenderingEqualPower pans with an equal-power law only.
	RenderingEqualPower RenderingMode = iota
	// RenderingSphericalHead adds head shadowing of the far ear.
	RenderingSphericalHead
	// RenderingHRTF requests full HRTF rendering where the backend supports it.
	RenderingHRTF
)

func (m RenderingMode) String() string {
	switch m {
	case RenderingEqualPower:
		return "equal_power"
	case RenderingSphericalHead:
		return "spherical_head"
	case RenderingHRTF:
		return "hrtf"
	default:
		return "unknown"
	}
}

// DefaultReverbBlend is the per-source reverb send applied to every speech
// channel.
const DefaultReverbBlend = 0.2

// Params are the rendering parameters applied to a player node.
type Params struct {
	// Point is the source position in listener space.
	Point       Vec3
	Mode        RenderingMode
	ReverbBlend float64
}

// Position maps a logical position to rendering parameters by multiplying
// every axis by distanceScale. It has no side effects.
func Position(logical Vec3, distanceScale float64) Params {
	return Params{
		Point:       logical.Scale(distanceScale),
		Mode:        RenderingSphericalHead,
		ReverbBlend: DefaultReverbBlend,
	}
}
