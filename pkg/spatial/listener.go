package spatial

// WorldUp is the fixed up vector used for listener orientation.
var WorldUp = Vec3{0, 1, 0}

// Listener is the position and facing of the listener in the environment.
type Listener struct {
	Position Vec3
	// Forward is the direction the listener faces. It need not be normalised.
	Forward Vec3
	// Up is the listener's up vector. A zero value means [WorldUp].
	Up Vec3
}

// DefaultListener is a listener at the origin facing +Z.
func DefaultListener() Listener {
	return Listener{Position: Center, Forward: Front, Up: WorldUp}
}

// Basis returns an orthonormal (right, up, forward) frame for the listener.
// Degenerate orientations fall back to the default facing.
func (l Listener) Basis() (right, up, forward Vec3) {
	forward = l.Forward.Normalize()
	if forward.IsZero() {
		forward = Front
	}
	up = l.Up
	if up.IsZero() {
		up = WorldUp
	}
	right = forward.Cross(up).Scale(-1).Normalize()
	if right.IsZero() {
		// forward is parallel to up; pick any perpendicular.
		right = Vec3{1, 0, 0}
	}
	up = right.Cross(forward).Scale(-1).Normalize()
	return right, up, forward
}

// Relative expresses the world point p in the listener's frame, where X is
// to the listener's right, Y is above and Z is in front.
func (l Listener) Relative(p Vec3) Vec3 {
	right, up, forward := l.Basis()
	d := p.Sub(l.Position)
	return Vec3{X: d.Dot(right), Y: d.Dot(up), Z: d.Dot(forward)}
}
