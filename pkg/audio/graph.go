package audio

import "github.com/MrWong99/sensekit/pkg/spatial"

// Node is a vertex of an audio [Graph].
type Node interface {
	// ID is unique within the graph that created the node.
	ID() string
}

// PlayerNode plays scheduled buffers through its spatial parameters.
//
// Implementations must be safe for concurrent use.
type PlayerNode interface {
	Node

	// SetSpatial replaces the node's rendering parameters. Backends read the
	// new values the next time the node is connected.
	SetSpatial(p spatial.Params)

	// Spatial returns the parameters last passed to SetSpatial.
	Spatial() spatial.Params

	// Schedule appends buf to the node's playback queue. onDone is called
	// exactly once, from a backend goroutine, after the buffer has been
	// rendered in full. It is never called for buffers discarded by Stop.
	Schedule(buf *Buffer, onDone func()) error

	// Play starts rendering scheduled buffers.
	Play()

	// Stop halts playback and discards every scheduled buffer.
	Stop()

	// IsPlaying reports whether the node is currently rendering.
	IsPlaying() bool
}

// SpatialMixer is the environment node every player connects to. It owns the
// listener pose and the room model shared by all sources.
//
// Implementations must be safe for concurrent use.
type SpatialMixer interface {
	Node

	Listener() spatial.Listener
	SetListener(l spatial.Listener)

	DistanceAttenuation() spatial.Attenuation
	SetDistanceAttenuation(a spatial.Attenuation)

	Reverb() spatial.Reverb
	SetReverb(r spatial.Reverb)
}

// Graph is an audio processing graph: player nodes attach to it, connect to
// the [SpatialMixer] and are rendered to an output device once the graph is
// started.
type Graph interface {
	// NewPlayer creates an unattached player node.
	NewPlayer() (PlayerNode, error)

	// Mixer returns the graph's environment node. It is attached and routed to
	// the output by the backend.
	Mixer() SpatialMixer

	// Attach registers n with the graph. Attaching twice is a no-op.
	Attach(n Node) error

	// Connect routes src into dst with format f. An existing route from src is
	// replaced.
	Connect(src, dst Node, f Format) error

	// Disconnect removes every route out of n. Disconnecting an unrouted node
	// is a no-op.
	Disconnect(n Node) error

	// Start begins rendering to the output device.
	Start() error

	// Stop halts rendering. The graph may be started again.
	Stop() error

	// IsRunning reports whether the graph is rendering.
	IsRunning() bool
}
