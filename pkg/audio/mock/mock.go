// Package mock provides in-memory implementations of [audio.Graph] and
// [audio.PlayerNode] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Playback never completes on its own: call [Player.Finish] to simulate the
// backend reaching the end of the oldest scheduled buffer.
//
//	g := mock.NewGraph()
//	sched, _ := speech.New(g, ttsProvider)
//	sched.Speak("hello")
//	// ... wait until g.Players()[0].Pending() == 1
//	g.Players()[0].Finish()
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/spatial"
)

var (
	_ audio.Graph      = (*Graph)(nil)
	_ audio.PlayerNode = (*Player)(nil)
)

// ─── Graph ────────────────────────────────────────────────────────────────────

// ConnectCall records a single invocation of [Graph.Connect].
type ConnectCall struct {
	Src    string
	Dst    string
	Format audio.Format
	// Params is the source's spatial state at connect time, when the source is
	// a [Player].
	Params spatial.Params
}

// Graph is a mock implementation of [audio.Graph]. The zero value is ready to
// use; [NewGraph] is provided for symmetry with real backends.
type Graph struct {
	mu sync.Mutex

	// StartErr is returned by [Graph.Start].
	StartErr error

	// NewPlayerErr is returned by [Graph.NewPlayer].
	NewPlayerErr error

	// ConnectErr is returned by [Graph.Connect] before any routing is recorded.
	ConnectErr error

	// AttachCalls records the node IDs passed to Attach, in order.
	AttachCalls []string

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall

	// DisconnectCalls records the node IDs passed to Disconnect, in order.
	DisconnectCalls []string

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	env     *audio.Environment
	routes  audio.Routes
	players []*Player
	running bool
}

// NewGraph returns an empty mock graph.
func NewGraph() *Graph { return &Graph{} }

func (g *Graph) mixer() *audio.Environment {
	if g.env == nil {
		g.env = audio.NewEnvironment("mixer")
		g.routes.Attach(g.env.ID())
	}
	return g.env
}

// NewPlayer implements [audio.Graph]. The returned node is a [*Player].
func (g *Graph) NewPlayer() (audio.PlayerNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.NewPlayerErr != nil {
		return nil, g.NewPlayerErr
	}
	p := &Player{id: fmt.Sprintf("player-%d", len(g.players))}
	g.players = append(g.players, p)
	return p, nil
}

// Mixer implements [audio.Graph].
func (g *Graph) Mixer() audio.SpatialMixer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mixer()
}

// Environment returns the concrete mixer so tests can inspect listener state.
func (g *Graph) Environment() *audio.Environment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mixer()
}

// Attach implements [audio.Graph].
func (g *Graph) Attach(n audio.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mixer()
	g.AttachCalls = append(g.AttachCalls, n.ID())
	g.routes.Attach(n.ID())
	return nil
}

// Connect implements [audio.Graph].
func (g *Graph) Connect(src, dst audio.Node, f audio.Format) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mixer()
	call := ConnectCall{Src: src.ID(), Dst: dst.ID(), Format: f}
	if p, ok := src.(audio.PlayerNode); ok {
		call.Params = p.Spatial()
	}
	g.ConnectCalls = append(g.ConnectCalls, call)
	if g.ConnectErr != nil {
		return g.ConnectErr
	}
	return g.routes.Connect(src.ID(), dst.ID(), f)
}

// Disconnect implements [audio.Graph].
func (g *Graph) Disconnect(n audio.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DisconnectCalls = append(g.DisconnectCalls, n.ID())
	g.routes.Disconnect(n.ID())
	return nil
}

// IsConnected reports whether the node with id currently routes to the mixer.
func (g *Graph) IsConnected(id string) bool {
	_, ok := g.routes.Lookup(id)
	return ok
}

// Start implements [audio.Graph].
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallCountStart++
	if g.StartErr != nil {
		return g.StartErr
	}
	g.running = true
	return nil
}

// Stop implements [audio.Graph].
func (g *Graph) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CallCountStop++
	g.running = false
	return nil
}

// IsRunning implements [audio.Graph].
func (g *Graph) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Players returns every player created by the graph, in creation order.
func (g *Graph) Players() []*Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Player, len(g.players))
	copy(out, g.players)
	return out
}

// Pending returns the total number of scheduled, unfinished buffers across all
// players.
func (g *Graph) Pending() int {
	n := 0
	for _, p := range g.Players() {
		n += p.Pending()
	}
	return n
}

// FinishAll completes the oldest buffer on every player that has one and
// returns how many completions were fired.
func (g *Graph) FinishAll() int {
	n := 0
	for _, p := range g.Players() {
		if p.Finish() {
			n++
		}
	}
	return n
}

// ─── Player ───────────────────────────────────────────────────────────────────

type scheduled struct {
	buf    *audio.Buffer
	onDone func()
}

// Player is a mock implementation of [audio.PlayerNode].
type Player struct {
	mu sync.Mutex

	// ScheduleErr is returned by [Player.Schedule].
	ScheduleErr error

	// ScheduleCalls records every buffer passed to Schedule.
	ScheduleCalls []*audio.Buffer

	// CallCountPlay records how many times Play was called.
	CallCountPlay int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	id        string
	params    spatial.Params
	playing   bool
	pending   []scheduled
	discarded []scheduled
}

// ID implements [audio.Node].
func (p *Player) ID() string { return p.id }

// SetSpatial implements [audio.PlayerNode].
func (p *Player) SetSpatial(params spatial.Params) {
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
}

// Spatial implements [audio.PlayerNode].
func (p *Player) Spatial() spatial.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// Schedule implements [audio.PlayerNode].
func (p *Player) Schedule(buf *audio.Buffer, onDone func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ScheduleCalls = append(p.ScheduleCalls, buf)
	if p.ScheduleErr != nil {
		return p.ScheduleErr
	}
	p.pending = append(p.pending, scheduled{buf: buf, onDone: onDone})
	return nil
}

// Play implements [audio.PlayerNode].
func (p *Player) Play() {
	p.mu.Lock()
	p.CallCountPlay++
	p.playing = true
	p.mu.Unlock()
}

// Stop implements [audio.PlayerNode]. Pending buffers are discarded without
// invoking their completion callbacks; see [Player.FinishDiscarded].
func (p *Player) Stop() {
	p.mu.Lock()
	p.CallCountStop++
	p.playing = false
	p.discarded = append(p.discarded, p.pending...)
	p.pending = nil
	p.mu.Unlock()
}

// FinishDiscarded fires the completion callbacks of every buffer discarded by
// Stop, simulating a backend whose completion raced with the stop. It returns
// the number of callbacks fired.
func (p *Player) FinishDiscarded() int {
	p.mu.Lock()
	stale := p.discarded
	p.discarded = nil
	p.mu.Unlock()

	for _, s := range stale {
		if s.onDone != nil {
			s.onDone()
		}
	}
	return len(stale)
}

// IsPlaying implements [audio.PlayerNode].
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Pending returns the number of scheduled buffers not yet finished.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Finish simulates the oldest scheduled buffer finishing playback. It invokes
// the buffer's completion callback outside the lock and reports whether a
// buffer was pending. The player stops playing once its queue is empty.
func (p *Player) Finish() bool {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return false
	}
	s := p.pending[0]
	p.pending = p.pending[1:]
	if len(p.pending) == 0 {
		p.playing = false
	}
	p.mu.Unlock()

	if s.onDone != nil {
		s.onDone()
	}
	return true
}
