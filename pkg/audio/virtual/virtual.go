// Package virtual provides a headless [audio.Graph]. Nothing is rendered to a
// device: each scheduled buffer "plays" for its real duration (optionally
// sped up) and then fires its completion callback. It is used on hosts
// without an audio device and in integration tests that need realistic
// asynchronous completion.
package virtual

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/spatial"
)

var (
	_ audio.Graph      = (*Graph)(nil)
	_ audio.PlayerNode = (*Player)(nil)
)

// Option is a functional option for [New].
type Option func(*Graph)

// WithSpeed divides every buffer's playback time by factor. Values <= 0 are
// ignored.
func WithSpeed(factor float64) Option {
	return func(g *Graph) {
		if factor > 0 {
			g.speed = factor
		}
	}
}

// Graph is a headless [audio.Graph].
type Graph struct {
	mu      sync.Mutex
	env     *audio.Environment
	routes  audio.Routes
	speed   float64
	next    int
	running bool
}

// New creates a stopped virtual graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		env:   audio.NewEnvironment("mixer"),
		speed: 1,
	}
	for _, o := range opts {
		o(g)
	}
	g.routes.Attach(g.env.ID())
	return g
}

func (g *Graph) NewPlayer() (audio.PlayerNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := &Player{id: fmt.Sprintf("virtual-%d", g.next), graph: g}
	g.next++
	return p, nil
}

func (g *Graph) Mixer() audio.SpatialMixer { return g.env }

func (g *Graph) Attach(n audio.Node) error {
	g.routes.Attach(n.ID())
	return nil
}

func (g *Graph) Connect(src, dst audio.Node, f audio.Format) error {
	return g.routes.Connect(src.ID(), dst.ID(), f)
}

func (g *Graph) Disconnect(n audio.Node) error {
	g.routes.Disconnect(n.ID())
	return nil
}

func (g *Graph) Start() error {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()
	return nil
}

func (g *Graph) Stop() error {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	return nil
}

func (g *Graph) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// ErrNotConnected is returned when a player is scheduled before being routed
// to the mixer.
var ErrNotConnected = errors.New("virtual: player is not connected")

type scheduled struct {
	buf    *audio.Buffer
	onDone func()
}

// Player is a virtual [audio.PlayerNode].
type Player struct {
	id    string
	graph *Graph

	mu      sync.Mutex
	params  spatial.Params
	queue   []scheduled
	playing bool
	timer   *time.Timer
	epoch   uint64
}

func (p *Player) ID() string { return p.id }

func (p *Player) SetSpatial(params spatial.Params) {
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
}

func (p *Player) Spatial() spatial.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

func (p *Player) Schedule(buf *audio.Buffer, onDone func()) error {
	if _, ok := p.graph.routes.Lookup(p.id); !ok {
		return ErrNotConnected
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, scheduled{buf: buf, onDone: onDone})
	if p.playing {
		p.startLocked()
	}
	return nil
}

func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.playing = true
	env := p.graph.env.Snapshot()
	d := env.Listener.Relative(p.params.Point).Len()
	slog.Debug("virtual: play",
		"node", p.id,
		"point", p.params.Point.String(),
		"gain", env.Attenuation.Gain(d),
	)
	p.startLocked()
}

// startLocked arms the completion timer for the queue head. p.mu must be held.
func (p *Player) startLocked() {
	if p.timer != nil || len(p.queue) == 0 {
		return
	}
	d := time.Duration(float64(p.queue[0].buf.Duration()) / p.graph.speed)
	epoch := p.epoch
	p.timer = time.AfterFunc(d, func() { p.finish(epoch) })
}

func (p *Player) finish(epoch uint64) {
	p.mu.Lock()
	if epoch != p.epoch || len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}
	s := p.queue[0]
	p.queue = p.queue[1:]
	p.timer = nil
	if len(p.queue) == 0 {
		p.playing = false
	} else {
		p.startLocked()
	}
	p.mu.Unlock()

	if s.onDone != nil {
		s.onDone()
	}
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.epoch++
	p.queue = nil
	p.playing = false
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
