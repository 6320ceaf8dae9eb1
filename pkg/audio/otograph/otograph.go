// Package otograph implements [audio.Graph] on top of
// github.com/ebitengine/oto/v3. Spatialisation happens in software: every
// player is panned with an equal-power law (plus head shadowing for the
// spherical-head mode), attenuated by distance and sent through a short
// comb-filter reverb before being mixed to the stereo output device.
//
// oto permits a single context per process, so only one [Graph] may exist at
// a time.
package otograph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/spatial"
)

var (
	_ audio.Graph      = (*Graph)(nil)
	_ audio.PlayerNode = (*Player)(nil)
)

// ErrDeviceUnavailable is returned by [New] when the output device cannot be
// opened.
var ErrDeviceUnavailable = errors.New("otograph: audio device unavailable")

const (
	defaultSampleRate   = 48000
	defaultBufferSize   = 50 * time.Millisecond
	defaultReadyTimeout = 5 * time.Second
)

// Option is a functional option for [New].
type Option func(*options)

type options struct {
	sampleRate   int
	bufferSize   time.Duration
	readyTimeout time.Duration
}

// WithSampleRate sets the device sample rate. Defaults to 48000 Hz.
func WithSampleRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.sampleRate = rate
		}
	}
}

// WithBufferSize sets the device buffer duration. Defaults to 50 ms.
func WithBufferSize(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.bufferSize = d
		}
	}
}

// WithReadyTimeout bounds how long [New] waits for the device to become
// ready. Defaults to 5 s.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readyTimeout = d
		}
	}
}

// Graph renders connected players to the default output device.
type Graph struct {
	ctx  *oto.Context
	out  *oto.Player
	rend *renderer
	env  *audio.Environment

	routes audio.Routes

	mu      sync.Mutex
	next    int
	running bool
}

// New opens the default output device and returns a stopped graph.
func New(opts ...Option) (*Graph, error) {
	o := options{
		sampleRate:   defaultSampleRate,
		bufferSize:   defaultBufferSize,
		readyTimeout: defaultReadyTimeout,
	}
	for _, fn := range opts {
		fn(&o)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   o.sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	select {
	case <-ready:
	case <-time.After(o.readyTimeout):
		return nil, fmt.Errorf("%w: device not ready after %v", ErrDeviceUnavailable, o.readyTimeout)
	}

	g := &Graph{
		ctx: ctx,
		env: audio.NewEnvironment("mixer"),
	}
	g.routes.Attach(g.env.ID())
	g.rend = &renderer{rate: o.sampleRate, env: g.env, routes: &g.routes}
	g.out = ctx.NewPlayer(g.rend)

	slog.Debug("otograph: device ready",
		"sample_rate", o.sampleRate,
		"buffer_size", o.bufferSize,
	)
	return g, nil
}

func (g *Graph) NewPlayer() (audio.PlayerNode, error) {
	g.mu.Lock()
	id := fmt.Sprintf("oto-%d", g.next)
	g.next++
	g.mu.Unlock()

	p := &Player{id: id}
	g.rend.add(p)
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

// Start resumes the device and begins pulling frames from the mixer.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil
	}
	if err := g.ctx.Resume(); err != nil {
		return fmt.Errorf("otograph: resume: %w", err)
	}
	if err := g.ctx.Err(); err != nil {
		return fmt.Errorf("otograph: device error: %w", err)
	}
	g.out.Play()
	g.running = true
	return nil
}

// Stop pauses output and suspends the device.
func (g *Graph) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return nil
	}
	g.out.Pause()
	g.running = false
	if err := g.ctx.Suspend(); err != nil {
		return fmt.Errorf("otograph: suspend: %w", err)
	}
	return nil
}

func (g *Graph) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running && g.ctx.Err() == nil
}

// ── Player ───────────────────────────────────────────────────────────────────

type scheduled struct {
	buf    *audio.Buffer
	onDone func()
}

// Player is a software-spatialised [audio.PlayerNode].
type Player struct {
	id string

	mu      sync.Mutex
	params  spatial.Params
	queue   []scheduled
	pos     float64
	playing bool

	delay    []float32
	delayIdx int
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
	if buf == nil || buf.SampleRate <= 0 {
		return fmt.Errorf("otograph: %w: empty buffer", audio.ErrInvalidFormat)
	}
	p.mu.Lock()
	p.queue = append(p.queue, scheduled{buf: buf, onDone: onDone})
	p.mu.Unlock()
	return nil
}

func (p *Player) Play() {
	p.mu.Lock()
	p.playing = len(p.queue) > 0
	p.mu.Unlock()
}

func (p *Player) Stop() {
	p.mu.Lock()
	p.queue = nil
	p.pos = 0
	p.playing = false
	clear(p.delay)
	p.mu.Unlock()
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// render adds len(mix)/2 frames of this player's output to mix and returns
// the completion callbacks of buffers that ended.
func (p *Player) render(mix []float32, rate int, state audio.EnvironmentState) []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return nil
	}

	gl, gr := gains(p.params, state)
	wet := float32(state.Reverb.WetGain() * p.params.ReverbBlend)
	if n := reverbDelay(rate, state.Reverb.Preset); len(p.delay) != n {
		p.delay = make([]float32, n)
		p.delayIdx = 0
	}

	var done []func()
	frames := len(mix) / 2
	for i := 0; i < frames && len(p.queue) > 0; i++ {
		cur := p.queue[0].buf
		s := sampleAt(cur.Samples, p.pos)
		p.pos += float64(cur.SampleRate) / float64(rate)
		if int(p.pos) >= len(cur.Samples) {
			if fn := p.queue[0].onDone; fn != nil {
				done = append(done, fn)
			}
			p.queue = p.queue[1:]
			p.pos = 0
		}

		echo := p.delay[p.delayIdx]
		p.delay[p.delayIdx] = s + echo*reverbFeedback
		p.delayIdx = (p.delayIdx + 1) % len(p.delay)

		v := s + echo*wet
		mix[2*i] += v * gl
		mix[2*i+1] += v * gr
	}
	if len(p.queue) == 0 {
		p.playing = false
		clear(p.delay)
	}
	return done
}

// sampleAt linearly interpolates samples at fractional index pos.
func sampleAt(samples []float32, pos float64) float32 {
	i := int(pos)
	if i >= len(samples) {
		return 0
	}
	s0 := samples[i]
	if i+1 >= len(samples) {
		return s0
	}
	frac := float32(pos - float64(i))
	return s0*(1-frac) + samples[i+1]*frac
}
