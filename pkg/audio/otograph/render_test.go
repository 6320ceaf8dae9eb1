package otograph

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/spatial"
)

func newTestRenderer(rate int) *renderer {
	env := audio.NewEnvironment("mixer")
	env.SetReverb(spatial.Reverb{})
	routes := &audio.Routes{}
	routes.Attach(env.ID())
	return &renderer{rate: rate, env: env, routes: routes}
}

func connect(t *testing.T, r *renderer, p *Player) {
	t.Helper()
	r.add(p)
	r.routes.Attach(p.id)
	if err := r.routes.Connect(p.id, r.env.ID(), audio.MonoFormat(r.rate)); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func constBuffer(n, rate int, v float32) *audio.Buffer {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return &audio.Buffer{Samples: s, SampleRate: rate}
}

func frame(b []byte, i int) (l, r float32) {
	l = math.Float32frombits(binary.LittleEndian.Uint32(b[i*8:]))
	r = math.Float32frombits(binary.LittleEndian.Uint32(b[i*8+4:]))
	return l, r
}

func TestGains(t *testing.T) {
	t.Parallel()

	state := audio.NewEnvironment("m").Snapshot()
	tests := []struct {
		name      string
		point     spatial.Vec3
		mode      spatial.RenderingMode
		wantLeft  bool
		wantRight bool
	}{
		{"right source favours right ear", spatial.Right, spatial.RenderingSphericalHead, false, true},
		{"left source favours left ear", spatial.Left, spatial.RenderingSphericalHead, true, false},
		{"front source is centred", spatial.Front, spatial.RenderingEqualPower, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, r := gains(spatial.Params{Point: tt.point, Mode: tt.mode}, state)
			switch {
			case tt.wantLeft && !(l > r):
				t.Errorf("left=%g right=%g, want left louder", l, r)
			case tt.wantRight && !(r > l):
				t.Errorf("left=%g right=%g, want right louder", l, r)
			case !tt.wantLeft && !tt.wantRight && math.Abs(float64(l-r)) > 1e-6:
				t.Errorf("left=%g right=%g, want equal", l, r)
			}
		})
	}
}

func TestGains_DistanceAttenuates(t *testing.T) {
	t.Parallel()

	state := audio.NewEnvironment("m").Snapshot()
	nearL, _ := gains(spatial.Params{Point: spatial.Vec3{Z: 1}}, state)
	farL, _ := gains(spatial.Params{Point: spatial.Vec3{Z: 4}}, state)
	if !(farL < nearL) {
		t.Errorf("far gain %g should be below near gain %g", farL, nearL)
	}
}

func TestRenderer_SilentWithoutPlayers(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(1000)
	buf := make([]byte, 16*bytesPerFrame+3)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 16*bytesPerFrame {
		t.Errorf("n = %d, want %d whole frames", n, 16*bytesPerFrame)
	}
	for i := range 16 {
		if l, rr := frame(buf, i); l != 0 || rr != 0 {
			t.Fatalf("frame %d = (%g, %g), want silence", i, l, rr)
		}
	}
}

func TestRenderer_PlaysAndCompletes(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(1000)
	p := &Player{id: "p"}
	connect(t, r, p)
	p.SetSpatial(spatial.Position(spatial.Right, 1))

	done := make(chan struct{})
	if err := p.Schedule(constBuffer(10, 1000, 0.5), func() { close(done) }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	p.Play()

	out := make([]byte, 32*bytesPerFrame)
	if _, err := r.Read(out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	l, rr := frame(out, 0)
	if !(rr > l) || rr <= 0 {
		t.Errorf("frame 0 = (%g, %g), want right channel louder", l, rr)
	}
	if l, rr := frame(out, 20); l != 0 || rr != 0 {
		t.Errorf("frame 20 = (%g, %g), want silence after buffer end", l, rr)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion callback not invoked")
	}
	if p.IsPlaying() {
		t.Error("player should stop once its queue is drained")
	}
}

func TestRenderer_SkipsDisconnected(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(1000)
	p := &Player{id: "p"}
	connect(t, r, p)
	r.routes.Disconnect(p.id)

	_ = p.Schedule(constBuffer(10, 1000, 1), nil)
	p.Play()

	out := make([]byte, 4*bytesPerFrame)
	_, _ = r.Read(out)
	if l, rr := frame(out, 0); l != 0 || rr != 0 {
		t.Errorf("disconnected player rendered (%g, %g)", l, rr)
	}
	if !p.IsPlaying() {
		t.Error("disconnected player should keep its queue")
	}
}

func TestPlayer_StopDiscardsQueue(t *testing.T) {
	t.Parallel()

	p := &Player{id: "p"}
	called := false
	_ = p.Schedule(constBuffer(4, 1000, 1), func() { called = true })
	p.Play()
	p.Stop()

	mix := make([]float32, 8)
	if done := p.render(mix, 1000, audio.NewEnvironment("m").Snapshot()); len(done) != 0 {
		t.Errorf("render after Stop returned %d callbacks", len(done))
	}
	if called || p.IsPlaying() {
		t.Error("Stop must discard pending buffers without completing them")
	}
	if err := p.Schedule(nil, nil); err == nil {
		t.Error("expected error scheduling nil buffer")
	}
}
