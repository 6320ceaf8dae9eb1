package otograph

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/spatial"
)

const (
	// bytesPerFrame is one interleaved stereo float32 frame.
	bytesPerFrame = 8

	// headShadow is the extra attenuation of the far ear at full lateral
	// displacement in spherical-head rendering.
	headShadow = 0.3

	reverbFeedback = 0.4
)

// renderer mixes every connected, playing node into interleaved stereo
// float32 frames. It is the io.Reader handed to the oto player.
type renderer struct {
	rate   int
	env    *audio.Environment
	routes *audio.Routes

	mu      sync.Mutex
	players []*Player
	mix     []float32
}

func (r *renderer) add(p *Player) {
	r.mu.Lock()
	r.players = append(r.players, p)
	r.mu.Unlock()
}

// Read implements io.Reader. It always fills whole frames; silence is
// produced when nothing is playing. Completion callbacks of buffers that
// finished during this read are invoked on a separate goroutine.
func (r *renderer) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}

	r.mu.Lock()
	if cap(r.mix) < frames*2 {
		r.mix = make([]float32, frames*2)
	}
	mix := r.mix[:frames*2]
	clear(mix)
	players := append([]*Player(nil), r.players...)
	r.mu.Unlock()

	state := r.env.Snapshot()
	var done []func()
	for _, pl := range players {
		if _, ok := r.routes.Lookup(pl.id); !ok {
			continue
		}
		done = append(done, pl.render(mix, r.rate, state)...)
	}

	for i, v := range mix {
		v = max(-1, min(1, v))
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}

	if len(done) > 0 {
		go func() {
			for _, fn := range done {
				fn()
			}
		}()
	}
	return frames * bytesPerFrame, nil
}

// gains returns the left and right channel gains for a source rendered with
// params in the given environment.
func gains(params spatial.Params, state audio.EnvironmentState) (left, right float32) {
	rel := state.Listener.Relative(params.Point)
	att := state.Attenuation.Gain(rel.Len())

	var pan float64
	if h := math.Hypot(rel.X, rel.Z); h > 0 {
		pan = rel.X / h
	}
	theta := (pan + 1) * math.Pi / 4
	l, r := math.Cos(theta), math.Sin(theta)

	if params.Mode != spatial.RenderingEqualPower {
		if pan > 0 {
			l *= 1 - headShadow*pan
		} else {
			r *= 1 + headShadow*pan
		}
	}
	return float32(l * att), float32(r * att)
}

// reverbDelay returns the comb-filter delay length in frames for preset.
func reverbDelay(rate int, preset spatial.ReverbPreset) int {
	return max(1, int(float64(rate)*preset.Seconds()/6))
}
