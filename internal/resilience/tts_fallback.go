package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/sensekit/pkg/audio"
	"github.com/MrWong99/sensekit/pkg/provider/tts"
)

var _ tts.Provider = (*TTSFallback)(nil)

// TTSFallback is a [tts.Provider] that fails over across TTS backends.
//
// Text is collected into one utterance first so it can be replayed on the
// next backend. A backend fails when it refuses the stream or closes it
// without audio. Once audio has been forwarded the item stays with that
// backend.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// NewTTSFallback returns a fallback chain headed by primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the chain.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Status returns the breaker state of every backend in failover order.
func (f *TTSFallback) Status() []BreakerStatus { return f.group.Status() }

// Healthy reports whether any backend admits calls.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }

// Reset closes the named backend's breaker.
func (f *TTSFallback) Reset(name string) error { return f.group.Reset(name) }

// SynthesizeStream never fails synchronously. When every backend fails, the
// returned channel closes without audio.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)

		utterance, err := gather(ctx, text)
		if err != nil {
			return
		}
		err = f.group.Execute(func(p tts.Provider) error {
			return relay(ctx, p, utterance, voice, out)
		})
		if err != nil && ctx.Err() == nil {
			f.group.log.Warn("no tts backend produced audio", "err", err)
		}
	}()
	return out, nil
}

// ListVoices asks the first backend that answers.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// gather reads text until it closes.
func gather(ctx context.Context, text <-chan string) (string, error) {
	var sb strings.Builder
	for {
		select {
		case frag, ok := <-text:
			if !ok {
				return sb.String(), nil
			}
			sb.WriteString(frag)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// relay pipes p's audio for utterance into out. A cancellation during the
// stream is reported as ctx.Err(), which the breakers do not count.
func relay(ctx context.Context, p tts.Provider, utterance string, voice tts.VoiceProfile, out chan<- []byte) error {
	in := make(chan string, 1)
	in <- utterance
	close(in)

	stream, err := p.SynthesizeStream(ctx, in, voice)
	if err != nil {
		return err
	}

	var sent bool
	for chunk := range stream {
		select {
		case out <- chunk:
			sent = true
		case <-ctx.Done():
			audio.Drain(stream)
			return ctx.Err()
		}
	}
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case !sent:
		return tts.ErrNoAudio
	}
	return nil
}
