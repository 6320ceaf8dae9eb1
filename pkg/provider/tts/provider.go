// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, OpenAI
// or a local Coqui server) and presents a uniform streaming interface. The
// speech scheduler submits one utterance per request and plays the audio once
// the stream closes, so providers may emit the PCM in as many chunks as they
// like.
//
// Audio emitted by a provider is little-endian int16 mono PCM at the sample
// rate the provider was configured with. Every provider in this module
// accepts an output-rate option and resamples its native audio to it.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel when the scheduler plays overlapping utterances.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns a
	// channel that emits raw PCM audio byte slices as they are synthesised.
	//
	// The returned audio channel is closed by the implementation when all text has
	// been synthesised or when ctx is cancelled. The caller must drain the audio
	// channel to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the audio channel early;
	// callers should check ctx.Err() to distinguish cancellation from provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// ErrNoAudio is returned by [Synthesize] when the stream closed without
// producing any audio.
var ErrNoAudio = errors.New("tts: stream produced no audio")

// Synthesize submits text as a single utterance and collects the whole
// stream into one PCM buffer.
func Synthesize(ctx context.Context, p Provider, text string, voice VoiceProfile) ([]byte, error) {
	in := make(chan string, 1)
	in <- text
	close(in)

	out, err := p.SynthesizeStream(ctx, in, voice)
	if err != nil {
		return nil, err
	}
	var pcm []byte
	for chunk := range out {
		pcm = append(pcm, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("tts: odd PCM length %d", len(pcm))
	}
	return pcm, nil
}
