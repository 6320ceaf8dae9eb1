package audio

import (
	"errors"
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// MonoFormat returns a single-channel format at the given rate.
func MonoFormat(sampleRate int) Format { return Format{SampleRate: sampleRate, Channels: 1} }

func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// Validate reports whether f has a positive rate and channel count.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be > 0, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: channel count must be > 0, got %d", f.Channels)
	}
	return nil
}

// ErrInvalidFormat is returned when PCM data cannot be decoded in the
// requested format.
var ErrInvalidFormat = errors.New("audio: invalid format")

// Buffer is a block of mono float samples in [-1, 1] ready to be scheduled
// on a [PlayerNode]. Buffers are not modified after being scheduled.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// NewBufferPCM16 decodes little-endian int16 PCM into a mono [Buffer].
// Multi-channel input is downmixed.
func NewBufferPCM16(pcm []byte, f Format) (*Buffer, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	frameBytes := 2 * f.Channels
	if len(pcm)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %s frames", ErrInvalidFormat, len(pcm), f)
	}
	frames := len(pcm) / frameBytes
	samples := make([]float32, frames)
	for i := range frames {
		var sum int32
		for c := range f.Channels {
			off := i*frameBytes + c*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		samples[i] = float32(sum) / float32(f.Channels) / 32768
	}
	return &Buffer{Samples: samples, SampleRate: f.SampleRate}, nil
}

// Frames returns the number of sample frames in b.
func (b *Buffer) Frames() int { return len(b.Samples) }

// Duration returns the playback length of b.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Scale multiplies every sample by gain in place, clamping to [-1, 1].
func (b *Buffer) Scale(gain float32) {
	if gain == 1 {
		return
	}
	for i, s := range b.Samples {
		v := s * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		b.Samples[i] = v
	}
}

// Drain discards ch until it closes, so an abandoned producer can exit.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
