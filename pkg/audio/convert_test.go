package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/sensekit/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stereo []int16
		want   []int16
	}{
		{"averages channels", []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"max values do not overflow", []int16{32767, 32767}, []int16{32767}},
		{"trailing partial frame dropped", []int16{10, 20, 30}, []int16{15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.StereoToMono(samplesToBytes(tt.stereo)))
			if len(got) != len(tt.want) {
				t.Fatalf("length mismatch: got %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{0, 100, 200, 300})

	if out := audio.ResampleMono16(pcm, 16000, 16000); len(out) != len(pcm) {
		t.Errorf("same rate: got %d bytes, want %d", len(out), len(pcm))
	}
	if out := audio.ResampleMono16(pcm, 0, 16000); len(out) != len(pcm) {
		t.Errorf("zero rate: got %d bytes, want %d", len(out), len(pcm))
	}

	up := bytesToSamples(audio.ResampleMono16(pcm, 8000, 16000))
	if len(up) != 8 {
		t.Fatalf("upsample: got %d samples, want 8", len(up))
	}
	if up[1] != 50 {
		t.Errorf("upsample interpolation: got %d, want 50", up[1])
	}

	down := bytesToSamples(audio.ResampleMono16(pcm, 16000, 8000))
	if len(down) != 2 || down[0] != 0 || down[1] != 200 {
		t.Errorf("downsample: got %v, want [0 200]", down)
	}
}

func TestNormalizePCM16(t *testing.T) {
	t.Parallel()

	stereo := samplesToBytes([]int16{100, 300, 100, 300})
	got := bytesToSamples(audio.NormalizePCM16(stereo, audio.Format{SampleRate: 8000, Channels: 2}, 16000))
	if len(got) != 4 {
		t.Fatalf("got %d samples, want 4", len(got))
	}
	for i, s := range got {
		if s != 200 {
			t.Errorf("sample %d: got %d, want 200", i, s)
		}
	}
}

func TestNewBufferPCM16(t *testing.T) {
	t.Parallel()

	buf, err := audio.NewBufferPCM16(samplesToBytes([]int16{16384, -16384, 0, 32767}), audio.MonoFormat(4))
	if err != nil {
		t.Fatalf("NewBufferPCM16: %v", err)
	}
	if buf.Frames() != 4 {
		t.Fatalf("Frames = %d, want 4", buf.Frames())
	}
	if buf.Samples[0] != 0.5 || buf.Samples[1] != -0.5 {
		t.Errorf("samples = %v, want [0.5 -0.5 ...]", buf.Samples)
	}
	if buf.Duration() != time.Second {
		t.Errorf("Duration = %v, want 1s", buf.Duration())
	}

	buf.Scale(4)
	if buf.Samples[0] != 1 || buf.Samples[1] != -1 {
		t.Errorf("Scale did not clamp: %v", buf.Samples)
	}

	_, err = audio.NewBufferPCM16([]byte{1, 2, 3}, audio.MonoFormat(16000))
	if !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("odd byte count: got %v, want ErrInvalidFormat", err)
	}
	_, err = audio.NewBufferPCM16(nil, audio.Format{})
	if !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("zero format: got %v, want ErrInvalidFormat", err)
	}
}

func TestDecodeWAV(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	f := audio.Format{SampleRate: 22050, Channels: 2}

	got, gotFmt, err := audio.DecodeWAV(audio.EncodeWAV(pcm, f))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if gotFmt != f {
		t.Errorf("format = %v, want %v", gotFmt, f)
	}
	if string(got) != string(pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}

	for name, data := range map[string][]byte{
		"too short":  []byte("RIFF"),
		"not riff":   append([]byte("RIFX0000WAVE"), make([]byte, 32)...),
		"no data":    audio.EncodeWAV(nil, f)[:36],
		"empty file": nil,
	} {
		if _, _, err := audio.DecodeWAV(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
