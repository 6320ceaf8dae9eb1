package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DecodeWAV walks the RIFF/WAVE container in wav and returns the PCM payload
// of the data chunk together with its format. Only 16-bit integer PCM is
// accepted.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 {
		return nil, Format{}, errors.New("audio: WAV data too short to be a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("audio: not a RIFF/WAVE file")
	}

	var (
		f      Format
		bits   int
		hasFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, Format{}, errors.New("audio: truncated WAV fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(wav[body:]); tag != 1 && tag != 0xFFFE {
				return nil, Format{}, fmt.Errorf("%w: WAV encoding %d is not PCM", ErrInvalidFormat, tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4:]))
			bits = int(binary.LittleEndian.Uint16(wav[body+14:]))
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, Format{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			if bits != 16 {
				return nil, Format{}, fmt.Errorf("%w: %d-bit WAV, want 16-bit", ErrInvalidFormat, bits)
			}
			end := min(body+size, len(wav))
			return wav[body:end], f, nil
		}

		// Chunks are word-aligned.
		offset = body + size + size%2
	}
	return nil, Format{}, errors.New("audio: WAV data chunk not found")
}

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, f Format) []byte {
	out := make([]byte, 44+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(f.SampleRate*f.Channels*2))
	binary.LittleEndian.PutUint16(out[32:], uint16(f.Channels*2))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
