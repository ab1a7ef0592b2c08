package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// FrameMIMEType tags every outbound frame: 16-bit PCM, 16 kHz, mono.
	FrameMIMEType = "audio/pcm;rate=16000"

	// ReplySampleRate is the rate of reply audio from the service.
	ReplySampleRate = 24000
)

// ErrDecode reports a reply-audio payload that cannot be decoded. Callers
// skip the chunk and keep the session running.
var ErrDecode = errors.New("pcm: malformed audio payload")

// Frame is one encoded outbound audio block.
type Frame struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Buffer is planar float audio: Channels[c][i] is sample i of channel c.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Len returns the number of frames (samples per channel).
func (b Buffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Encode soft-clips samples with tanh, quantizes them to signed 16-bit and
// packs them little-endian into a base64 frame.
func Encode(samples []float32) Frame {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := Quantize(math.Tanh(float64(s)))
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	return Frame{
		MIMEType: FrameMIMEType,
		Data:     base64.StdEncoding.EncodeToString(raw),
	}
}

// Quantize maps a sample in [-1, 1] to int16 using the two's-complement
// full-scale factors: negative values scale by 32768, the rest by 32767.
// Values outside [-1, 1] are clamped first.
func Quantize(s float64) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Decode turns a base64 interleaved 16-bit payload into planar floats
// normalized by 32768.
func Decode(data string, sampleRate, channels int) (Buffer, error) {
	if channels <= 0 {
		channels = 1
	}
	if sampleRate <= 0 {
		sampleRate = ReplySampleRate
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw)%(2*channels) != 0 {
		return Buffer{}, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrDecode, len(raw), 2*channels)
	}

	frames := len(raw) / (2 * channels)
	out := Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for c := range out.Channels {
		out.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			offset := (i*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(raw[offset:]))
			out.Channels[c][i] = float32(sample) / 32768.0
		}
	}
	return out, nil
}

// DecodeReply decodes a mono reply chunk at ReplySampleRate.
func DecodeReply(data string) (Buffer, error) {
	return Decode(data, ReplySampleRate, 1)
}

// Int16LE renders the first channel of b as little-endian 16-bit PCM.
func (b Buffer) Int16LE() []byte {
	if len(b.Channels) == 0 {
		return nil
	}
	mono := b.Channels[0]
	out := make([]byte, len(mono)*2)
	for i, s := range mono {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(float64(s))))
	}
	return out
}
