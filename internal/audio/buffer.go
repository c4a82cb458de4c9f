package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	SampleRate     = 16000
	bytesPerSample = 2
)

// Buffer holds decoded 16 kHz mono s16le PCM. It is never mutated after decoding and is
// shared by every concurrent slice request.
type Buffer struct {
	pcm []byte
}

// NewBuffer wraps raw PCM; a trailing odd byte is dropped.
func NewBuffer(pcm []byte) *Buffer {
	return &Buffer{pcm: pcm[:len(pcm)-len(pcm)%bytesPerSample]}
}

// Duration in seconds.
func (b *Buffer) Duration() float64 {
	return float64(len(b.pcm)/bytesPerSample) / SampleRate
}

// Slice encodes [start,end) as a WAV file. Bounds are clamped to the buffer.
func (b *Buffer) Slice(start, end float64) ([]byte, error) {
	total := len(b.pcm) / bytesPerSample
	from := clampSample(start, total)
	to := clampSample(end, total)
	if to <= from {
		return nil, fmt.Errorf("empty audio range [%.3f, %.3f) of %.3fs", start, end, b.Duration())
	}
	return encodeWAV(b.pcm[from*bytesPerSample : to*bytesPerSample]), nil
}

func clampSample(sec float64, total int) int {
	n := int(math.Round(sec * SampleRate))
	return max(0, min(n, total))
}

// encodeWAV prepends a canonical 44-byte RIFF header.
func encodeWAV(pcm []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(1)) // PCM
	_ = binary.Write(&buf, le, uint16(1)) // mono
	_ = binary.Write(&buf, le, uint32(SampleRate))
	_ = binary.Write(&buf, le, uint32(SampleRate*bytesPerSample))
	_ = binary.Write(&buf, le, uint16(bytesPerSample))
	_ = binary.Write(&buf, le, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Source is the read-only view of decoded media shared by concurrent tasks.
type Source interface {
	Duration() float64
	Slice(start, end float64) ([]byte, error)
}

var _ Source = (*Buffer)(nil)
