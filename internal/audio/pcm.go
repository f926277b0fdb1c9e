// internal/audio/pcm.go
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Narration clips are kept and streamed as 16-bit little-endian stereo PCM.
const (
	SampleRate     = beep.SampleRate(44100)
	Channels       = 2
	BytesPerSample = 2
	BytesPerFrame  = Channels * BytesPerSample

	resampleQuality = 4
)

// Format is the canonical clip format.
var Format = beep.Format{SampleRate: SampleRate, NumChannels: Channels, Precision: BytesPerSample}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// Decode turns a clip body into a buffer in the canonical format. WAV bodies
// are decoded and resampled; anything else is read as raw s16le stereo PCM.
func Decode(data []byte) (*beep.Buffer, error) {
	if IsWAV(data) {
		return decodeWAV(data)
	}
	return DecodePCM(data)
}

func decodeWAV(data []byte) (*beep.Buffer, error) {
	s, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != SampleRate {
		src = beep.Resample(resampleQuality, format.SampleRate, SampleRate, s)
	}

	buf := beep.NewBuffer(Format)
	buf.Append(src)
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	return buf, nil
}

// DecodePCM reads raw s16le interleaved stereo frames. A trailing partial
// frame is an error.
func DecodePCM(data []byte) (*beep.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pcm body")
	}
	if len(data)%BytesPerFrame != 0 {
		return nil, fmt.Errorf("pcm body of %d bytes is not a whole number of %d-byte frames", len(data), BytesPerFrame)
	}

	frames := make([][2]float64, len(data)/BytesPerFrame)
	for i := range frames {
		off := i * BytesPerFrame
		frames[i][0] = float64(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768
		frames[i][1] = float64(int16(binary.LittleEndian.Uint16(data[off+2:]))) / 32768
	}

	buf := beep.NewBuffer(Format)
	buf.Append(&frameStreamer{frames: frames})
	return buf, nil
}

// EncodePCM writes frames as s16le, clamping to [-1, 1].
func EncodePCM(dst []byte, frames [][2]float64) []byte {
	for _, f := range frames {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(toInt16(f[0])))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(toInt16(f[1])))
	}
	return dst
}

// BufferPCM encodes a whole buffer.
func BufferPCM(buf *beep.Buffer) []byte {
	s := buf.Streamer(0, buf.Len())
	frames := make([][2]float64, 512)
	out := make([]byte, 0, buf.Len()*BytesPerFrame)
	for {
		n, ok := s.Stream(frames)
		out = EncodePCM(out, frames[:n])
		if !ok {
			return out
		}
	}
}

func toInt16(x float64) int16 {
	x = math.Max(-1, math.Min(1, x))
	return int16(math.Round(x * 32767))
}

// frameStreamer plays a fixed slice of frames once.
type frameStreamer struct {
	frames [][2]float64
	pos    int
}

func (f *frameStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if f.pos >= len(f.frames) {
		return 0, false
	}
	n = copy(samples, f.frames[f.pos:])
	f.pos += n
	return n, true
}

func (f *frameStreamer) Err() error { return nil }
