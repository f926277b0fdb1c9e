package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/Corphon/LifeBranches/internal/config"
	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/storage"
	"github.com/Corphon/LifeBranches/internal/utils"
)

// tone returns n frames of a constant value as s16le stereo PCM.
func tone(n int, v int16) []byte {
	out := make([]byte, 0, n*BytesPerFrame)
	for i := 0; i < n; i++ {
		out = binary.LittleEndian.AppendUint16(out, uint16(v))
		out = binary.LittleEndian.AppendUint16(out, uint16(-v))
	}
	return out
}

// wavFile wraps pcm in a minimal 16-bit stereo RIFF header.
func wavFile(pcm []byte, rate uint32) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, rate)
	binary.Write(&b, binary.LittleEndian, rate*4)
	binary.Write(&b, binary.LittleEndian, uint16(4))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

func TestDecodePCM(t *testing.T) {
	buf, err := DecodePCM(tone(100, 16384))
	if err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 100 {
		t.Fatalf("frames = %d", buf.Len())
	}

	frames := make([][2]float64, 1)
	buf.Streamer(0, 1).Stream(frames)
	if math.Abs(frames[0][0]-0.5) > 1e-3 || math.Abs(frames[0][1]+0.5) > 1e-3 {
		t.Errorf("frame = %v", frames[0])
	}

	if got := BufferPCM(buf); len(got) != 400 {
		t.Errorf("re-encoded %d bytes", len(got))
	}

	for _, bad := range [][]byte{nil, {1, 2, 3}} {
		if _, err := DecodePCM(bad); err == nil {
			t.Errorf("DecodePCM(%v) accepted", bad)
		}
	}
}

func TestDecodeWAV(t *testing.T) {
	data := wavFile(tone(441, 1000), 44100)
	if !IsWAV(data) {
		t.Fatal("IsWAV = false")
	}
	buf, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.Len() != 441 {
		t.Errorf("frames = %d, want 441", buf.Len())
	}

	resampled, err := Decode(wavFile(tone(2205, 1000), 22050))
	if err != nil {
		t.Fatalf("Decode 22.05k: %v", err)
	}
	if d := resampled.Len() - 4410; d < -10 || d > 10 {
		t.Errorf("resampled frames = %d, want about 4410", resampled.Len())
	}
}

func TestEncodePCMClamps(t *testing.T) {
	got := EncodePCM(nil, [][2]float64{{2, -2}})
	if int16(binary.LittleEndian.Uint16(got)) != 32767 || int16(binary.LittleEndian.Uint16(got[2:])) != -32767 {
		t.Errorf("got %v", got)
	}
}

func TestClipStorePersists(t *testing.T) {
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := NewClipStore(fs, utils.NopLogger())

	info, err := store.Put("intro_1", tone(44100, 100))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Frames != 44100 || info.Duration != 1 {
		t.Errorf("info = %+v", info)
	}

	// A fresh store over the same directory finds the clip on disk.
	reopened := NewClipStore(fs, utils.NopLogger())
	buf, err := reopened.Get("intro_1")
	if err != nil || buf.Len() != 44100 {
		t.Fatalf("Get after reopen: %v", err)
	}

	if err := reopened.Delete("intro_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewClipStore(fs, utils.NopLogger()).Get("intro_1"); !apperrors.IsNotFoundError(err) {
		t.Errorf("Get after delete = %v", err)
	}
}

func TestClipStoreValidation(t *testing.T) {
	store := NewClipStore(nil, utils.NopLogger())
	if _, err := store.Put("../x", tone(1, 1)); !apperrors.IsValidationError(err) {
		t.Errorf("bad id: %v", err)
	}
	if _, err := store.Put("ok", []byte{1}); !apperrors.IsValidationError(err) {
		t.Errorf("bad body: %v", err)
	}
	if _, err := store.Get("missing"); !apperrors.IsNotFoundError(err) {
		t.Errorf("missing: %v", err)
	}
}

func newTestPlayer(t *testing.T) *Player {
	t.Helper()
	store := NewClipStore(nil, utils.NopLogger())
	if _, err := store.Put("clip", tone(4410, 8000)); err != nil {
		t.Fatal(err)
	}
	return NewPlayer(store, config.AudioOutputNone, utils.NopLogger(), utils.NewMetricsCollector())
}

func peak(pcm []byte) int16 {
	var p int16
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if v < 0 {
			v = -v
		}
		p = max(p, v)
	}
	return p
}

func TestPlayerMixesAndEnds(t *testing.T) {
	p := newTestPlayer(t)

	if got := peak(p.Render(100)); got != 0 {
		t.Fatalf("silence expected before play, peak %d", got)
	}
	if err := p.Play("clip", 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Play("missing", 0); !apperrors.IsNotFoundError(err) {
		t.Errorf("missing clip: %v", err)
	}

	chunk := p.Render(4410)
	if len(chunk) != 4410*BytesPerFrame {
		t.Fatalf("chunk = %d bytes", len(chunk))
	}
	if got := peak(chunk); got < 7000 {
		t.Errorf("peak while playing = %d", got)
	}
	if got := peak(p.Render(100)); got != 0 {
		t.Errorf("clip should have ended, peak %d", got)
	}
	if p.Active() != 0 {
		t.Errorf("active = %d", p.Active())
	}
}

func TestPlayerDurationAndPause(t *testing.T) {
	p := newTestPlayer(t)

	if err := p.Play("clip", 0.05); err != nil {
		t.Fatal(err)
	}
	p.SetPaused(true)
	if got := peak(p.Render(1000)); got != 0 {
		t.Errorf("paused output peak %d", got)
	}
	p.SetPaused(false)

	// 0.05s is 2205 frames; the rest must be silent.
	chunk := p.Render(4410)
	if got := peak(chunk[2300*BytesPerFrame:]); got != 0 {
		t.Errorf("clip not cut at duration, peak %d", got)
	}
}

func TestPlayerVolume(t *testing.T) {
	p := newTestPlayer(t)

	p.SetVolume(0.5)
	if err := p.Play("clip", 0); err != nil {
		t.Fatal(err)
	}
	half := peak(p.Render(4410))
	if half < 3500 || half > 4500 {
		t.Errorf("peak at half volume = %d", half)
	}

	p.SetVolume(0)
	if err := p.Play("clip", 0); err != nil {
		t.Fatal(err)
	}
	if got := peak(p.Render(4410)); got != 0 {
		t.Errorf("muted peak = %d", got)
	}

	p.SetVolume(-1)
	if p.Volume() != 0 {
		t.Errorf("negative volume stored as %v", p.Volume())
	}
}

func TestSoftLimit(t *testing.T) {
	tests := []struct{ in, lo, hi float64 }{
		{0.5, 0.5, 0.5},
		{-0.8, -0.8, -0.8},
		{1.5, 0.8, 1.0},
		{-3, -1.0, -0.8},
	}
	for _, tt := range tests {
		if got := softLimit(tt.in, limitThreshold); got < tt.lo || got > tt.hi {
			t.Errorf("softLimit(%v) = %v", tt.in, got)
		}
	}
}

func TestPlayerSubscribeAndBroadcast(t *testing.T) {
	p := newTestPlayer(t)
	ch, cancel := p.Subscribe(1)
	if p.Listeners() != 1 {
		t.Fatal("listener not registered")
	}

	p.broadcast([]byte{1})
	p.broadcast([]byte{2}) // buffer full, dropped
	if got := <-ch; got[0] != 1 {
		t.Errorf("chunk = %v", got)
	}
	if p.metrics.GetCounterValue(utils.MetricAudioChunksDropped) != 1 {
		t.Error("drop not counted")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if p.Listeners() != 0 {
		t.Error("listener not removed")
	}
}

func TestPlayerRunPlaysNarration(t *testing.T) {
	p := newTestPlayer(t)
	signals := make(chan models.Signal, 2)
	signals <- models.Signal{Kind: models.SignalPlayNarration, AudioID: "clip"}
	close(signals)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Run(ctx, signals)

	if p.Active() != 1 {
		t.Errorf("active = %d, want 1", p.Active())
	}
	if p.metrics.GetCounterValue(utils.MetricNarrationsPlayed) != 1 {
		t.Error("narration not counted")
	}
}
