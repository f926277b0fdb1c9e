// internal/audio/player.go
package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"

	"github.com/Corphon/LifeBranches/internal/config"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const (
	// ChunkDuration is the cadence of the PCM stream pump.
	ChunkDuration = 100 * time.Millisecond

	fadeDuration   = 10 * time.Millisecond
	limitThreshold = 0.8
	speakerBuffer  = 100 * time.Millisecond
)

// Player mixes narration clips and sends the result to the speaker or to
// PCM stream listeners.
type Player struct {
	mu      sync.Mutex
	clips   *ClipStore
	mixer   *beep.Mixer
	ctrl    *beep.Ctrl
	out     beep.Streamer
	volume  float64
	output  string
	started bool

	listeners map[int]chan []byte
	nextID    int

	logger  *utils.Logger
	metrics *utils.MetricsCollector
}

// NewPlayer creates a player for one of the config.AudioOutput* modes.
func NewPlayer(clips *ClipStore, output string, logger *utils.Logger, metrics *utils.MetricsCollector) *Player {
	mixer := &beep.Mixer{}
	ctrl := &beep.Ctrl{Streamer: mixer}
	return &Player{
		clips:     clips,
		mixer:     mixer,
		ctrl:      ctrl,
		out:       &limiter{Streamer: ctrl, threshold: limitThreshold},
		volume:    1,
		output:    output,
		listeners: make(map[int]chan []byte),
		logger:    logger,
		metrics:   metrics,
	}
}

// Output is the configured output mode.
func (p *Player) Output() string { return p.output }

// Start opens the output. For the stream mode it runs the pump until ctx is
// done.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	switch p.output {
	case config.AudioOutputSpeaker:
		if err := speaker.Init(SampleRate, SampleRate.N(speakerBuffer)); err != nil {
			return fmt.Errorf("audio: init speaker: %w", err)
		}
		speaker.Play(p)
		go func() {
			<-ctx.Done()
			speaker.Clear()
		}()
	case config.AudioOutputStream:
		go p.pump(ctx)
	}

	p.logger.Info("audio output started", map[string]interface{}{"output": p.output})
	return nil
}

// Stream implements beep.Streamer so the speaker can pull the mix. It never
// ends; silence is streamed while no clip plays.
func (p *Player) Stream(samples [][2]float64) (n int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ = p.out.Stream(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (p *Player) Err() error { return nil }

// Play queues the clip on the mixer. A positive duration (seconds) cuts the
// clip short.
func (p *Player) Play(id string, duration float64) error {
	buf, err := p.clips.Get(id)
	if err != nil {
		return err
	}

	frames := buf.Len()
	if duration > 0 {
		frames = min(frames, SampleRate.N(time.Duration(duration*float64(time.Second))))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var s beep.Streamer = buf.Streamer(0, frames)
	s = newFade(s, frames, SampleRate.N(fadeDuration))
	p.mixer.Add(newVolume(s, p.volume))

	p.metrics.IncrementCounter(utils.MetricNarrationsPlayed)
	p.logger.Debug("narration queued", map[string]interface{}{
		"id":     id,
		"frames": frames,
		"active": p.mixer.Len(),
	})
	return nil
}

// SetVolume sets the linear volume applied to clips played from now on.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = max(v, 0)
}

// Volume is the linear volume applied to new clips.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetPaused freezes every playing clip in place.
func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrl.Paused = paused
}

// Active is the number of clips still playing.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mixer.Len()
}

// Clear stops every clip.
func (p *Player) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mixer.Clear()
}

// Render pulls frames from the mix and encodes them as s16le PCM.
func (p *Player) Render(frames int) []byte {
	buf := make([][2]float64, frames)
	p.Stream(buf)
	return EncodePCM(make([]byte, 0, frames*BytesPerFrame), buf)
}

// Subscribe registers a PCM stream listener. Chunks are dropped for a
// listener whose buffer is full. The returned func unsubscribes.
func (p *Player) Subscribe(buffer int) (<-chan []byte, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan []byte, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Listeners is the number of PCM stream subscribers.
func (p *Player) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *Player) pump(ctx context.Context) {
	ticker := time.NewTicker(ChunkDuration)
	defer ticker.Stop()
	frames := SampleRate.N(ChunkDuration)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.broadcast(p.Render(frames))
		}
	}
}

func (p *Player) broadcast(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.listeners {
		select {
		case ch <- chunk:
		default:
			p.metrics.IncrementCounter(utils.MetricAudioChunksDropped)
		}
	}
}

// Run plays narration signals until ctx is done or the channel closes.
func (p *Player) Run(ctx context.Context, signals <-chan models.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			switch sig.Kind {
			case models.SignalPlayNarration:
				if err := p.Play(sig.AudioID, sig.AudioDuration); err != nil {
					p.logger.Warn("narration not played", map[string]interface{}{
						"id":    sig.AudioID,
						"error": err.Error(),
					})
				}
			case models.SignalReset:
				p.Clear()
			}
		}
	}
}

// newVolume applies a linear gain. math.Log2(0) is -Inf, so 0 is silent.
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol)}
}

// fade ramps the first and last frames of a clip of known length.
type fade struct {
	beep.Streamer
	pos, total, ramp int
}

func newFade(s beep.Streamer, total, ramp int) beep.Streamer {
	ramp = min(ramp, total/2)
	return &fade{Streamer: s, total: total, ramp: ramp}
}

func (f *fade) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = f.Streamer.Stream(samples)
	if f.ramp == 0 {
		f.pos += n
		return n, ok
	}
	for i := 0; i < n; i++ {
		gain := 1.0
		if f.pos < f.ramp {
			gain = float64(f.pos) / float64(f.ramp)
		} else if rest := f.total - f.pos; rest < f.ramp {
			gain = float64(rest) / float64(f.ramp)
		}
		samples[i][0] *= gain
		samples[i][1] *= gain
		f.pos++
	}
	return n, ok
}

// limiter softly compresses peaks above threshold so overlapping clips do
// not clip hard.
type limiter struct {
	beep.Streamer
	threshold float64
}

func (l *limiter) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = l.Streamer.Stream(samples)
	for i := 0; i < n; i++ {
		samples[i][0] = softLimit(samples[i][0], l.threshold)
		samples[i][1] = softLimit(samples[i][1], l.threshold)
	}
	return n, ok
}

func softLimit(x, t float64) float64 {
	a := math.Abs(x)
	if a <= t {
		return x
	}
	y := t + (1-t)*math.Tanh((a-t)/(1-t))
	return math.Copysign(y, x)
}
