// internal/api/audio_handlers.go
package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/LifeBranches/internal/audio"
	"github.com/Corphon/LifeBranches/internal/config"
)

const (
	maxClipBytes       = 32 << 20
	streamClientBuffer = 16
	maxVolume          = 4
)

// VolumeRequest is the body of POST /api/controls/volume.
type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}

// UploadClip handles PUT /api/audio/:id. The body is raw s16le stereo PCM
// at 44.1kHz or a WAV file.
func (h *Handler) UploadClip(c *gin.Context) {
	if h.clips == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorAudioUnavailable, "audio is disabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxClipBytes+1))
	if err != nil {
		h.Response.BadRequest(c, "failed to read clip body", err.Error())
		return
	}
	if len(body) > maxClipBytes {
		h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorPayloadTooLong, "clip exceeds 32MB")
		return
	}

	info, err := h.clips.Put(c.Param("id"), body)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Created(c, info)
}

// GetClip handles GET /api/audio/:id.
func (h *Handler) GetClip(c *gin.Context) {
	if h.clips == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorAudioUnavailable, "audio is disabled")
		return
	}
	info, err := h.clips.Info(c.Param("id"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, info)
}

// DeleteClip handles DELETE /api/audio/:id.
func (h *Handler) DeleteClip(c *gin.Context) {
	if h.clips == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorAudioUnavailable, "audio is disabled")
		return
	}
	if err := h.clips.Delete(c.Param("id")); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"id": c.Param("id")}, "clip deleted")
}

// PlayClip handles POST /api/audio/:id/play?duration=seconds.
func (h *Handler) PlayClip(c *gin.Context) {
	if h.player == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorAudioUnavailable, "audio is disabled")
		return
	}

	var duration float64
	if raw := c.Query("duration"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d < 0 {
			h.Response.BadRequest(c, "duration must be a non-negative number of seconds")
			return
		}
		duration = d
	}

	if err := h.player.Play(c.Param("id"), duration); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Accepted(c, gin.H{"id": c.Param("id"), "active": h.player.Active()})
}

// SetVolume handles POST /api/controls/volume. The level applies to
// narration started after the call; clips already playing keep theirs.
func (h *Handler) SetVolume(c *gin.Context) {
	if h.player == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorAudioUnavailable, "audio is disabled")
		return
	}

	var req VolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid volume payload", err.Error())
		return
	}
	if req.Volume == nil || *req.Volume < 0 || *req.Volume > maxVolume {
		h.Response.BadRequest(c, "volume must be between 0 and 4")
		return
	}

	h.player.SetVolume(*req.Volume)
	h.logger.Info("narration volume changed", map[string]interface{}{"volume": *req.Volume})
	h.Response.Success(c, gin.H{"volume": h.player.Volume()})
}

// StreamAudio handles GET /api/audio/stream: the live narration mix as
// chunked s16le PCM until the client disconnects.
func (h *Handler) StreamAudio(c *gin.Context) {
	if h.player == nil || h.player.Output() != config.AudioOutputStream {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorStreamUnavailable, "audio stream is not enabled")
		return
	}

	chunks, cancel := h.player.Subscribe(streamClientBuffer)
	defer cancel()

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Audio-Format", "s16le")
	c.Header("X-Audio-Rate", strconv.Itoa(int(audio.SampleRate)))
	c.Header("X-Audio-Channels", strconv.Itoa(audio.Channels))
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case chunk, ok := <-chunks:
			if !ok {
				return false
			}
			_, err := w.Write(chunk)
			return err == nil
		}
	})
}
