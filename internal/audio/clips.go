// internal/audio/clips.go
package audio

import (
	"regexp"
	"sync"
	"time"

	"github.com/gopxl/beep"

	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/storage"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const (
	clipDir    = "clips"
	clipSuffix = ".pcm"
)

var clipIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ClipInfo describes a stored narration clip.
type ClipInfo struct {
	ID       string  `json:"id"`
	Frames   int     `json:"frames"`
	Duration float64 `json:"duration"` // seconds
}

// ClipStore keeps narration clips in memory and on disk as canonical PCM.
type ClipStore struct {
	mu      sync.RWMutex
	clips   map[string]*beep.Buffer
	storage *storage.FileStorage
	logger  *utils.Logger
}

// NewClipStore creates a store. fs may be nil for a memory-only store.
func NewClipStore(fs *storage.FileStorage, logger *utils.Logger) *ClipStore {
	return &ClipStore{
		clips:   make(map[string]*beep.Buffer),
		storage: fs,
		logger:  logger,
	}
}

// ValidClipID reports whether id is usable as a clip key.
func ValidClipID(id string) bool {
	return clipIDPattern.MatchString(id)
}

// Put decodes body (WAV or raw PCM) and stores it under id, replacing any
// previous clip.
func (c *ClipStore) Put(id string, body []byte) (ClipInfo, error) {
	if !ValidClipID(id) {
		return ClipInfo{}, apperrors.NewValidationError("invalid audio id "+id, nil)
	}
	buf, err := Decode(body)
	if err != nil {
		return ClipInfo{}, apperrors.NewValidationError("unreadable audio body", err)
	}

	if c.storage != nil {
		if err := c.storage.SaveTextFile(clipDir, id+clipSuffix, BufferPCM(buf)); err != nil {
			return ClipInfo{}, apperrors.WrapError(err, "failed to persist clip", apperrors.ErrorTypeError)
		}
	}

	c.mu.Lock()
	c.clips[id] = buf
	c.mu.Unlock()

	info := clipInfo(id, buf)
	c.logger.Info("narration clip stored", map[string]interface{}{
		"id":       id,
		"duration": info.Duration,
	})
	return info, nil
}

// Get returns the clip, loading it from disk on first use.
func (c *ClipStore) Get(id string) (*beep.Buffer, error) {
	c.mu.RLock()
	buf, ok := c.clips[id]
	c.mu.RUnlock()
	if ok {
		return buf, nil
	}

	if c.storage == nil || !ValidClipID(id) || !c.storage.FileExists(clipDir, id+clipSuffix) {
		return nil, apperrors.NewNotFoundError("clip "+id, apperrors.ErrClipNotFound)
	}
	data, err := c.storage.LoadTextFile(clipDir, id+clipSuffix)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to read clip", apperrors.ErrorTypeError)
	}
	buf, err = DecodePCM(data)
	if err != nil {
		return nil, apperrors.WrapError(err, "stored clip is corrupt", apperrors.ErrorTypeError)
	}

	c.mu.Lock()
	c.clips[id] = buf
	c.mu.Unlock()
	return buf, nil
}

// Info describes a clip without decoding it twice.
func (c *ClipStore) Info(id string) (ClipInfo, error) {
	buf, err := c.Get(id)
	if err != nil {
		return ClipInfo{}, err
	}
	return clipInfo(id, buf), nil
}

// Delete removes a clip from memory and disk.
func (c *ClipStore) Delete(id string) error {
	c.mu.Lock()
	_, inMemory := c.clips[id]
	delete(c.clips, id)
	c.mu.Unlock()

	if c.storage != nil && ValidClipID(id) && c.storage.FileExists(clipDir, id+clipSuffix) {
		return c.storage.DeleteFile(clipDir, id+clipSuffix)
	}
	if !inMemory {
		return apperrors.NewNotFoundError("clip "+id, apperrors.ErrClipNotFound)
	}
	return nil
}

func clipInfo(id string, buf *beep.Buffer) ClipInfo {
	return ClipInfo{
		ID:       id,
		Frames:   buf.Len(),
		Duration: SampleRate.D(buf.Len()).Round(time.Millisecond).Seconds(),
	}
}
