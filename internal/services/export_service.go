// internal/services/export_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/storage"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const (
	exportDir    = "exports"
	exportSuffix = ".json"
)

// cronParser accepts standard 5-field expressions and descriptors such as
// "@every 1m" or "@hourly".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// SnapshotSource is what the exporter reads from.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// ExportService writes branch snapshots in the worlds file format, on
// demand and on a cron schedule.
type ExportService struct {
	source  SnapshotSource
	storage *storage.FileStorage
	keep    int

	mu   sync.Mutex
	seq  int
	cron *cron.Cron

	logger  *utils.Logger
	metrics *utils.MetricsCollector
	now     func() time.Time
}

// NewExportService keeps at most keep files; keep <= 0 keeps everything.
func NewExportService(source SnapshotSource, fs *storage.FileStorage, keep int, logger *utils.Logger, metrics *utils.MetricsCollector) *ExportService {
	return &ExportService{
		source:  source,
		storage: fs,
		keep:    keep,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Build converts the current snapshot without writing it.
func (s *ExportService) Build() models.ExportFile {
	snap := s.source.Snapshot()
	return models.NewExportFile(s.now(), snap.MonthLabel, snap.Branches)
}

// ExportNow writes one snapshot file and returns its name.
func (s *ExportService) ExportNow() (string, models.ExportFile, error) {
	file := s.Build()

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("snapshot_%s_%04d%s", s.now().UTC().Format("20060102T150405"), s.seq%10000, exportSuffix)
	s.mu.Unlock()

	if err := s.storage.SaveJSONFile(exportDir, name, file); err != nil {
		return "", file, apperrors.WrapError(err, "failed to write snapshot", apperrors.ErrorTypeError)
	}
	s.metrics.IncrementCounter(utils.MetricExportsWritten)

	if s.keep > 0 {
		if removed, err := s.storage.Prune(exportDir, exportSuffix, s.keep); err != nil {
			s.logger.Warn("export prune failed", map[string]interface{}{"error": err.Error()})
		} else if removed > 0 {
			s.logger.Debug("old exports pruned", map[string]interface{}{"removed": removed})
		}
	}

	s.logger.Info("snapshot exported", map[string]interface{}{
		"file":   name,
		"worlds": len(file.Worlds),
		"month":  file.MonthLabel,
	})
	return name, file, nil
}

// List returns the stored export file names, oldest first.
func (s *ExportService) List() ([]string, error) {
	return s.storage.ListFiles(exportDir, exportSuffix)
}

// Load reads one stored export.
func (s *ExportService) Load(name string) (models.ExportFile, error) {
	var file models.ExportFile
	if err := s.storage.LoadJSONFile(exportDir, name, &file); err != nil {
		return file, apperrors.NewNotFoundError("export "+name+" not found", err)
	}
	return file, nil
}

// Latest reads the newest stored export.
func (s *ExportService) Latest() (models.ExportFile, error) {
	files, err := s.List()
	if err != nil {
		return models.ExportFile{}, err
	}
	if len(files) == 0 {
		return models.ExportFile{}, apperrors.NewNotFoundError("no export written yet", nil)
	}
	return s.Load(files[len(files)-1])
}

// Start schedules periodic exports. An empty spec disables scheduling.
func (s *ExportService) Start(spec string) error {
	if spec == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("export schedule already running")
	}

	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(spec, func() {
		if _, _, err := s.ExportNow(); err != nil {
			s.logger.Error("scheduled export failed", map[string]interface{}{"error": err.Error()})
		}
	}); err != nil {
		return apperrors.NewValidationError("invalid export schedule "+spec, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("export schedule started", map[string]interface{}{"spec": spec})
	return nil
}

// Stop halts the schedule and waits for a running export to finish or ctx
// to expire.
func (s *ExportService) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// NextRun reports when the scheduled export fires next.
func (s *ExportService) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}, false
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
