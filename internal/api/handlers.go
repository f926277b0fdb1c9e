// internal/api/handlers.go
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/LifeBranches/internal/audio"
	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/services"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const maxEventBodyBytes = 64 << 10

// Handler 处理API请求
type Handler struct {
	sim        *services.Simulation
	hub        *Hub
	commentary *services.CommentaryService // 可为空
	export     *services.ExportService     // 可为空
	clips      *audio.ClipStore            // 可为空
	player     *audio.Player               // 可为空
	metrics    *utils.MetricsCollector
	logger     *utils.Logger
	startedAt  time.Time
	Response   *ResponseHelper
}

// NewHandler builds the handler set from the app's services.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		sim:        deps.Simulation,
		hub:        deps.Hub,
		commentary: deps.Commentary,
		export:     deps.Export,
		clips:      deps.Clips,
		player:     deps.Player,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		startedAt:  time.Now(),
		Response:   NewResponseHelper(),
	}
}

// EventRequest is the native relay payload.
type EventRequest struct {
	Event     string            `json:"event"`
	Year      int               `json:"year"`
	Month     int               `json:"month"`
	BranchID  int               `json:"branchId"`
	Overrides *models.Overrides `json:"overrides,omitempty"`

	// Text and Data carry the narrated producer format.
	Text string        `json:"text,omitempty"`
	Data *RelayPayload `json:"data,omitempty"`
}

// RelayPayload is the "data" object of the narrated producer format.
// CurrentIncome is annual; MonthlyWage wins when both are sent.
type RelayPayload struct {
	RecentEvent   string   `json:"recent_event"`
	Year          int      `json:"year"`
	Month         int      `json:"month"`
	BranchID      int      `json:"branchId"`
	Name          *string  `json:"name,omitempty"`
	CurrentIncome *float64 `json:"current_income,omitempty"`
	MonthlyWage   *int64   `json:"monthly_wage,omitempty"`
	CurrentLoan   *int64   `json:"current_loan,omitempty"`
	FamilyStatus  *string  `json:"family_status,omitempty"`
	Children      *int     `json:"children,omitempty"`
	HealthStatus  *string  `json:"health_status,omitempty"`
	AudioID       string   `json:"audio_id,omitempty"`
	AudioDuration float64  `json:"audio_duration,omitempty"`
}

// overrides converts the producer fields into state overrides.
func (p *RelayPayload) overrides() (*models.Overrides, error) {
	o := &models.Overrides{
		Name:              p.Name,
		CurrentLoan:       p.CurrentLoan,
		ChildCount:        p.Children,
		HealthStatus:      p.HealthStatus,
		NarrationAudioID:  p.AudioID,
		NarrationDuration: p.AudioDuration,
	}

	switch {
	case p.MonthlyWage != nil:
		o.MonthlyWage = p.MonthlyWage
	case p.CurrentIncome != nil:
		wage := int64(*p.CurrentIncome / 12)
		o.MonthlyWage = &wage
	}

	if p.FamilyStatus != nil && *p.FamilyStatus != "" {
		status, err := models.ParseMaritalStatus(*p.FamilyStatus)
		if err != nil {
			return nil, err
		}
		o.MaritalStatus = &status
	}
	return o, nil
}

// toSchedule maps either payload shape onto a schedule request.
func (r *EventRequest) toSchedule() (services.ScheduleRequest, error) {
	if r.Data != nil {
		overrides, err := r.Data.overrides()
		if err != nil {
			return services.ScheduleRequest{}, apperrors.NewValidationError(err.Error(), err)
		}
		return services.ScheduleRequest{
			EventName: strings.TrimSpace(r.Data.RecentEvent),
			Year:      r.Data.Year,
			Month:     r.Data.Month,
			BranchID:  r.Data.BranchID,
			Overrides: overrides,
			Source:    models.SourceRelay,
			Text:      r.Text,
		}, nil
	}

	return services.ScheduleRequest{
		EventName: strings.TrimSpace(r.Event),
		Year:      r.Year,
		Month:     r.Month,
		BranchID:  r.BranchID,
		Overrides: r.Overrides,
		Source:    models.SourceRelay,
		Text:      r.Text,
	}, nil
}

// ScheduleEvent handles POST /api/event.
func (h *Handler) ScheduleEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBodyBytes)

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid event payload", err.Error())
		return
	}

	sched, err := req.toSchedule()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if sched.EventName == "" {
		h.Response.BadRequest(c, "event name is required")
		return
	}
	if sched.Year == 0 {
		sched.Year, _ = models.YearMonth(h.sim.Snapshot().MonthIndex)
	}

	ev, err := h.sim.Schedule(sched)
	if err != nil {
		h.logger.Warn("relay event rejected", map[string]interface{}{
			"event":    sched.EventName,
			"branch":   sched.BranchID,
			"producer": producerFromContext(c),
			"error":    err.Error(),
		})
		h.Response.FromError(c, err)
		return
	}

	h.logger.Info("relay event scheduled", map[string]interface{}{
		"event":    ev.EventName,
		"branch":   ev.BranchID,
		"month":    models.MonthLabel(ev.MonthIndex),
		"producer": producerFromContext(c),
	})
	h.Response.Accepted(c, ev)
}

// GetState handles GET /api/state.
func (h *Handler) GetState(c *gin.Context) {
	h.Response.Success(c, h.sim.Snapshot())
}

// GetCatalog handles GET /api/catalog.
func (h *Handler) GetCatalog(c *gin.Context) {
	h.Response.Success(c, h.sim.Catalog().All())
}

// GetQueue handles GET /api/queue.
func (h *Handler) GetQueue(c *gin.Context) {
	h.Response.Success(c, h.sim.Pending())
}

// GetCommentary handles GET /api/commentary?limit=N.
func (h *Handler) GetCommentary(c *gin.Context) {
	if h.commentary == nil {
		h.Response.Success(c, []models.Commentary{})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.Response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	h.Response.Success(c, h.commentary.Recent(limit))
}

// GetExport handles GET /api/export. Without ?name it returns the live
// snapshot in export format; with ?name=latest or a file name it returns
// a saved export.
func (h *Handler) GetExport(c *gin.Context) {
	if h.export == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorExportNotFound, "export is disabled")
		return
	}

	name := c.Query("name")
	switch name {
	case "":
		h.Response.Success(c, h.export.Build())
		return
	case "latest":
		file, err := h.export.Latest()
		if err != nil {
			h.Response.FromError(c, err)
			return
		}
		h.Response.Success(c, file)
		return
	}

	file, err := h.export.Load(name)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, file)
}

// CreateExport handles POST /api/export.
func (h *Handler) CreateExport(c *gin.Context) {
	if h.export == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorExportNotFound, "export is disabled")
		return
	}
	name, file, err := h.export.ExportNow()
	if err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorExportFailed, "export failed", err.Error())
		return
	}
	h.Response.Created(c, gin.H{"name": name, "export": file})
}

// ListExports handles GET /api/exports.
func (h *Handler) ListExports(c *gin.Context) {
	if h.export == nil {
		h.Response.Success(c, []string{})
		return
	}
	names, err := h.export.List()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.Response.Success(c, names)
}

// GetMetrics handles GET /api/metrics.
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, h.metrics.GetMetrics())
}

// HealthCheck handles GET /api/health.
func (h *Handler) HealthCheck(c *gin.Context) {
	snap := h.sim.Snapshot()
	status := gin.H{
		"status":     "ok",
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"month":      snap.MonthLabel,
		"paused":     snap.Paused,
		"branches":   len(snap.Branches),
		"queue":      snap.QueueLength,
		"ws_clients": 0,
	}
	if h.hub != nil {
		status["ws_clients"] = h.hub.ClientCount()
	}
	if h.player != nil {
		status["audio_output"] = h.player.Output()
	}
	h.Response.Success(c, status)
}

// GetWebSocketStatus handles GET /api/ws/status.
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	if h.hub == nil {
		h.Response.Success(c, gin.H{"total_connections": 0})
		return
	}
	h.Response.Success(c, h.hub.GetStatus())
}

// SplitAll handles POST /api/controls/split-all.
func (h *Handler) SplitAll(c *gin.Context) {
	h.Response.Success(c, h.sim.SplitAll())
}

// SplitOneRequest optionally targets a branch; omitted means random.
type SplitOneRequest struct {
	BranchID *int `json:"branch_id"`
}

// SplitOne handles POST /api/controls/split-one.
func (h *Handler) SplitOne(c *gin.Context) {
	var req SplitOneRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.Response.BadRequest(c, "invalid split request", err.Error())
			return
		}
	}
	if raw := c.Query("branch_id"); raw != "" && req.BranchID == nil {
		id, err := strconv.Atoi(raw)
		if err != nil {
			h.Response.BadRequest(c, fmt.Sprintf("invalid branch_id %q", raw))
			return
		}
		req.BranchID = &id
	}

	res, err := h.sim.SplitOne(req.BranchID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, res)
}

// RandomEvent handles POST /api/controls/random-event.
func (h *Handler) RandomEvent(c *gin.Context) {
	ev, err := h.sim.GenerateRandomEvent()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Accepted(c, ev)
}

// ForcedSplit handles POST /api/controls/forced-split.
func (h *Handler) ForcedSplit(c *gin.Context) {
	ev, err := h.sim.GenerateForcedSplitEvent()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Accepted(c, ev)
}

// Reset handles POST /api/controls/reset.
func (h *Handler) Reset(c *gin.Context) {
	h.sim.Reset()
	h.Response.Success(c, h.sim.Snapshot(), "timeline reset")
}

// Pause handles POST /api/controls/pause.
func (h *Handler) Pause(c *gin.Context) {
	h.sim.Pause()
	h.Response.Success(c, gin.H{"paused": true})
}

// Resume handles POST /api/controls/resume.
func (h *Handler) Resume(c *gin.Context) {
	h.sim.Resume()
	h.Response.Success(c, gin.H{"paused": false})
}
