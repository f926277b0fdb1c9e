// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/LifeBranches/internal/audio"
	"github.com/Corphon/LifeBranches/internal/auth"
	"github.com/Corphon/LifeBranches/internal/di"
	"github.com/Corphon/LifeBranches/internal/services"
	"github.com/Corphon/LifeBranches/internal/utils"
)

// Deps are the services the router serves. Commentary, Export, Clips,
// Player, TokenConfig and RateLimiter are optional.
type Deps struct {
	Simulation  *services.Simulation
	Hub         *Hub
	Commentary  *services.CommentaryService
	Export      *services.ExportService
	Clips       *audio.ClipStore
	Player      *audio.Player
	Metrics     *utils.MetricsCollector
	APIMetrics  *utils.APIMetrics
	Logger      *utils.Logger
	TokenConfig *auth.TokenConfig
	RateLimiter *RateLimiter
	DebugMode   bool
}

// DepsFromContainer resolves the router's services from the app container.
// The simulation, hub, metrics and logger are required.
func DepsFromContainer(c *di.Container) (Deps, error) {
	var deps Deps
	var err error

	if deps.Simulation, err = di.Resolve[*services.Simulation](c, di.ServiceSimulation); err != nil {
		return deps, err
	}
	if deps.Hub, err = di.Resolve[*Hub](c, di.ServiceHub); err != nil {
		return deps, err
	}
	if deps.Metrics, err = di.Resolve[*utils.MetricsCollector](c, di.ServiceMetrics); err != nil {
		return deps, err
	}
	if deps.Logger, err = di.Resolve[*utils.Logger](c, di.ServiceLogger); err != nil {
		return deps, err
	}

	// 可选服务
	deps.APIMetrics, _ = di.Resolve[*utils.APIMetrics](c, di.ServiceAPIMetrics)
	deps.Commentary, _ = di.Resolve[*services.CommentaryService](c, di.ServiceCommentary)
	deps.Export, _ = di.Resolve[*services.ExportService](c, di.ServiceExport)
	deps.Clips, _ = di.Resolve[*audio.ClipStore](c, di.ServiceClips)
	deps.Player, _ = di.Resolve[*audio.Player](c, di.ServicePlayer)
	return deps, nil
}

// NewRouter 配置HTTP路由
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Simulation == nil || deps.Metrics == nil || deps.Logger == nil {
		return nil, fmt.Errorf("api: simulation, metrics and logger are required")
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger.With("ws"), deps.Metrics)
	}

	if !deps.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(deps.Logger.With("http"), deps.APIMetrics))
	router.Use(corsMiddleware())

	handler := NewHandler(deps)

	router.GET("/ws/timeline", handler.TimelineWebSocket)

	api := router.Group("/api")
	{
		// 只读接口
		api.GET("/health", handler.HealthCheck)
		api.GET("/state", handler.GetState)
		api.GET("/catalog", handler.GetCatalog)
		api.GET("/queue", handler.GetQueue)
		api.GET("/commentary", handler.GetCommentary)
		api.GET("/export", handler.GetExport)
		api.GET("/exports", handler.ListExports)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/ws/status", handler.GetWebSocketStatus)
		api.GET("/audio/stream", handler.StreamAudio)
		api.GET("/audio/:id", handler.GetClip)

		// 修改时间线的接口
		relay := api.Group("")
		relay.Use(RateLimitByIP(deps.RateLimiter))
		relay.Use(RelayAuth(deps.TokenConfig, deps.Logger.With("auth")))
		{
			relay.POST("/event", handler.ScheduleEvent)
			relay.POST("/export", handler.CreateExport)

			controls := relay.Group("/controls")
			{
				controls.POST("/split-all", handler.SplitAll)
				controls.POST("/split-one", handler.SplitOne)
				controls.POST("/random-event", handler.RandomEvent)
				controls.POST("/forced-split", handler.ForcedSplit)
				controls.POST("/reset", handler.Reset)
				controls.POST("/pause", handler.Pause)
				controls.POST("/resume", handler.Resume)
				controls.POST("/volume", handler.SetVolume)
			}

			relay.PUT("/audio/:id", handler.UploadClip)
			relay.DELETE("/audio/:id", handler.DeleteClip)
			relay.POST("/audio/:id/play", handler.PlayClip)
		}
	}

	return router, nil
}
