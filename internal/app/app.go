// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gin-gonic/gin"

	"github.com/Corphon/LifeBranches/internal/api"
	"github.com/Corphon/LifeBranches/internal/audio"
	"github.com/Corphon/LifeBranches/internal/auth"
	"github.com/Corphon/LifeBranches/internal/config"
	"github.com/Corphon/LifeBranches/internal/di"
	"github.com/Corphon/LifeBranches/internal/llm"
	_ "github.com/Corphon/LifeBranches/internal/llm/providers/anthropic"
	_ "github.com/Corphon/LifeBranches/internal/llm/providers/openrouter"
	"github.com/Corphon/LifeBranches/internal/render"
	"github.com/Corphon/LifeBranches/internal/services"
	"github.com/Corphon/LifeBranches/internal/storage"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const (
	shutdownTimeout  = 30 * time.Second
	snapshotInterval = 250 * time.Millisecond
	metricsInterval  = 5 * time.Minute
	limiterCleanup   = time.Minute
	exportKeep       = 100
	tokenExpiration  = 24 * time.Hour
)

// App owns every long-lived service of one LifeBranches process.
type App struct {
	cfg       *config.Config
	container *di.Container
	logger    *utils.Logger

	sim        *services.Simulation
	hub        *api.Hub
	commentary *services.CommentaryService
	export     *services.ExportService
	player     *audio.Player
	limiter    *api.RateLimiter
	apiMetrics *utils.APIMetrics

	router *gin.Engine
	server *http.Server
}

// New builds the services in dependency order and registers them in a
// fresh container.
func New(cfg *config.Config, logger *utils.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if cfg.Simulation == nil {
		cfg.Simulation = config.DefaultSimulation()
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	logger.SetLogLevel(utils.ParseLogLevel(cfg.LogLevel))

	if err := createDirectories(cfg); err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		container: di.NewContainer(),
		logger:    logger,
	}

	metrics := utils.NewMetricsCollector()
	a.apiMetrics = utils.NewAPIMetrics(metrics, logger.With("metrics"))

	// 1. 事件目录
	catalog, err := loadCatalog(cfg.Simulation)
	if err != nil {
		return nil, err
	}

	// 2. 模拟核心
	a.sim = services.NewSimulation(cfg.Simulation, catalog, logger.With("simulation"), metrics)

	// 3. 存储
	fs, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("app: data storage: %w", err)
	}
	a.export = services.NewExportService(a.sim, fs, exportKeep, logger.With("export"), metrics)

	// 4. 解说
	provider := newProvider(cfg, logger)
	a.commentary = services.NewCommentaryService(catalog, provider, cfg.LLMModel,
		cfg.Simulation.CommentaryWindow, uint64(cfg.Simulation.Seed), logger.With("commentary"), a.apiMetrics)

	// 5. 音频
	var clips *audio.ClipStore
	if cfg.AudioOutput != config.AudioOutputNone {
		audioFS := fs
		if cfg.AudioDir != "" {
			if audioFS, err = storage.NewFileStorage(cfg.AudioDir); err != nil {
				return nil, fmt.Errorf("app: audio storage: %w", err)
			}
		}
		clips = audio.NewClipStore(audioFS, logger.With("clips"))
		a.player = audio.NewPlayer(clips, cfg.AudioOutput, logger.With("audio"), metrics)
	}

	// 6. 推送与中继保护
	a.hub = api.NewHub(logger.With("ws"), metrics)
	if cfg.RateLimit > 0 {
		a.limiter = api.NewRateLimiter(cfg.RateLimit, time.Minute)
	}
	var tokens *auth.TokenConfig
	if cfg.RelaySecret != "" {
		tokens = &auth.TokenConfig{Secret: []byte(cfg.RelaySecret), Expiration: tokenExpiration}
	}

	a.container.Register(di.ServiceLogger, logger)
	a.container.Register(di.ServiceMetrics, metrics)
	a.container.Register(di.ServiceAPIMetrics, a.apiMetrics)
	a.container.Register(di.ServiceCatalog, catalog)
	a.container.Register(di.ServiceSimulation, a.sim)
	a.container.Register(di.ServiceExport, a.export)
	a.container.Register(di.ServiceCommentary, a.commentary)
	a.container.Register(di.ServiceHub, a.hub)
	if clips != nil {
		a.container.Register(di.ServiceClips, clips)
		a.container.Register(di.ServicePlayer, a.player)
	}

	if err := a.healthCheck(); err != nil {
		return nil, err
	}

	deps, err := api.DepsFromContainer(a.container)
	if err != nil {
		return nil, err
	}
	deps.TokenConfig = tokens
	deps.RateLimiter = a.limiter
	deps.DebugMode = cfg.DebugMode

	if a.router, err = api.NewRouter(deps); err != nil {
		return nil, err
	}
	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("application initialised", map[string]interface{}{
		"services":     a.container.GetNames(),
		"audio_output": cfg.AudioOutput,
		"commentary":   providerName(provider),
		"relay_auth":   tokens != nil,
	})
	return a, nil
}

// Container exposes the registered services.
func (a *App) Container() *di.Container { return a.container }

// Handler is the HTTP handler of the relay.
func (a *App) Handler() http.Handler { return a.router }

// Simulation is the running timeline.
func (a *App) Simulation() *services.Simulation { return a.sim }

// Run starts the background workers and the HTTP server and blocks until
// ctx ends or the server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	a.startWorkers(ctx, &wg)

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("relay listening", map[string]interface{}{"addr": a.server.Addr})
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("app: http server: %w", err)
		}
	}

	a.shutdown(cancel, &wg)
	return runErr
}

// RunTerminal is Run with the timeline drawn on the terminal. Quitting the
// view stops the process. The logger must not write to stdout while the
// screen is active. A nil screen opens the controlling terminal; any other
// screen must already be initialised.
func (a *App) RunTerminal(ctx context.Context, screen tcell.Screen) error {
	if screen == nil {
		var err error
		if screen, err = tcell.NewScreen(); err != nil {
			return fmt.Errorf("app: terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("app: terminal: %w", err)
		}
		defer screen.Fini()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	view := render.NewView(screen, a.sim, a.commentary.Recent, a.logger.With("terminal"))
	viewErr := make(chan error, 1)
	go func() {
		viewErr <- view.Run(ctx)
		cancel()
	}()

	err := a.Run(ctx)
	cancel()
	if vErr := <-viewErr; err == nil {
		err = vErr
	}
	return err
}

func (a *App) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	goWorker := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goWorker(func() {
		if err := a.sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("simulation stopped", map[string]interface{}{"error": err.Error()})
		}
	})
	goWorker(func() { a.hub.Run(ctx) })

	wsSignals := a.sim.Subscribe("ws", a.cfg.Simulation.SignalBuffer)
	goWorker(func() { a.hub.Forward(ctx, wsSignals, a.sim.Snapshot, snapshotInterval) })

	a.commentary.SetListener(a.hub.BroadcastCommentary)
	commentarySignals := a.sim.Subscribe("commentary", a.cfg.Simulation.SignalBuffer)
	goWorker(func() { a.commentary.Run(ctx, commentarySignals) })

	if a.player != nil {
		if err := a.player.Start(ctx); err != nil {
			a.logger.Error("audio output unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			audioSignals := a.sim.Subscribe("audio", a.cfg.Simulation.SignalBuffer)
			goWorker(func() { a.player.Run(ctx, audioSignals) })
		}
	}

	if a.limiter != nil {
		goWorker(func() { a.limiter.Cleanup(ctx, limiterCleanup) })
	}
	a.apiMetrics.StartMetricsCollection(ctx, metricsInterval)

	if a.cfg.ExportCron != "" {
		if err := a.export.Start(a.cfg.ExportCron); err != nil {
			a.logger.Error("export schedule rejected", map[string]interface{}{
				"spec":  a.cfg.ExportCron,
				"error": err.Error(),
			})
		}
	}
}

func (a *App) shutdown(cancel context.CancelFunc, wg *sync.WaitGroup) {
	a.logger.Info("shutting down", nil)

	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("http server forced to close", map[string]interface{}{"error": err.Error()})
	}
	a.export.Stop(ctx)
	cancel()
	wg.Wait()

	a.logger.Info("shutdown complete", nil)
}

// healthCheck verifies the critical services are registered.
func (a *App) healthCheck() error {
	for _, name := range []string{di.ServiceSimulation, di.ServiceHub, di.ServiceMetrics, di.ServiceLogger} {
		if !a.container.Has(name) {
			return fmt.Errorf("app: critical service not registered: %s", name)
		}
	}
	return nil
}

func loadCatalog(sim *config.SimulationConfig) (*services.Catalog, error) {
	if sim.CatalogPath != "" {
		c, err := services.LoadCatalog(sim.CatalogPath, sim.MortgageRate)
		if err != nil {
			return nil, fmt.Errorf("app: catalog %s: %w", sim.CatalogPath, err)
		}
		return c, nil
	}
	return services.DefaultCatalog(sim.MortgageRate)
}

// newProvider returns nil when the selected provider has no API key, which
// leaves the commentary on its template lines.
func newProvider(cfg *config.Config, logger *utils.Logger) llm.Provider {
	key := cfg.LLMAPIKey()
	if key == "" {
		return nil
	}
	provider, err := llm.GetProvider(cfg.LLMProvider, map[string]string{
		"api_key":       key,
		"default_model": cfg.LLMModel,
	})
	if err != nil {
		logger.Warn("commentary provider disabled", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"error":    err.Error(),
		})
		return nil
	}
	return provider
}

func providerName(p llm.Provider) string {
	if p == nil {
		return "templates"
	}
	return p.GetName()
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "exports"),
		cfg.LogDir,
	}
	if cfg.AudioDir != "" {
		dirs = append(dirs, cfg.AudioDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("app: create directory %s: %w", dir, err)
		}
	}
	return nil
}
