package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Corphon/LifeBranches/internal/config"
	"github.com/Corphon/LifeBranches/internal/di"
	"github.com/Corphon/LifeBranches/internal/utils"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	sim := config.DefaultSimulation()
	sim.Seed = 11
	sim.TickInterval = 5 * time.Millisecond
	return &config.Config{
		Port:        "0",
		DataDir:     filepath.Join(dir, "data"),
		LogDir:      filepath.Join(dir, "logs"),
		LogLevel:    "error",
		RateLimit:   100,
		AudioOutput: config.AudioOutputNone,
		ExportCron:  "@every 1h",
		Simulation:  sim,
	}
}

func TestNewRegistersServices(t *testing.T) {
	a, err := New(testConfig(t), utils.NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, name := range []string{
		di.ServiceSimulation, di.ServiceCatalog, di.ServiceCommentary, di.ServiceExport,
		di.ServiceHub, di.ServiceMetrics, di.ServiceAPIMetrics, di.ServiceLogger,
	} {
		if !a.Container().Has(name) {
			t.Errorf("service %s not registered", name)
		}
	}
	if a.Container().Has(di.ServicePlayer) || a.Container().Has(di.ServiceClips) {
		t.Error("audio services registered with output none")
	}
}

func TestNewWithAudio(t *testing.T) {
	cfg := testConfig(t)
	cfg.AudioOutput = config.AudioOutputStream
	cfg.AudioDir = filepath.Join(t.TempDir(), "clips")

	a, err := New(cfg, utils.NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !a.Container().Has(di.ServicePlayer) || !a.Container().Has(di.ServiceClips) {
		t.Error("audio services missing")
	}
}

func TestNewRejectsBadCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(cfg, utils.NopLogger()); err == nil {
		t.Fatal("missing catalog accepted")
	}
}

func TestHandlerServesState(t *testing.T) {
	a, err := New(testConfig(t), utils.NopLogger())
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			MonthLabel string `json:"month_label"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp.Success {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t), utils.NopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// the simulation ticks while running
	start := a.Simulation().Snapshot().Cursor
	deadline := time.Now().Add(2 * time.Second)
	for a.Simulation().Snapshot().Cursor == start {
		if time.Now().After(deadline) {
			t.Fatal("simulation did not advance")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunTerminalQuits(t *testing.T) {
	a, err := New(testConfig(t), utils.NopLogger())
	if err != nil {
		t.Fatal(err)
	}

	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	defer screen.Fini()
	screen.SetSize(100, 30)

	done := make(chan error, 1)
	go func() { done <- a.RunTerminal(context.Background(), screen) }()

	// keys injected before the view polls may be dropped, so keep sending
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("RunTerminal = %v", err)
			}
			return
		case <-ticker.C:
			screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
		case <-timeout:
			t.Fatal("RunTerminal did not return after q")
		}
	}
}

func TestNewProviderSelection(t *testing.T) {
	cfg := testConfig(t)
	if p := newProvider(cfg, utils.NopLogger()); p != nil {
		t.Errorf("provider without key = %v", p.GetName())
	}

	cfg.LLMProvider = "openrouter"
	cfg.OpenRouterAPIKey = "k"
	if p := newProvider(cfg, utils.NopLogger()); p == nil || providerName(p) != "OpenRouter" {
		t.Errorf("openrouter provider = %v", p)
	}

	cfg.LLMProvider = "anthropic"
	cfg.AnthropicAPIKey = "k"
	if p := newProvider(cfg, utils.NopLogger()); p == nil || providerName(p) != "Anthropic Claude" {
		t.Errorf("anthropic provider = %v", p)
	}

	cfg.LLMProvider = "nobody"
	if p := newProvider(cfg, utils.NopLogger()); p != nil {
		t.Error("unknown provider returned")
	}
}
