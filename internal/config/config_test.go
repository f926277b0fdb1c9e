package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullSimulationYAML = `
month_spacing: 100
cursor_speed: 4
tick_interval: 50ms
view_width: 1600
stickman_x: 300
branch_spacing: 60
min_spacing: 40
transition_distance: 90
reaction_duration: 45
mortgage_rate: 0.04
seed: 42
catalog_path: catalog.yaml
profile:
  name: Ada
  education: bachelor
  career_length: 5
  age: 30
  family_status: single
`

func TestParseSimulation_Full(t *testing.T) {
	cfg, err := ParseSimulation([]byte(fullSimulationYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MonthSpacing != 100 {
		t.Errorf("MonthSpacing = %v, want 100", cfg.MonthSpacing)
	}
	if cfg.TickInterval != 50*time.Millisecond {
		t.Errorf("TickInterval = %v, want 50ms", cfg.TickInterval)
	}
	if cfg.StickmanX != 300 || cfg.ViewWidth != 1600 {
		t.Errorf("view = %v/%v", cfg.StickmanX, cfg.ViewWidth)
	}
	if cfg.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Seed)
	}
	if cfg.Profile == nil || cfg.Profile.Education != "bachelor" || cfg.Profile.CareerLength != 5 {
		t.Fatalf("Profile = %+v", cfg.Profile)
	}
	// Not set in the file, so defaulted.
	if cfg.SignalBuffer != 64 || cfg.CommentaryWindow != 5 {
		t.Errorf("defaults not applied: buffer=%d window=%d", cfg.SignalBuffer, cfg.CommentaryWindow)
	}
}

func TestParseSimulation_Defaults(t *testing.T) {
	cfg, err := ParseSimulation([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DefaultSimulation()
	if *cfg != *want {
		t.Errorf("empty file = %+v, want %+v", cfg, want)
	}
	if cfg.Profile != nil {
		t.Error("Profile should stay nil without onboarding input")
	}
}

func TestParseSimulation_MortgageRate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want float64
	}{
		{"absent", "seed: 1", DefaultMortgageRate},
		{"explicit zero", "mortgage_rate: 0", 0},
		{"explicit", "mortgage_rate: 0.07", 0.07},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseSimulation([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.MortgageRate != tt.want {
				t.Errorf("MortgageRate = %v, want %v", cfg.MortgageRate, tt.want)
			}
		})
	}
	if got := DefaultSimulation().MortgageRate; got != 0.04 {
		t.Errorf("default MortgageRate = %v, want 0.04", got)
	}
}

func TestParseSimulation_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"negative speed", "cursor_speed: -1", "cursor_speed"},
		{"stickman off screen", "view_width: 100\nstickman_x: 500", "view_width"},
		{"bad education", "profile:\n  education: kindergarten", "profile.education"},
		{"negative mortgage", "mortgage_rate: -0.1", "mortgage_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSimulation([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseSimulation_BadYAML(t *testing.T) {
	if _, err := ParseSimulation([]byte("month_spacing: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadSimulation_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simulation.yaml")
	if err := os.WriteFile(path, []byte("seed: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadSimulation(path)
	if err != nil {
		t.Fatalf("LoadSimulation: %v", err)
	}
	if cfg.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Seed)
	}

	if _, err := LoadSimulation(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("RELAY_SECRET", "s3cret")
	t.Setenv("AUDIO_OUTPUT", "none")
	t.Setenv("RATE_LIMIT", "30")
	t.Setenv("SIMULATION_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.RelaySecret != "s3cret" || cfg.RateLimit != 30 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AudioOutput != AudioOutputNone {
		t.Errorf("AudioOutput = %q", cfg.AudioOutput)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
	if cfg.Simulation == nil || cfg.Simulation.MonthSpacing != DefaultSimulation().MonthSpacing {
		t.Errorf("Simulation = %+v", cfg.Simulation)
	}
}

func TestLoad_BadAudioOutput(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("AUDIO_OUTPUT", "vinyl")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown audio output")
	}
}

func TestLoad_LLMProvider(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("OPENROUTER_API_KEY", "o-key")

	t.Setenv("LLM_PROVIDER", "openrouter")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMAPIKey() != "o-key" {
		t.Errorf("openrouter key = %q", cfg.LLMAPIKey())
	}

	t.Setenv("LLM_PROVIDER", "anthropic")
	if cfg, err = Load(); err != nil || cfg.LLMAPIKey() != "a-key" {
		t.Errorf("anthropic key = %q, err = %v", cfg.LLMAPIKey(), err)
	}

	t.Setenv("LLM_PROVIDER", "oracle")
	if _, err := Load(); err == nil {
		t.Error("unknown provider accepted")
	}
}
