package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/LifeBranches/internal/models"
)

// DefaultMortgageRate is the surcharge take_loan adds when mortgage_rate is
// absent. An explicit 0 disables it.
const DefaultMortgageRate = 0.04

// SimulationConfig tunes the timeline geometry and pacing. Distances are in
// world units; the cursor moves CursorSpeed units per tick.
type SimulationConfig struct {
	MonthSpacing       float64         `yaml:"month_spacing"`
	CursorSpeed        float64         `yaml:"cursor_speed"`
	TickInterval       time.Duration   `yaml:"tick_interval"`
	ViewWidth          float64         `yaml:"view_width"`
	StickmanX          float64         `yaml:"stickman_x"`
	BranchSpacing      float64         `yaml:"branch_spacing"`
	MinSpacing         float64         `yaml:"min_spacing"`
	TransitionDistance float64         `yaml:"transition_distance"`
	ReactionDuration   float64         `yaml:"reaction_duration"`
	MortgageRate       float64         `yaml:"mortgage_rate"`
	Seed               int64           `yaml:"seed"`
	SignalBuffer       int             `yaml:"signal_buffer"`
	CommentaryWindow   int             `yaml:"commentary_window"`
	CatalogPath        string          `yaml:"catalog_path"`
	Profile            *models.Profile `yaml:"profile"`
}

// DefaultSimulation returns the built-in tuning.
func DefaultSimulation() *SimulationConfig {
	c := &SimulationConfig{MortgageRate: DefaultMortgageRate}
	c.applyDefaults()
	return c
}

// LoadSimulation reads a YAML simulation file from path.
func LoadSimulation(path string) (*SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseSimulation(data)
}

// ParseSimulation unmarshals YAML bytes into a validated SimulationConfig.
func ParseSimulation(data []byte) (*SimulationConfig, error) {
	// yaml leaves absent keys untouched, so the rate keeps its default
	cfg := SimulationConfig{MortgageRate: DefaultMortgageRate}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SimulationConfig) applyDefaults() {
	if c.MonthSpacing == 0 {
		c.MonthSpacing = 120
	}
	if c.CursorSpeed == 0 {
		c.CursorSpeed = 2
	}
	if c.TickInterval == 0 {
		c.TickInterval = 33 * time.Millisecond
	}
	if c.ViewWidth == 0 {
		c.ViewWidth = 1200
	}
	if c.StickmanX == 0 {
		c.StickmanX = 200
	}
	if c.BranchSpacing == 0 {
		c.BranchSpacing = 80
	}
	if c.MinSpacing == 0 {
		c.MinSpacing = 80
	}
	if c.TransitionDistance == 0 {
		c.TransitionDistance = 120
	}
	if c.ReactionDuration == 0 {
		c.ReactionDuration = 90
	}
	if c.SignalBuffer == 0 {
		c.SignalBuffer = 64
	}
	if c.CommentaryWindow == 0 {
		c.CommentaryWindow = 5
	}
}

func (c *SimulationConfig) validate() error {
	var errs []string
	if c.MonthSpacing < 0 {
		errs = append(errs, "month_spacing must be positive")
	}
	if c.CursorSpeed < 0 {
		errs = append(errs, "cursor_speed must be positive")
	}
	if c.TickInterval < 0 {
		errs = append(errs, "tick_interval must be positive")
	}
	if c.ViewWidth < c.StickmanX {
		errs = append(errs, "view_width must not be smaller than stickman_x")
	}
	if c.MinSpacing < 0 || c.BranchSpacing < 0 {
		errs = append(errs, "branch_spacing and min_spacing must be positive")
	}
	if c.TransitionDistance < 0 || c.ReactionDuration < 0 {
		errs = append(errs, "transition_distance and reaction_duration must be positive")
	}
	if c.MortgageRate < 0 {
		errs = append(errs, "mortgage_rate must not be negative")
	}
	if c.SignalBuffer < 0 || c.CommentaryWindow < 0 {
		errs = append(errs, "signal_buffer and commentary_window must not be negative")
	}
	if p := c.Profile; p != nil {
		switch p.Education {
		case "", "high_school", "bachelor", "master", "doctorate":
		default:
			errs = append(errs, fmt.Sprintf("profile.education %q is not one of high_school, bachelor, master, doctorate", p.Education))
		}
		if p.CareerLength < 0 || p.Age < 0 || p.Children < 0 {
			errs = append(errs, "profile numbers must not be negative")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
