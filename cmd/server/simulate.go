package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/LifeBranches/internal/config"
	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/services"
	"github.com/Corphon/LifeBranches/internal/utils"
)

type simulateOptions struct {
	configPath string
	months     int
	seed       int64
	random     int
	splitEvery int
	out        string
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the timeline headless and print the worlds file",
		Long:  "Advances the timeline by --months without a clock, scheduling --random random events per month and splitting every branch every --split-every months, then writes the branch states in the export format.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "simulation tuning YAML (defaults built in)")
	cmd.Flags().IntVarP(&opts.months, "months", "m", 12, "months to simulate")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed (0 keeps the configured seed)")
	cmd.Flags().IntVar(&opts.random, "random", 1, "random events scheduled per month")
	cmd.Flags().IntVar(&opts.splitEvery, "split-every", 0, "split all branches every N months (0 never)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func runSimulate(cmd *cobra.Command, opts simulateOptions) error {
	if opts.months < 0 || opts.random < 0 || opts.splitEvery < 0 {
		return fmt.Errorf("months, random and split-every must not be negative")
	}

	simCfg := config.DefaultSimulation()
	if opts.configPath != "" {
		var err error
		if simCfg, err = config.LoadSimulation(opts.configPath); err != nil {
			return err
		}
	}
	if opts.seed != 0 {
		simCfg.Seed = opts.seed
	}

	var catalog *services.Catalog
	var err error
	if simCfg.CatalogPath != "" {
		catalog, err = services.LoadCatalog(simCfg.CatalogPath, simCfg.MortgageRate)
	} else {
		catalog, err = services.DefaultCatalog(simCfg.MortgageRate)
	}
	if err != nil {
		return err
	}

	sim := services.NewSimulation(simCfg, catalog, utils.NopLogger(), utils.NewMetricsCollector())
	for m := 1; m <= opts.months; m++ {
		for i := 0; i < opts.random; i++ {
			if _, err := sim.GenerateRandomEvent(); err != nil {
				return err
			}
		}
		sim.AdvanceMonths(1)
		if opts.splitEvery > 0 && m%opts.splitEvery == 0 {
			sim.SplitAll()
		}
	}

	snap := sim.Snapshot()
	file := models.NewExportFile(time.Now(), snap.MonthLabel, snap.Branches)
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if opts.out != "" {
		return os.WriteFile(opts.out, data, 0644)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
