package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/services"
)

func newExplainCmd() *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "explain <worlds.json>",
		Short: "Explain the riskiest world of an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			worlds, err := models.ParseWorlds(data)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewPCG(seed, seed))
			comment, ok := services.MostRisky(worlds, rng)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No notable events this year.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (severity %d)\n", comment.Text, comment.Severity)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 1, "seed for partner names")
	return cmd
}
