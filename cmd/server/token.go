package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/LifeBranches/internal/auth"
	"github.com/Corphon/LifeBranches/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		expiration time.Duration
		newSecret  bool
	)

	cmd := &cobra.Command{
		Use:   "token [producer]",
		Short: "Issue a relay bearer token signed with RELAY_SECRET",
		Long:  "Prints a bearer token for a relay producer. With --new-secret it prints a fresh random RELAY_SECRET instead.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if newSecret {
				key, err := auth.GenerateSecureKey(32)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("producer name required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.RelaySecret == "" {
				return fmt.Errorf("RELAY_SECRET is not set")
			}
			token, err := auth.GenerateToken(args[0], &auth.TokenConfig{
				Secret:     []byte(cfg.RelaySecret),
				Expiration: expiration,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&expiration, "expires", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&newSecret, "new-secret", false, "print a new random secret")
	return cmd
}
