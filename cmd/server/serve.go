package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Corphon/LifeBranches/internal/app"
	"github.com/Corphon/LifeBranches/internal/config"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const logFileName = "lifebranches.log"

func newServeCmd() *cobra.Command {
	var (
		port string
		tui  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and the event relay",
		Long:  "Runs the timeline, the HTTP relay on PORT and the websocket feed. With --tui the timeline is also drawn on this terminal; quitting the view stops the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port, tui)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	cmd.Flags().BoolVar(&tui, "tui", false, "draw the timeline on the terminal")
	return cmd
}

func runServe(cmd *cobra.Command, port string, tui bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}

	// the screen owns stdout in terminal mode
	logger := utils.GetLogger()
	if tui {
		logger = utils.NewLogger(io.Discard)
		gin.DefaultWriter = io.Discard
	}
	if err := logger.OpenFile(filepath.Join(cfg.LogDir, logFileName)); err != nil {
		return err
	}
	defer logger.Close()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tui {
		return a.RunTerminal(ctx, nil)
	}
	return a.Run(ctx)
}
