package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deep-research-agent/internal/bootstrap"
	"deep-research-agent/internal/config"
	"deep-research-agent/internal/pkg/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type cliApp struct {
	cfg       *config.Config
	logger    *logger.ZapLogger
	container *bootstrap.Container
}

var app = &cliApp{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	app.close()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "research",
		Short:         "Run and manage multi-stage deep research sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newSessionsCmd(),
		newWatchCmd(),
	)
	return root
}

// load builds the container once per process. Logs go to the file only so
// progress output stays readable.
func (a *cliApp) load() error {
	if a.container != nil {
		return nil
	}

	a.cfg = config.Load()
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.logger = logger.NewIsolatedLogger(a.cfg.App.LogFilePath)

	container, err := bootstrap.NewContainer(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	a.container = container
	return nil
}

func (a *cliApp) close() {
	if a.container != nil {
		a.container.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
