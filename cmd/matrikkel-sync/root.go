package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/PorticoEstate/matrikkel-sub000/internal/app"
	"github.com/PorticoEstate/matrikkel-sub000/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "matrikkel-sync",
		Short:         "Synchronize the Matrikkel cadastral registry into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newOrganizeCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

// withApp loads the configuration, builds the application and runs fn.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return withCode(exitConfig, err)
	}

	log := app.NewLogger(cfg)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return withCode(exitStore, err)
	}
	defer a.Close()

	return fn(ctx, a)
}
