package main

import (
	"context"

	"github.com/PorticoEstate/matrikkel-sub000/internal/app"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				a.Log.Info("Starting Matrikkel ops server", map[string]interface{}{
					"version":     app.Version,
					"environment": a.Config.Server.Env,
					"port":        a.Config.Server.Port,
				})
				return a.Serve(ctx)
			})
		},
	}
}
