package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/PorticoEstate/matrikkel-sub000/internal/app"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/services"
	"github.com/spf13/cobra"
)

type organizeOptions struct {
	property int64
	force    bool
}

func newOrganizeCmd() *cobra.Command {
	var opts organizeOptions

	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Assign location codes to imported properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("property") && opts.property <= 0 {
				return withCode(exitUsage, fmt.Errorf("invalid --property %d: must be positive", opts.property))
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return runOrganize(ctx, a.Hierarchy, opts, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().Int64Var(&opts.property, "property", 0, "Code only this property (parcel id)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Recode properties that already have a code")

	return cmd
}

func runOrganize(ctx context.Context, hierarchy services.HierarchyService, opts organizeOptions, out io.Writer) error {
	if opts.property > 0 {
		result, err := hierarchy.OrganizeProperty(ctx, models.ParcelID(opts.property), opts.force)
		if errors.Is(err, services.ErrPropertyNotFound) {
			return withCode(exitNotFound, err)
		}
		if err != nil {
			return withCode(exitStore, err)
		}
		return writeJSON(out, result)
	}

	summary, err := hierarchy.OrganizeAll(ctx, opts.force)
	if err != nil {
		return withCode(exitStore, err)
	}
	return writeJSON(out, summary)
}
