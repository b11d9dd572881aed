package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PorticoEstate/matrikkel-sub000/internal/app"
	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/PorticoEstate/matrikkel-sub000/internal/registry"
	"github.com/PorticoEstate/matrikkel-sub000/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

var validate = validator.New()

type importOptions struct {
	resume         bool
	cursor         int64
	cursorSet      bool
	municipalities []string
}

// importPlan is a validated import invocation.
type importPlan struct {
	all    bool
	entity models.EntityType
	opts   services.ImportOptions
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <parcels|owners|buildings|units|addresses|all>",
		Short: "Import one entity type, or everything followed by hierarchy coding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.cursorSet = cmd.Flags().Changed("cursor")
			plan, err := opts.plan(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return runImport(ctx, a.Imports, plan, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Resume from the last saved checkpoint")
	cmd.Flags().Int64Var(&opts.cursor, "cursor", 0, "Resume after the object with this id")
	cmd.Flags().StringSliceVar(&opts.municipalities, "municipality", nil, "Municipality numbers to import (default: IMPORT_MUNICIPALITIES)")

	return cmd
}

func (o importOptions) plan(target string) (importPlan, error) {
	var p importPlan
	for _, m := range o.municipalities {
		if err := validate.Var(m, "numeric,len=4"); err != nil {
			return p, fmt.Errorf("invalid --municipality %q: must be four digits", m)
		}
	}
	p.opts = services.ImportOptions{Municipalities: o.municipalities, Resume: o.resume}

	if strings.EqualFold(strings.TrimSpace(target), "all") {
		if o.cursorSet {
			return p, fmt.Errorf("--cursor cannot be combined with all")
		}
		p.all = true
		return p, nil
	}

	entity, err := models.ParseEntityType(target)
	if err != nil {
		return p, err
	}
	p.entity = entity

	if o.cursorSet {
		if o.cursor < 0 {
			return p, fmt.Errorf("invalid --cursor %d: must not be negative", o.cursor)
		}
		if entity == models.EntityPerson {
			return p, fmt.Errorf("--cursor is not supported for %s", entity)
		}
		cursor := registry.CursorAfter(entity, o.cursor)
		p.opts.ResumeCursor = &cursor
	}
	return p, nil
}

func runImport(ctx context.Context, imports services.ImportService, p importPlan, out io.Writer) error {
	if p.all {
		summary, err := imports.ImportAll(ctx, p.opts)
		if werr := writeJSON(out, summary); werr != nil {
			return werr
		}
		if err != nil {
			return withCode(exitImport, err)
		}
		return nil
	}

	result, err := imports.Import(ctx, p.entity, p.opts)
	if werr := writeJSON(out, result); werr != nil {
		return werr
	}
	if err != nil {
		return withCode(exitImport, err)
	}
	return nil
}
