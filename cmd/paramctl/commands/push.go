package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/systmms/paramctl/internal/reconcile"
)

func NewPushCommand(cfg *Config) *cobra.Command {
	var (
		flags       inputFlags
		overwrite   bool
		deleteStale bool
		dryRun      bool
		showDiff    bool
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "push FILE...",
		Short: "Reconcile parameter files against the store",
		Long: `Push diffs the parameters declared in the given files against the live
store and applies the difference: missing parameters are created, changed
ones are updated under --overwrite, and with --delete every live parameter
under the files' base paths that no file declares is removed.

Examples:
  # Push one file, prompting for any undeclared inputs
  paramctl push parameters.yaml

  # Supply inputs on the command line and allow updates
  paramctl push --input Env=prod --overwrite parameters.yaml

  # Show the plan without touching the store
  paramctl push --dry-run --diff parameters.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			sess, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}

			set, err := loadParameterSet(cfg, args)
			if err != nil {
				return err
			}

			resolved, params, basePaths, err := resolveParameters(ctx, cfg, sess, set, flags)
			if err != nil {
				return err
			}

			rec := reconcile.NewReconciler(sess.Store, sess.Codec,
				reconcile.WithWorkers(workers),
				reconcile.WithLogger(cfg.Logger))

			plan, err := rec.Diff(ctx, reconcile.DiffRequest{
				Desired:   params,
				BasePaths: basePaths,
				Delete:    deleteStale,
			}, resolved)
			if err != nil {
				return err
			}

			if showDiff || dryRun {
				printPlan(plan)
			}

			summary, err := rec.Apply(ctx, plan, resolved, reconcile.ApplyOptions{
				Overwrite: overwrite,
				DryRun:    dryRun,
			})
			if err != nil {
				return err
			}

			printSummary(summary, dryRun)
			return failedError(summary.Failed)
		},
	}

	addInputFlags(cmd, &flags)
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Allow updates to existing parameters")
	cmd.Flags().BoolVar(&deleteStale, "delete", false, "Delete undeclared parameters under the files' base paths")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without applying it")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print the plan before applying")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent store writes")

	return cmd
}
