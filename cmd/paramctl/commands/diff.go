package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/paramctl/internal/reconcile"
)

func NewDiffCommand(cfg *Config) *cobra.Command {
	var flags inputFlags

	cmd := &cobra.Command{
		Use:   "diff FILE...",
		Short: "Show the difference between parameter files and the store",
		Long: `Diff reports what push would change without touching the store: which
declared parameters are missing, which differ from their live values, and
which live parameters under the files' base paths are undeclared.`,
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

			rec := reconcile.NewReconciler(sess.Store, sess.Codec, reconcile.WithLogger(cfg.Logger))

			plan, err := rec.Diff(ctx, reconcile.DiffRequest{
				Desired:   params,
				BasePaths: basePaths,
				Delete:    true,
			}, resolved)
			if err != nil {
				return err
			}

			printPlan(plan)
			if plan.Empty() && len(plan.Failed) == 0 {
				fmt.Println("\nNo changes.")
			}
			return failedError(plan.Failed)
		},
	}

	addInputFlags(cmd, &flags)

	return cmd
}
