package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func NewDeleteCommand(cfg *Config) *cobra.Command {
	var (
		flags  inputFlags
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "delete FILE...",
		Short: "Delete every parameter the files manage",
		Long: `Delete removes every live parameter under the files' base paths together
with every path the files declare, including absolute paths outside any
base path. Missing parameters are tolerated.`,
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

			_, params, basePaths, err := resolveParameters(ctx, cfg, sess, set, flags)
			if err != nil {
				return err
			}

			names := make(map[string]bool)
			for _, basePath := range basePaths {
				cfg.Logger.Info("Flushing base path %s...", basePath)
				live, err := sess.Store.ListByPrefix(ctx, basePath)
				if err != nil {
					return err
				}
				for _, p := range live {
					names[p.Name] = true
				}
			}
			for _, p := range params {
				names[p.Path] = true
			}

			ordered := make([]string, 0, len(names))
			for name := range names {
				ordered = append(ordered, name)
			}
			sort.Strings(ordered)

			if dryRun {
				for _, name := range ordered {
					fmt.Printf("would delete %s\n", name)
				}
				fmt.Printf("\n%d parameter(s) would be deleted.\n", len(ordered))
				return nil
			}

			for _, name := range ordered {
				cfg.Logger.Debug("Deleting %s", name)
				if err := sess.Store.Delete(ctx, name); err != nil {
					return err
				}
			}

			fmt.Printf("Deleted %d parameter(s).\n", len(ordered))
			return nil
		},
	}

	addInputFlags(cmd, &flags)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be deleted without deleting")

	return cmd
}
