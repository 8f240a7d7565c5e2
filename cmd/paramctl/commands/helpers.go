package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/inputs"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/reconcile"
)

// inputFlags are the input-resolution flags shared by the file-driven
// commands (push, diff, delete).
type inputFlags struct {
	inputs       []string
	secureInputs []string
	noPrompt     bool
	echo         bool
	useKeyring   bool
}

func addInputFlags(cmd *cobra.Command, f *inputFlags) {
	cmd.Flags().StringArrayVar(&f.inputs, "input", nil, "Input value as NAME=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&f.secureInputs, "secure-input", nil, "Secure input as NAME=CIPHERTEXT (repeatable)")
	cmd.Flags().BoolVar(&f.noPrompt, "no-prompt", false, "Fail instead of prompting for missing inputs")
	cmd.Flags().BoolVar(&f.echo, "echo", false, "Echo secure input values while typing")
	cmd.Flags().BoolVar(&f.useKeyring, "keyring", false, "Cache prompted inputs in the OS keyring")
}

// parseNameValue splits repeatable NAME=VALUE flag values into a map.
func parseNameValue(pairs []string, flag string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, pcerrors.UserError{
				Message:    fmt.Sprintf("Invalid --%s value %q", flag, pair),
				Suggestion: fmt.Sprintf("Use --%s NAME=VALUE", flag),
			}
		}
		values[name] = value
	}
	return values, nil
}

// loadParameterSet parses and merges the parameter files named on the
// command line.
func loadParameterSet(cfg *Config, paths []string) (*paramfile.Set, error) {
	files := make([]*paramfile.File, 0, len(paths))
	for _, path := range paths {
		cfg.Logger.Info("Loading %s...", path)
		f, err := paramfile.LoadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return paramfile.MergeFiles(files...)
}

// resolveParameters runs the full front half of every file-driven command:
// resolve the referenced inputs, substitute them into each file, and flatten
// the results into the ordered desired set plus its base paths.
func resolveParameters(ctx context.Context, cfg *Config, sess *Session, set *paramfile.Set, flags inputFlags) (*inputs.ResolvedSet, []paramfile.ResolvedParameter, []string, error) {
	cliInputs, err := parseNameValue(flags.inputs, "input")
	if err != nil {
		return nil, nil, nil, err
	}
	cliSecure, err := parseNameValue(flags.secureInputs, "secure-input")
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []inputs.Option{
		inputs.WithCLIInputs(cliInputs),
		inputs.WithCLISecureInputs(cliSecure),
		inputs.WithPrompting(!flags.noPrompt),
		inputs.WithEcho(flags.echo),
		inputs.WithIdentity(sess.Identity),
		inputs.WithLogger(cfg.Logger),
	}
	if flags.useKeyring {
		opts = append(opts, inputs.WithKeyring(inputs.SystemKeyring{}))
	}

	resolver := inputs.NewResolver(set.Inputs, opts...)
	resolved, err := resolver.Resolve(ctx, set)
	if err != nil {
		return nil, nil, nil, err
	}

	resolvedFiles := make([]*paramfile.ResolvedFile, 0, len(set.Files))
	for _, f := range set.Files {
		rf, err := resolved.SubstituteFile(f)
		if err != nil {
			return nil, nil, nil, err
		}
		resolvedFiles = append(resolvedFiles, rf)
	}

	params, err := paramfile.Flatten(resolvedFiles)
	if err != nil {
		return nil, nil, nil, err
	}

	return resolved, params, paramfile.BasePaths(resolvedFiles), nil
}

// printPlan renders a plan as a table, one row per planned action.
func printPlan(plan *reconcile.Plan) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "ACTION\tPATH\tTYPE\tDETAIL\n")
	_, _ = fmt.Fprintf(w, "------\t----\t----\t------\n")

	for _, item := range plan.Create {
		_, _ = fmt.Fprintf(w, "create\t%s\t%s\t\n", item.Param.Path, item.Param.Kind)
	}
	for _, item := range plan.Update {
		_, _ = fmt.Fprintf(w, "update\t%s\t%s\t%s\n", item.Param.Path, item.Param.Kind, item.Reason)
	}
	for _, path := range plan.Delete {
		_, _ = fmt.Fprintf(w, "delete\t%s\t\t\n", path)
	}
	for _, path := range plan.Unchanged {
		_, _ = fmt.Fprintf(w, "ok\t%s\t\t\n", path)
	}
	for _, fail := range plan.Failed {
		_, _ = fmt.Fprintf(w, "error\t%s\t\t%v\n", fail.Path, fail.Err)
	}

	_ = w.Flush()
}

// printSummary renders the outcome of one apply.
func printSummary(summary *reconcile.Summary, dryRun bool) {
	heading := "Summary:"
	if dryRun {
		heading = "Summary (dry run):"
	}
	fmt.Printf("\n%s\n", heading)
	fmt.Printf("  Created:   %d\n", summary.Created)
	fmt.Printf("  Updated:   %d\n", summary.Updated)
	fmt.Printf("  Unchanged: %d\n", summary.Unchanged)
	if summary.Skipped > 0 {
		fmt.Printf("  Skipped:   %d (existing, no --overwrite)\n", summary.Skipped)
	}
	if summary.Deleted > 0 {
		fmt.Printf("  Deleted:   %d\n", summary.Deleted)
	}
	if len(summary.Failed) > 0 {
		fmt.Printf("  Failed:    %d\n", len(summary.Failed))
		for _, fail := range summary.Failed {
			fmt.Printf("    %s: %v\n", fail.Path, fail.Err)
		}
	}
}

// failedError converts per-path failures into the command's exit error.
func failedError(failed []reconcile.PathError) error {
	if len(failed) == 0 {
		return nil
	}
	paths := make([]string, len(failed))
	for i, fail := range failed {
		paths[i] = fail.Path
	}
	return pcerrors.UserError{
		Message:    fmt.Sprintf("%d parameter(s) failed", len(failed)),
		Details:    strings.Join(paths, ", "),
		Suggestion: "Fix the failing paths and run again; successful paths are already applied",
	}
}
