package reconcile

import (
	"context"
	"sync"
	"time"

	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/inputs"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/store"
)

// retry policy for throttled store calls
const (
	maxPutAttempts = 5
	retryBaseDelay = 200 * time.Millisecond
)

// ApplyOptions modify how a plan is executed.
type ApplyOptions struct {
	// Overwrite allows updates to existing parameters. An entry-level
	// Overwrite field overrides it in either direction.
	Overwrite bool
	// DryRun reports what would happen without calling the store.
	DryRun bool
}

// Summary counts the outcome of one apply.
type Summary struct {
	Created   int
	Updated   int
	Skipped   int
	Deleted   int
	Unchanged int
	Failed    []PathError
}

// Apply executes the plan: deletions first, then creates and updates under a
// bounded worker pool. A failure on one path never aborts the others; all
// failures are collected in the summary.
func (r *Reconciler) Apply(ctx context.Context, plan *Plan, set *inputs.ResolvedSet, opts ApplyOptions) (*Summary, error) {
	summary := &Summary{Unchanged: len(plan.Unchanged)}
	summary.Failed = append(summary.Failed, plan.Failed...)

	if opts.DryRun {
		summary.Created = len(plan.Create)
		summary.Deleted = len(plan.Delete)
		for _, item := range plan.Update {
			if r.allowOverwrite(item.Param, opts) {
				summary.Updated++
			} else {
				summary.Skipped++
			}
		}
		return summary, nil
	}

	var mu sync.Mutex
	fail := func(path string, err error) {
		if store.IsAccessDenied(err) {
			err = pcerrors.UserError{
				Message:    "Access denied for " + path,
				Details:    err.Error(),
				Suggestion: "Check that the IAM policy grants ssm:PutParameter and ssm:DeleteParameter on this path",
				Err:        err,
			}
		}
		mu.Lock()
		summary.Failed = append(summary.Failed, PathError{Path: path, Err: err})
		mu.Unlock()
	}
	count := func(n *int) {
		mu.Lock()
		*n++
		mu.Unlock()
	}

	// Deletions complete before any write so a parameter changing kind via
	// delete+create never races its own put.
	r.forEach(ctx, len(plan.Delete), func(i int) {
		name := plan.Delete[i]
		if err := r.withRetry(ctx, func() error { return r.store.Delete(ctx, name) }); err != nil {
			fail(name, err)
			return
		}
		r.logger.Debug("Deleted %s", name)
		count(&summary.Deleted)
	})

	r.forEach(ctx, len(plan.Create), func(i int) {
		param := plan.Create[i].Param
		if err := r.put(ctx, param, set, r.allowOverwrite(param, opts)); err != nil {
			// A parameter that appeared since the diff is a conflict the
			// overwrite policy owns, not a failure.
			if store.IsAlreadyExists(err) {
				r.logger.Debug("Skipped %s (already exists, overwrite not allowed)", param.Path)
				count(&summary.Skipped)
				return
			}
			fail(param.Path, err)
			return
		}
		r.logger.Debug("Created %s", param.Path)
		count(&summary.Created)
	})

	r.forEach(ctx, len(plan.Update), func(i int) {
		param := plan.Update[i].Param
		if !r.allowOverwrite(param, opts) {
			r.logger.Debug("Skipped %s (overwrite not allowed)", param.Path)
			count(&summary.Skipped)
			return
		}
		if err := r.put(ctx, param, set, true); err != nil {
			fail(param.Path, err)
			return
		}
		r.logger.Debug("Updated %s", param.Path)
		count(&summary.Updated)
	})

	return summary, nil
}

// allowOverwrite resolves the effective overwrite policy for one parameter.
func (r *Reconciler) allowOverwrite(param paramfile.ResolvedParameter, opts ApplyOptions) bool {
	if param.Overwrite != nil {
		return *param.Overwrite
	}
	return opts.Overwrite
}

// put resolves the parameter's value and writes it, retrying on throttling.
func (r *Reconciler) put(ctx context.Context, param paramfile.ResolvedParameter, set *inputs.ResolvedSet, overwrite bool) error {
	req := store.PutRequest{
		Name:           param.Path,
		Kind:           param.Kind,
		KeyID:          param.KeyID,
		AllowedPattern: param.AllowedPattern,
		Description:    param.Description,
		Overwrite:      overwrite,
	}

	if param.Kind == paramfile.KindSecureString {
		plaintext, owned, err := r.codec.Materialize(ctx, param, set)
		if err != nil {
			return err
		}
		if owned {
			defer plaintext.Destroy()
		}
		return plaintext.WithString(func(s string) error {
			req.Value = s
			return r.withRetry(ctx, func() error { return r.store.Put(ctx, req) })
		})
	}

	req.Value = param.Value
	return r.withRetry(ctx, func() error { return r.store.Put(ctx, req) })
}

// forEach runs fn over n items with bounded concurrency.
func (r *Reconciler) forEach(ctx context.Context, n int, fn func(i int)) {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, r.workers)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fn(i)
		}(i)
	}
	wg.Wait()
}

// withRetry retries throttled calls with exponential backoff.
func (r *Reconciler) withRetry(ctx context.Context, fn func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 1; attempt <= maxPutAttempts; attempt++ {
		err = fn()
		if err == nil || !pcerrors.IsRetryable(err) {
			return err
		}
		if attempt == maxPutAttempts {
			break
		}
		r.logger.Debug("Retrying after throttle (attempt %d): %v", attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
