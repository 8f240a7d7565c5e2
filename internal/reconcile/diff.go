// Package reconcile computes the difference between the desired parameter
// set and the live store state, and applies the resulting plan.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/paramctl/internal/inputs"
	"github.com/systmms/paramctl/internal/logging"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/secure"
	"github.com/systmms/paramctl/internal/store"
)

// Store is the parameter-store surface the reconciler needs.
type Store interface {
	Get(ctx context.Context, name string) (*store.Parameter, error)
	ListByPrefix(ctx context.Context, path string) ([]store.Parameter, error)
	Put(ctx context.Context, req store.PutRequest) error
	Delete(ctx context.Context, name string) error
}

// ValueResolver materializes the plaintext of a secure parameter.
type ValueResolver interface {
	Materialize(ctx context.Context, p paramfile.ResolvedParameter, set *inputs.ResolvedSet) (*secure.Value, bool, error)
}

// PathError records a failure scoped to one parameter path. Other paths
// proceed independently.
type PathError struct {
	Path string
	Err  error
}

func (e PathError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e PathError) Unwrap() error {
	return e.Err
}

// Item is one planned write.
type Item struct {
	Param paramfile.ResolvedParameter
	// Reason says what differs, for update items.
	Reason string
}

// Plan is the value-level difference between desired and live state.
type Plan struct {
	Create    []Item
	Update    []Item
	Unchanged []string
	Delete    []string
	Failed    []PathError
}

// Empty reports whether the plan contains no pending writes.
func (p *Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// DiffRequest scopes one reconciliation.
type DiffRequest struct {
	Desired   []paramfile.ResolvedParameter
	BasePaths []string
	// Delete enables delete detection: live parameters under the base
	// paths with no desired counterpart become planned deletions.
	Delete bool
}

// Reconciler diffs and applies parameter sets.
type Reconciler struct {
	store   Store
	codec   ValueResolver
	logger  *logging.Logger
	workers int
}

// ReconcilerOption is a functional option for configuring a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithWorkers bounds apply concurrency.
func WithWorkers(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler creates a reconciler over the given store and codec.
func NewReconciler(st Store, codec ValueResolver, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:   st,
		codec:   codec,
		logger:  logging.New(false, false),
		workers: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Diff computes the plan. It reads the live state but never writes: the
// returned plan is the same whether or not it is subsequently applied. A
// path whose desired value cannot be resolved is reported in Failed and
// does not block the rest.
func (r *Reconciler) Diff(ctx context.Context, req DiffRequest, set *inputs.ResolvedSet) (*Plan, error) {
	live := make(map[string]store.Parameter)
	for _, basePath := range req.BasePaths {
		params, err := r.store.ListByPrefix(ctx, basePath)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", basePath, err)
		}
		for _, p := range params {
			live[p.Name] = p
		}
	}

	plan := &Plan{}
	desiredNames := make(map[string]bool, len(req.Desired))

	for _, desired := range req.Desired {
		desiredNames[desired.Path] = true

		current, exists := live[desired.Path]
		if !exists && !underAny(desired.Path, req.BasePaths) {
			// Absolute paths outside every base path are invisible to the
			// listings, so look them up individually.
			p, err := r.store.Get(ctx, desired.Path)
			if err != nil {
				plan.Failed = append(plan.Failed, PathError{Path: desired.Path, Err: err})
				continue
			}
			if p != nil {
				current, exists = *p, true
			}
		}
		if !exists {
			plan.Create = append(plan.Create, Item{Param: desired})
			continue
		}

		reason, err := r.compare(ctx, desired, current, set)
		if err != nil {
			plan.Failed = append(plan.Failed, PathError{Path: desired.Path, Err: err})
			continue
		}
		if reason == "" {
			plan.Unchanged = append(plan.Unchanged, desired.Path)
		} else {
			plan.Update = append(plan.Update, Item{Param: desired, Reason: reason})
		}
	}

	if req.Delete {
		for _, p := range sortedNames(live) {
			if !desiredNames[p] {
				plan.Delete = append(plan.Delete, p)
			}
		}
	}

	r.logger.Debug("Plan: %d create, %d update, %d unchanged, %d delete, %d failed",
		len(plan.Create), len(plan.Update), len(plan.Unchanged), len(plan.Delete), len(plan.Failed))
	return plan, nil
}

// compare returns what differs between desired and live, or "" when the live
// parameter already matches.
func (r *Reconciler) compare(ctx context.Context, desired paramfile.ResolvedParameter, current store.Parameter, set *inputs.ResolvedSet) (string, error) {
	if desired.Kind != current.Kind {
		return fmt.Sprintf("type %s -> %s", current.Kind, desired.Kind), nil
	}

	if desired.Kind != paramfile.KindSecureString {
		if desired.Value != current.Value {
			return "value", nil
		}
		return "", nil
	}

	if !keyIDMatches(desired.KeyID, current.KeyID) {
		return fmt.Sprintf("key id %s -> %s", current.KeyID, desired.KeyID), nil
	}

	plaintext, owned, err := r.codec.Materialize(ctx, desired, set)
	if err != nil {
		return "", err
	}
	if owned {
		defer plaintext.Destroy()
	}

	changed := false
	err = plaintext.WithString(func(s string) error {
		changed = s != current.Value
		return nil
	})
	if err != nil {
		return "", err
	}
	if changed {
		return "value", nil
	}
	return "", nil
}

// keyIDMatches compares a declared key id with the live one. The store
// reports full ARNs while files usually declare aliases or bare ids, so a
// containment match in either direction counts as equal.
func keyIDMatches(declared, live string) bool {
	if declared == live {
		return true
	}
	if declared == "" || live == "" {
		return false
	}
	return strings.Contains(live, declared) || strings.Contains(declared, live)
}

func underAny(path string, basePaths []string) bool {
	for _, basePath := range basePaths {
		if strings.HasPrefix(path, basePath+"/") {
			return true
		}
	}
	return false
}

func sortedNames(live map[string]store.Parameter) []string {
	names := make([]string, 0, len(live))
	for name := range live {
		names = append(names, name)
	}
	// Deterministic plan output regardless of map order.
	sort.Strings(names)
	return names
}
