package inputs

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/logging"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/secure"
)

// Built-in inputs, implicitly defined for every file and populated from the
// active cloud identity only when referenced.
const (
	BuiltInAccount = "Account"
	BuiltInRegion  = "Region"
)

// IdentityAPI is the identity collaborator: account lookup is performed
// lazily, only when a file actually references $(Account).
type IdentityAPI interface {
	AccountID(ctx context.Context) (string, error)
	Region() string
}

// Keyring is an optional cache for resolved input values.
type Keyring interface {
	Get(name string) (string, error)
	Set(name, value string) error
}

// maxPromptAttempts bounds re-prompting on pattern mismatch.
const maxPromptAttempts = 3

// Resolver collects input values for one invocation.
type Resolver struct {
	definitions map[string]paramfile.InputDefinition
	cliValues   map[string]string
	cliSecure   map[string]string
	prompting   bool
	echo        *bool
	prompter    Prompter
	identity    IdentityAPI
	keyring     Keyring
	logger      *logging.Logger

	// promptMu keeps interactive prompts strictly sequential
	promptMu sync.Mutex
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithCLIInputs supplies --input NAME=VALUE overrides.
func WithCLIInputs(values map[string]string) Option {
	return func(r *Resolver) { r.cliValues = values }
}

// WithCLISecureInputs supplies --secure-input NAME=CIPHERTEXT overrides.
func WithCLISecureInputs(values map[string]string) Option {
	return func(r *Resolver) { r.cliSecure = values }
}

// WithPrompting enables or disables interactive prompting.
func WithPrompting(allowed bool) Option {
	return func(r *Resolver) { r.prompting = allowed }
}

// WithEcho overrides the default terminal echo behavior.
func WithEcho(echo bool) Option {
	return func(r *Resolver) { r.echo = &echo }
}

// WithPrompter sets a custom prompter (for testing).
func WithPrompter(p Prompter) Option {
	return func(r *Resolver) { r.prompter = p }
}

// WithIdentity sets the identity collaborator for the built-in inputs.
func WithIdentity(id IdentityAPI) Option {
	return func(r *Resolver) { r.identity = id }
}

// WithKeyring enables the OS keyring cache for resolved inputs.
func WithKeyring(k Keyring) Option {
	return func(r *Resolver) { r.keyring = k }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over the merged input definitions.
func NewResolver(definitions map[string]paramfile.InputDefinition, opts ...Option) *Resolver {
	r := &Resolver{
		definitions: definitions,
		cliValues:   map[string]string{},
		cliSecure:   map[string]string{},
		prompting:   true,
		logger:      logging.New(false, false),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.prompter == nil {
		r.prompter = NewTerminalPrompter()
	}
	return r
}

// Resolve scans every templated field across the set's files, resolves each
// distinct referenced name, and returns the append-only resolved set. All
// unresolvable names are collected into a single UnresolvedInputError.
func (r *Resolver) Resolve(ctx context.Context, set *paramfile.Set) (*ResolvedSet, error) {
	names := r.referencedNames(set)

	rs := &ResolvedSet{values: make(map[string]*Value, len(names))}
	var missing []string

	for _, name := range names {
		value, err := r.resolveOne(ctx, name)
		if err != nil {
			return nil, err
		}
		if value == nil {
			missing = append(missing, name)
			continue
		}
		r.logger.Debug("Resolved input '%s' from %s", name, value.Source)
		rs.values[name] = value
	}

	if len(missing) > 0 {
		return nil, pcerrors.UnresolvedInputError{Names: missing}
	}
	return rs, nil
}

// referencedNames gathers every distinct referenced input across base paths
// and entries, sorted so prompting order is deterministic.
func (r *Resolver) referencedNames(set *paramfile.Set) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(ns []string) {
		for _, n := range ns {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}

	for _, f := range set.Files {
		add(ReferencedNames(f.BasePath))
		for _, e := range f.Entries {
			add(entryReferences(e))
		}
	}
	sort.Strings(names)
	return names
}

// resolveOne resolves a single name. A nil value with nil error means the
// input is unresolvable and should be reported as missing.
func (r *Resolver) resolveOne(ctx context.Context, name string) (*Value, error) {
	def, declared := r.definitions[name]

	if ciphertext, ok := r.cliSecure[name]; ok {
		return CiphertextValue(name, SourceCLI, ciphertext), nil
	}

	if v, ok := r.cliValues[name]; ok {
		kind := paramfile.KindString
		if declared {
			kind = def.Kind
		}
		// CLI values are opaque strings; StringList uses the comma-joined
		// convention and is never split client-side.
		return PlainValue(name, kind, SourceCLI, v), nil
	}

	if r.keyring != nil {
		if v, err := r.keyring.Get(name); err == nil && v != "" {
			if declared && def.Kind == paramfile.KindSecureString {
				return SecretValue(name, SourceKeyring, secure.FromString(v)), nil
			}
			return PlainValue(name, kindOrString(def, declared), SourceKeyring, v), nil
		}
	}

	if declared && def.Kind == paramfile.KindSecureString {
		if !r.prompting {
			return nil, nil
		}
		return r.promptSecure(name, def)
	}

	if declared && def.HasDefault() {
		v := def.Default
		if len(def.DefaultList) > 0 {
			v = strings.Join(def.DefaultList, ",")
		}
		return PlainValue(name, def.Kind, SourceDefault, v), nil
	}

	switch name {
	case BuiltInAccount:
		if r.identity == nil {
			return nil, nil
		}
		account, err := r.identity.AccountID(ctx)
		if err != nil {
			return nil, pcerrors.UserError{
				Message:    "Failed to look up the caller account id",
				Details:    err.Error(),
				Suggestion: "Check AWS credentials and permission to call sts:GetCallerIdentity",
			}
		}
		return PlainValue(name, paramfile.KindString, SourceBuiltIn, account), nil
	case BuiltInRegion:
		if r.identity == nil {
			return nil, nil
		}
		return PlainValue(name, paramfile.KindString, SourceBuiltIn, r.identity.Region()), nil
	}

	if !r.prompting {
		return nil, nil
	}
	return r.promptPlain(name, def, declared)
}

func kindOrString(def paramfile.InputDefinition, declared bool) paramfile.Kind {
	if declared {
		return def.Kind
	}
	return paramfile.KindString
}

// promptSecure solicits secret plaintext and moves it straight into a
// protected enclave. Echo is suppressed unless explicitly overridden.
func (r *Resolver) promptSecure(name string, def paramfile.InputDefinition) (*Value, error) {
	r.promptMu.Lock()
	defer r.promptMu.Unlock()

	echo := false
	if r.echo != nil {
		echo = *r.echo
	}

	raw, err := r.promptOnce(promptLabel(name, def), echo)
	if err != nil {
		return nil, err
	}

	value := SecretValue(name, SourcePrompted, secure.FromString(raw))
	if r.keyring != nil {
		if err := r.keyring.Set(name, raw); err != nil {
			r.logger.Warn("Failed to cache input '%s' in the keyring: %v", name, err)
		}
	}
	return value, nil
}

// promptPlain solicits a plain value, enforcing the declared pattern with
// bounded re-prompting.
func (r *Resolver) promptPlain(name string, def paramfile.InputDefinition, declared bool) (*Value, error) {
	r.promptMu.Lock()
	defer r.promptMu.Unlock()

	echo := true
	if r.echo != nil {
		echo = *r.echo
	}

	var pattern *regexp.Regexp
	if declared && def.Pattern != "" {
		// Pattern validity was checked at file load.
		pattern = regexp.MustCompile(def.Pattern)
	}

	for attempt := 1; attempt <= maxPromptAttempts; attempt++ {
		raw, err := r.promptOnce(promptLabel(name, def), echo)
		if err != nil {
			return nil, err
		}
		if pattern != nil && !pattern.MatchString(raw) {
			r.logger.Warn("Value for '%s' does not match pattern %s", name, def.Pattern)
			continue
		}

		if r.keyring != nil {
			if err := r.keyring.Set(name, raw); err != nil {
				r.logger.Warn("Failed to cache input '%s' in the keyring: %v", name, err)
			}
		}
		return PlainValue(name, kindOrString(def, declared), SourcePrompted, raw), nil
	}

	return nil, pcerrors.UserError{
		Message:    fmt.Sprintf("Input '%s' did not match the required pattern after %d attempts", name, maxPromptAttempts),
		Suggestion: fmt.Sprintf("Supply a value matching %s, or pass it with --input %s=VALUE", def.Pattern, name),
	}
}

func (r *Resolver) promptOnce(label string, echo bool) (string, error) {
	if echo {
		return r.prompter.Prompt(label)
	}
	return r.prompter.PromptSecret(label)
}

func promptLabel(name string, def paramfile.InputDefinition) string {
	label := "Enter " + name
	if def.Kind != "" {
		label += fmt.Sprintf(" [%s]", def.Kind)
	}
	if def.Description != "" {
		label += fmt.Sprintf(" (%s)", def.Description)
	}
	return label
}
