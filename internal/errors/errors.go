package errors

import (
	"fmt"
	"sort"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed parameter entry or input definition.
// It aborts the invocation before any store call is made.
type ValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	msg := "invalid parameter entry"
	if e.Path != "" {
		msg += fmt.Sprintf(" '%s'", e.Path)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	return msg + ": " + e.Message
}

// UnresolvedInputError reports every input that could not be resolved with
// prompting disallowed. All missing names are collected before failing so the
// user can fix them in one pass.
type UnresolvedInputError struct {
	Names []string
}

func (e UnresolvedInputError) Error() string {
	names := append([]string(nil), e.Names...)
	sort.Strings(names)
	return fmt.Sprintf("unresolved inputs: %s", strings.Join(names, ", "))
}

// DuplicatePathError reports two entries that flatten to the same path with
// conflicting definitions. Identical duplicates are permitted; this error
// means the definitions disagree.
type DuplicatePathError struct {
	Path string
}

func (e DuplicatePathError) Error() string {
	return fmt.Sprintf("conflicting definitions for parameter path '%s'", e.Path)
}

// CryptoError reports an encryption or decryption failure. For batch
// operations it is fatal only for the affected entry.
type CryptoError struct {
	Op    string // "encrypt" or "decrypt"
	KeyID string
	Err   error
}

func (e CryptoError) Error() string {
	msg := fmt.Sprintf("failed to %s value", e.Op)
	if e.KeyID != "" {
		msg += fmt.Sprintf(" with key '%s'", e.KeyID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e CryptoError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is worth retrying with backoff
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"throttl",
		"rate exceeded",
		"too many requests",
		"timeout",
		"connection reset",
		"temporary failure",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
