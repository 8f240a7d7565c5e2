package inputs

import (
	"fmt"
	"regexp"
	"strings"

	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/paramfile"
)

// referencePattern matches a $(Name) input reference token.
var referencePattern = regexp.MustCompile(`\$\((\w+)\)`)

// ReferencedNames returns the distinct input names referenced in s, in
// order of first appearance.
func ReferencedNames(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range referencePattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// entryReferences scans every templated field of an entry: path, value or
// list elements, key id, allowed pattern, and the disable flag. The
// EncryptedValue field is opaque ciphertext and is never scanned; the Input
// field is a direct reference by construction.
func entryReferences(e *paramfile.Entry) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(s string) {
		for _, n := range ReferencedNames(s) {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}

	add(e.Path)
	add(e.Value)
	for _, v := range e.Values {
		add(v)
	}
	add(e.KeyID)
	add(e.AllowedPattern)
	add(e.Disable)
	if e.Input != "" && !seen[e.Input] {
		seen[e.Input] = true
		names = append(names, e.Input)
	}
	return names
}

// ResolvedSet is the per-invocation input cache. Append-only once a name is
// resolved; substitution never mutates it.
type ResolvedSet struct {
	values map[string]*Value
}

// Lookup returns the resolved value for name.
func (rs *ResolvedSet) Lookup(name string) (*Value, bool) {
	v, ok := rs.values[name]
	return v, ok
}

// Substitute replaces every $(Name) token in s with the resolved value.
// Interpolation is plain string replacement; referencing a secure value
// from a plain field is an error, since that would copy secret plaintext
// into paths, patterns, or logs.
func (rs *ResolvedSet) Substitute(s string) (string, error) {
	var substErr error
	result := referencePattern.ReplaceAllStringFunc(s, func(token string) string {
		name := token[2 : len(token)-1]
		v, ok := rs.values[name]
		if !ok {
			if substErr == nil {
				substErr = pcerrors.UnresolvedInputError{Names: []string{name}}
			}
			return token
		}
		plain, ok := v.Plain()
		if !ok {
			if substErr == nil {
				substErr = pcerrors.UserError{
					Message:    fmt.Sprintf("secure input '%s' cannot be interpolated into plain text", name),
					Suggestion: "Reference it from a SecureString entry's Input field instead",
				}
			}
			return token
		}
		return plain
	})
	return result, substErr
}

// SubstituteFile applies substitution to a file's base path and every
// entry, producing a resolved copy. The template file is never mutated.
func (rs *ResolvedSet) SubstituteFile(f *paramfile.File) (*paramfile.ResolvedFile, error) {
	basePath, err := rs.Substitute(f.BasePath)
	if err != nil {
		return nil, err
	}
	basePath = strings.TrimRight(basePath, "/")

	resolved := &paramfile.ResolvedFile{BasePath: basePath}
	for _, e := range f.Entries {
		re, err := rs.substituteEntry(e)
		if err != nil {
			return nil, err
		}
		resolved.Entries = append(resolved.Entries, re)
	}
	return resolved, nil
}

func (rs *ResolvedSet) substituteEntry(e *paramfile.Entry) (*paramfile.Entry, error) {
	clone := e.Clone()

	var err error
	if clone.Path, err = rs.Substitute(clone.Path); err != nil {
		return nil, err
	}
	if clone.Value, err = rs.Substitute(clone.Value); err != nil {
		return nil, err
	}
	for i, v := range clone.Values {
		if clone.Values[i], err = rs.Substitute(v); err != nil {
			return nil, err
		}
	}
	if clone.KeyID, err = rs.Substitute(clone.KeyID); err != nil {
		return nil, err
	}
	if clone.AllowedPattern, err = rs.Substitute(clone.AllowedPattern); err != nil {
		return nil, err
	}
	if clone.Disable, err = rs.Substitute(clone.Disable); err != nil {
		return nil, err
	}
	return clone, nil
}
