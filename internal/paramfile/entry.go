package paramfile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	pcerrors "github.com/systmms/paramctl/internal/errors"
)

// Kind is the parameter type as understood by the parameter store.
type Kind string

const (
	KindString       Kind = "String"
	KindStringList   Kind = "StringList"
	KindSecureString Kind = "SecureString"
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindStringList, KindSecureString:
		return true
	}
	return false
}

var inputNamePattern = regexp.MustCompile(`^\w+$`)

// Entry is one declared parameter record, before input substitution.
// Exactly one of Value, Values, EncryptedValue, Input carries the value,
// consistent with Kind. Path may contain $(Name) references; a path not
// starting with '/' is relative to the file's base path.
type Entry struct {
	Path           string
	Kind           Kind
	Value          string
	Values         []string
	EncryptedValue string
	Input          string
	KeyID          string
	AllowedPattern string
	Description    string
	Overwrite      *bool
	// Disable is kept as a string because it may be templated ("$(Off)").
	// Empty means enabled.
	Disable string

	hasValue bool
}

// rawEntry mirrors the YAML record shape. Key casing follows the file format.
type rawEntry struct {
	Type           string     `yaml:"Type"`
	Value          *yaml.Node `yaml:"Value"`
	EncryptedValue string     `yaml:"EncryptedValue"`
	Input          string     `yaml:"Input"`
	KeyID          string     `yaml:"KeyId"`
	AllowedPattern string     `yaml:"AllowedPattern"`
	Description    string     `yaml:"Description"`
	Overwrite      *bool      `yaml:"Overwrite"`
	Disable        *yaml.Node `yaml:"Disable"`
	// Disabled is an accepted alternate spelling
	Disabled *yaml.Node `yaml:"Disabled"`
}

// ParseEntry builds an Entry from one top-level file record. The node may be
// a scalar (String shorthand), a sequence (StringList shorthand), or a full
// mapping. common, when non-nil, supplies record defaults (.COMMON); keys on
// the record itself win.
func ParseEntry(path string, node *yaml.Node, common *yaml.Node) (*Entry, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}

	entry := &Entry{Path: path}

	switch node.Kind {
	case yaml.ScalarNode:
		entry.Kind = KindString
		entry.Value = node.Value
		entry.hasValue = true
		return entry, nil

	case yaml.SequenceNode:
		vs, err := scalarList(node)
		if err != nil {
			return nil, pcerrors.ValidationError{Path: path, Message: err.Error()}
		}
		entry.Kind = KindStringList
		entry.Values = vs
		entry.hasValue = true
		return entry, nil

	case yaml.MappingNode:
		var raw rawEntry
		if common != nil {
			if err := common.Decode(&raw); err != nil {
				return nil, pcerrors.ValidationError{Path: path, Field: ".COMMON", Message: err.Error()}
			}
		}
		if err := node.Decode(&raw); err != nil {
			return nil, pcerrors.ValidationError{Path: path, Message: err.Error()}
		}
		return entryFromRaw(path, raw)

	default:
		return nil, pcerrors.ValidationError{Path: path, Message: "entry must be a string, a list, or a record"}
	}
}

func entryFromRaw(path string, raw rawEntry) (*Entry, error) {
	entry := &Entry{
		Path:           path,
		EncryptedValue: raw.EncryptedValue,
		KeyID:          raw.KeyID,
		AllowedPattern: raw.AllowedPattern,
		Description:    raw.Description,
		Overwrite:      raw.Overwrite,
	}

	if raw.Input != "" {
		name, err := inputReferenceName(raw.Input)
		if err != nil {
			return nil, pcerrors.ValidationError{Path: path, Field: "Input", Message: err.Error()}
		}
		entry.Input = name
	}

	var valueIsList bool
	if raw.Value != nil {
		switch raw.Value.Kind {
		case yaml.SequenceNode:
			vs, err := scalarList(raw.Value)
			if err != nil {
				return nil, pcerrors.ValidationError{Path: path, Field: "Value", Message: err.Error()}
			}
			entry.Values = vs
			valueIsList = true
		case yaml.ScalarNode:
			entry.Value = raw.Value.Value
		default:
			return nil, pcerrors.ValidationError{Path: path, Field: "Value", Message: "must be a string or a list of strings"}
		}
		entry.hasValue = true
	}

	disable := raw.Disable
	if disable == nil {
		disable = raw.Disabled
	}
	if disable != nil {
		if disable.Kind != yaml.ScalarNode {
			return nil, pcerrors.ValidationError{Path: path, Field: "Disable", Message: "must be a boolean or a string"}
		}
		entry.Disable = disable.Value
	}

	// Kind inference: explicit Type wins; else list value => StringList,
	// KeyId => SecureString, otherwise String.
	switch {
	case raw.Type != "":
		entry.Kind = Kind(raw.Type)
		if !entry.Kind.Valid() {
			return nil, pcerrors.ValidationError{Path: path, Field: "Type", Message: fmt.Sprintf("unknown type '%s'", raw.Type)}
		}
	case valueIsList:
		entry.Kind = KindStringList
	case raw.KeyID != "":
		entry.Kind = KindSecureString
	default:
		entry.Kind = KindString
	}

	if err := entry.validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (e *Entry) validate() error {
	switch e.Kind {
	case KindSecureString:
		if e.KeyID == "" {
			return pcerrors.ValidationError{Path: e.Path, Field: "KeyId", Message: "SecureString requires a key id"}
		}
		if e.hasValue {
			return pcerrors.ValidationError{Path: e.Path, Field: "Value", Message: "plaintext Value cannot be used with SecureString; use EncryptedValue or Input"}
		}
		if e.EncryptedValue == "" && e.Input == "" {
			return pcerrors.ValidationError{Path: e.Path, Message: "SecureString requires EncryptedValue or Input"}
		}
		if e.EncryptedValue != "" && e.Input != "" {
			return pcerrors.ValidationError{Path: e.Path, Message: "EncryptedValue and Input are mutually exclusive"}
		}

	case KindString:
		if len(e.Values) > 0 {
			return pcerrors.ValidationError{Path: e.Path, Field: "Value", Message: "String cannot hold a list value"}
		}
		fallthrough

	case KindStringList:
		if e.KeyID != "" {
			return pcerrors.ValidationError{Path: e.Path, Field: "KeyId", Message: fmt.Sprintf("key id is only meaningful for SecureString, not %s", e.Kind)}
		}
		if e.EncryptedValue != "" || e.Input != "" {
			return pcerrors.ValidationError{Path: e.Path, Message: fmt.Sprintf("%s entries carry a plain Value", e.Kind)}
		}
		if !e.hasValue && e.Disable == "" {
			return pcerrors.ValidationError{Path: e.Path, Field: "Value", Message: "value is required for an enabled entry"}
		}
	}
	return nil
}

// Disabled reports whether the entry is excluded from the desired set.
// Call after substitution; a templated Disable resolves first.
func (e *Entry) Disabled() bool {
	if e.Disable == "" {
		return false
	}
	if b, err := strconv.ParseBool(e.Disable); err == nil {
		return b
	}
	// Any other non-empty marker disables the entry.
	return true
}

// Secure reports whether the entry's value is secret material.
func (e *Entry) Secure() bool {
	return e.Kind == KindSecureString
}

// HasValue reports whether a plain Value key was present, distinguishing an
// explicit empty string from an absent value.
func (e *Entry) HasValue() bool {
	return e.hasValue
}

// Clone returns a copy the substitution pass can rewrite without mutating
// the parsed template.
func (e *Entry) Clone() *Entry {
	clone := *e
	if e.Values != nil {
		clone.Values = append([]string(nil), e.Values...)
	}
	if e.Overwrite != nil {
		v := *e.Overwrite
		clone.Overwrite = &v
	}
	return &clone
}

// scalarList reads a sequence of scalars using the literal node text, so
// unquoted numbers and booleans come through as written.
func scalarList(node *yaml.Node) ([]string, error) {
	vs := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind == yaml.AliasNode {
			item = item.Alias
		}
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("list values must be strings")
		}
		vs = append(vs, item.Value)
	}
	return vs, nil
}

// inputReferenceName accepts "Name" or "$(Name)" and returns the bare name.
func inputReferenceName(s string) (string, error) {
	name := s
	if strings.HasPrefix(s, "$(") && strings.HasSuffix(s, ")") {
		name = s[2 : len(s)-1]
	}
	if !inputNamePattern.MatchString(name) {
		return "", fmt.Errorf("'%s' is not a valid input reference", s)
	}
	return name, nil
}
