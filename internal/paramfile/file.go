package paramfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	pcerrors "github.com/systmms/paramctl/internal/errors"
)

// Directive keys recognized at the top level of a parameter file.
// Every other top-level key is a parameter path.
const (
	inputsKey         = ".INPUTS"
	alternateInputKey = ".INPUT"
	basePathKey       = ".BASEPATH"
	commonKey         = ".COMMON"
)

// InputDefinition declares a named template variable a file expects.
type InputDefinition struct {
	Name        string
	Kind        Kind
	Pattern     string
	Description string
	Default     string
	DefaultList []string
	hasDefault  bool
}

// HasDefault reports whether the definition declares a default value.
func (d InputDefinition) HasDefault() bool {
	return d.hasDefault
}

// File is one parsed parameter file, immutable after load. Substitution
// produces resolved copies; the template itself is never rewritten except by
// the encrypt command's narrow on-disk mutation.
type File struct {
	Name     string
	BasePath string
	Inputs   map[string]InputDefinition
	Entries  []*Entry
}

// Set is the merged view of every file named by one invocation.
type Set struct {
	Files  []*File
	Inputs map[string]InputDefinition
}

// Load parses a parameter file. name is used in error messages only.
func Load(data []byte, name string) (*File, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pcerrors.UserError{
			Message:    fmt.Sprintf("Failed to parse %s", name),
			Details:    err.Error(),
			Suggestion: "Check for YAML indentation errors and missing quotes",
		}
	}
	if len(doc.Content) == 0 {
		return &File{Name: name, Inputs: map[string]InputDefinition{}}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, pcerrors.ValidationError{Message: fmt.Sprintf("%s: parameter file must be a mapping", name)}
	}

	file := &File{Name: name, Inputs: map[string]InputDefinition{}}

	var common *yaml.Node
	var entryNodes []*yaml.Node // alternating key/value, order preserved

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		key := keyNode.Value

		switch key {
		case basePathKey:
			file.BasePath = strings.TrimRight(valNode.Value, "/")
		case inputsKey, alternateInputKey:
			inputs, err := parseInputs(valNode)
			if err != nil {
				return nil, err
			}
			file.Inputs = inputs
		case commonKey:
			common = valNode
		default:
			if strings.HasPrefix(key, ".") {
				// Unknown directives are ignored for forward compatibility.
				continue
			}
			entryNodes = append(entryNodes, keyNode, valNode)
		}
	}

	for i := 0; i+1 < len(entryNodes); i += 2 {
		entry, err := ParseEntry(entryNodes[i].Value, entryNodes[i+1], common)
		if err != nil {
			return nil, err
		}
		file.Entries = append(file.Entries, entry)
	}

	return file, nil
}

// LoadFile reads and parses the parameter file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pcerrors.UserError{
			Message:    fmt.Sprintf("Failed to read parameter file %s", path),
			Details:    err.Error(),
			Suggestion: "Verify the path exists and is readable",
		}
	}
	return Load(data, path)
}

func parseInputs(node *yaml.Node) (map[string]InputDefinition, error) {
	if node.Kind != yaml.MappingNode {
		return nil, pcerrors.ValidationError{Field: inputsKey, Message: "must be a mapping of input names to definitions"}
	}

	inputs := make(map[string]InputDefinition, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		def, err := parseInputDefinition(name, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		inputs[name] = def
	}
	return inputs, nil
}

func parseInputDefinition(name string, node *yaml.Node) (InputDefinition, error) {
	def := InputDefinition{Name: name, Kind: KindString}

	switch node.Kind {
	case yaml.ScalarNode:
		// Bare string shorthand declares only the kind.
		if node.Value != "" {
			def.Kind = Kind(node.Value)
		}

	case yaml.MappingNode:
		var raw struct {
			Type        string     `yaml:"Type"`
			Pattern     string     `yaml:"Pattern"`
			Description string     `yaml:"Description"`
			Default     *yaml.Node `yaml:"Default"`
		}
		if err := node.Decode(&raw); err != nil {
			return def, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("input '%s': %s", name, err)}
		}
		if raw.Type != "" {
			def.Kind = Kind(raw.Type)
		}
		def.Pattern = raw.Pattern
		def.Description = raw.Description
		if raw.Default != nil {
			switch raw.Default.Kind {
			case yaml.ScalarNode:
				def.Default = raw.Default.Value
			case yaml.SequenceNode:
				vs, err := scalarList(raw.Default)
				if err != nil {
					return def, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("input '%s': %s", name, err)}
				}
				def.DefaultList = vs
			default:
				return def, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("input '%s': default must be a string or a list", name)}
			}
			def.hasDefault = true
		}

	default:
		return def, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("input '%s' must be a type name or a definition record", name)}
	}

	if !def.Kind.Valid() {
		return def, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("input '%s': unknown type '%s'", name, def.Kind)}
	}
	if def.Kind == KindSecureString && def.hasDefault {
		return def, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("input '%s': defaults are not allowed for SecureString inputs", name)}
	}
	if def.Pattern != "" {
		if _, err := regexp.Compile(def.Pattern); err != nil {
			return def, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("input '%s': invalid pattern: %s", name, err)}
		}
	}
	return def, nil
}

// MergeFiles combines the files named by one invocation. Input definitions
// merge across files; a kind or pattern conflict for the same name is an
// error. Path uniqueness is enforced later, at Flatten, once substitution
// has produced concrete paths.
func MergeFiles(files ...*File) (*Set, error) {
	set := &Set{Files: files, Inputs: map[string]InputDefinition{}}

	for _, f := range files {
		for name, def := range f.Inputs {
			existing, ok := set.Inputs[name]
			if !ok {
				set.Inputs[name] = def
				continue
			}
			if existing.Kind != def.Kind {
				return nil, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("conflicting types for input '%s' across files", name)}
			}
			if existing.Pattern != "" && def.Pattern != "" && existing.Pattern != def.Pattern {
				return nil, pcerrors.ValidationError{Field: inputsKey, Message: fmt.Sprintf("conflicting patterns for input '%s' across files", name)}
			}
			if existing.Pattern == "" {
				existing.Pattern = def.Pattern
			}
			if existing.Description == "" {
				existing.Description = def.Description
			}
			set.Inputs[name] = existing
		}
	}
	return set, nil
}

// Entries returns every entry across the set, in file order.
func (s *Set) Entries() []*Entry {
	var entries []*Entry
	for _, f := range s.Files {
		entries = append(entries, f.Entries...)
	}
	return entries
}

// ResolvedFile is a file after input substitution: every string concrete.
type ResolvedFile struct {
	BasePath string
	Entries  []*Entry
}

// ResolvedParameter is one fully resolved desired parameter. List values are
// joined with "," (the store's StringList convention).
type ResolvedParameter struct {
	Path           string
	Kind           Kind
	Value          string
	EncryptedValue string
	Input          string
	KeyID          string
	AllowedPattern string
	Description    string
	Overwrite      *bool
}

// Equal reports whether two resolved parameters define the same update.
func (p ResolvedParameter) Equal(other ResolvedParameter) bool {
	if p.Overwrite != nil && other.Overwrite != nil {
		if *p.Overwrite != *other.Overwrite {
			return false
		}
	} else if (p.Overwrite == nil) != (other.Overwrite == nil) {
		return false
	}
	p.Overwrite, other.Overwrite = nil, nil
	return p == other
}

// Flatten produces the ordered desired set from resolved files: base-path
// concatenation, disabled entries dropped, duplicate identical definitions
// collapsed, conflicting duplicates rejected.
func Flatten(files []*ResolvedFile) ([]ResolvedParameter, error) {
	var out []ResolvedParameter
	seen := make(map[string]ResolvedParameter)

	for _, f := range files {
		for _, e := range f.Entries {
			if e.Disabled() {
				continue
			}

			path, err := resolvePath(e.Path, f.BasePath)
			if err != nil {
				return nil, err
			}

			value := e.Value
			if len(e.Values) > 0 {
				value = strings.Join(e.Values, ",")
			}

			p := ResolvedParameter{
				Path:           path,
				Kind:           e.Kind,
				Value:          value,
				EncryptedValue: e.EncryptedValue,
				Input:          e.Input,
				KeyID:          e.KeyID,
				AllowedPattern: e.AllowedPattern,
				Description:    e.Description,
				Overwrite:      e.Overwrite,
			}

			if existing, ok := seen[path]; ok {
				if !existing.Equal(p) {
					return nil, pcerrors.DuplicatePathError{Path: path}
				}
				continue
			}
			seen[path] = p
			out = append(out, p)
		}
	}
	return out, nil
}

// BasePaths returns the distinct non-empty base paths in file order. They
// scope live listing and delete detection.
func BasePaths(files []*ResolvedFile) []string {
	var paths []string
	seen := make(map[string]bool)
	for _, f := range files {
		if f.BasePath == "" || seen[f.BasePath] {
			continue
		}
		seen[f.BasePath] = true
		paths = append(paths, f.BasePath)
	}
	return paths
}

func resolvePath(path, basePath string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	if basePath == "" {
		return "", pcerrors.ValidationError{
			Path:    path,
			Message: "relative path requires a .BASEPATH directive",
		}
	}
	return basePath + "/" + path, nil
}

// Compile renders parameters back into parameter-file form, the inverse of
// Load for the fields the store retains. Used by download and dry-run output.
func Compile(params []ResolvedParameter, basePath string) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	appendPair := func(m *yaml.Node, key string, value *yaml.Node) {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			value)
	}
	scalar := func(v string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	}

	if basePath != "" {
		appendPair(root, basePathKey, scalar(basePath))
	}

	for _, p := range params {
		name := p.Path
		if basePath != "" && strings.HasPrefix(p.Path, basePath+"/") {
			name = p.Path[len(basePath)+1:]
		}

		record := &yaml.Node{Kind: yaml.MappingNode}
		bare := p.AllowedPattern == "" && p.Description == "" && p.Overwrite == nil

		switch {
		case p.Kind == KindString && bare:
			appendPair(root, name, scalar(p.Value))
			continue
		case p.Kind == KindStringList && bare:
			list := &yaml.Node{Kind: yaml.SequenceNode}
			for _, v := range strings.Split(p.Value, ",") {
				list.Content = append(list.Content, scalar(v))
			}
			appendPair(root, name, list)
			continue
		}

		appendPair(record, "Type", scalar(string(p.Kind)))
		switch {
		case p.EncryptedValue != "":
			appendPair(record, "EncryptedValue", scalar(p.EncryptedValue))
		case p.Input != "":
			appendPair(record, "Input", scalar(p.Input))
		default:
			appendPair(record, "Value", scalar(p.Value))
		}
		if p.KeyID != "" {
			appendPair(record, "KeyId", scalar(p.KeyID))
		}
		if p.AllowedPattern != "" {
			appendPair(record, "AllowedPattern", scalar(p.AllowedPattern))
		}
		if p.Description != "" {
			appendPair(record, "Description", scalar(p.Description))
		}
		if p.Overwrite != nil {
			appendPair(record, "Overwrite", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprintf("%t", *p.Overwrite)})
		}
		appendPair(root, name, record)
	}

	return yaml.Marshal(root)
}
