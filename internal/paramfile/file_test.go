package paramfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/paramfile"
)

const sampleFile = `
.BASEPATH: /App/
.INPUTS:
  Stage:
    Type: String
    Pattern: "^(dev|prod)$"
    Default: dev
  DbPassword: SecureString
.COMMON:
  Description: app settings
Config: hello
Hosts:
- a.example.com
- b.example.com
Secret:
  Type: SecureString
  KeyId: alias/app
  Input: DbPassword
/Global/Flag:
  Type: String
  Value: "on"
`

// TestLoadFile verifies directives, entries, and ordering
func TestLoadFile(t *testing.T) {
	t.Parallel()

	file, err := paramfile.Load([]byte(sampleFile), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "/App", file.BasePath, "trailing slash trimmed")

	require.Len(t, file.Inputs, 2)
	stage := file.Inputs["Stage"]
	assert.Equal(t, paramfile.KindString, stage.Kind)
	assert.Equal(t, "^(dev|prod)$", stage.Pattern)
	assert.Equal(t, "dev", stage.Default)
	assert.True(t, stage.HasDefault())
	assert.Equal(t, paramfile.KindSecureString, file.Inputs["DbPassword"].Kind)

	require.Len(t, file.Entries, 4)
	assert.Equal(t, []string{"Config", "Hosts", "Secret", "/Global/Flag"},
		[]string{file.Entries[0].Path, file.Entries[1].Path, file.Entries[2].Path, file.Entries[3].Path},
		"entry order preserved")

	// .COMMON only applies to full records
	assert.Empty(t, file.Entries[0].Description)
	assert.Equal(t, "app settings", file.Entries[2].Description)
}

// TestLoadRejectsSecureDefault verifies the SecureString default invariant
func TestLoadRejectsSecureDefault(t *testing.T) {
	t.Parallel()

	_, err := paramfile.Load([]byte(`
.INPUTS:
  Password:
    Type: SecureString
    Default: hunter2
`), "bad.yaml")
	require.Error(t, err)
	assert.IsType(t, pcerrors.ValidationError{}, err)
}

// TestLoadRejectsMalformedShape verifies schema validation catches bad records
func TestLoadRejectsMalformedShape(t *testing.T) {
	t.Parallel()

	_, err := paramfile.Load([]byte(`
Config:
  Value: x
  NotAField: y
`), "bad.yaml")
	require.Error(t, err)
}

// TestLoadSkipsUnknownDirectives verifies forward compatibility with dot-keys
func TestLoadSkipsUnknownDirectives(t *testing.T) {
	t.Parallel()

	file, err := paramfile.Load([]byte(`
.FUTURE:
  Nested: value
.EXPERIMENTAL: scalar
Config: hello
`), "future.yaml")
	require.NoError(t, err)

	require.Len(t, file.Entries, 1)
	assert.Equal(t, "Config", file.Entries[0].Path)
}

// TestMergeFilesInputConflicts verifies cross-file input merge rules
func TestMergeFilesInputConflicts(t *testing.T) {
	t.Parallel()

	a, err := paramfile.Load([]byte(".INPUTS:\n  Stage: String\n"), "a.yaml")
	require.NoError(t, err)
	b, err := paramfile.Load([]byte(".INPUTS:\n  Stage: SecureString\n"), "b.yaml")
	require.NoError(t, err)

	_, err = paramfile.MergeFiles(a, b)
	require.Error(t, err, "conflicting kinds must be rejected")

	c, err := paramfile.Load([]byte(".INPUTS:\n  Stage:\n    Type: String\n    Pattern: '^a$'\n"), "c.yaml")
	require.NoError(t, err)
	set, err := paramfile.MergeFiles(a, c)
	require.NoError(t, err)
	assert.Equal(t, "^a$", set.Inputs["Stage"].Pattern, "pattern adopted from later file")
}

// TestFlatten verifies base-path concatenation, absolute bypass, and
// disabled-entry exclusion
func TestFlatten(t *testing.T) {
	t.Parallel()

	files := []*paramfile.ResolvedFile{
		{
			BasePath: "/App",
			Entries: []*paramfile.Entry{
				{Path: "Config", Kind: paramfile.KindString, Value: "hello"},
				{Path: "/Global/Flag", Kind: paramfile.KindString, Value: "on"},
				{Path: "Off", Kind: paramfile.KindString, Value: "x", Disable: "true"},
				{Path: "List", Kind: paramfile.KindStringList, Values: []string{"a", "b"}},
			},
		},
	}

	params, err := paramfile.Flatten(files)
	require.NoError(t, err)
	require.Len(t, params, 3)

	assert.Equal(t, "/App/Config", params[0].Path)
	assert.Equal(t, "hello", params[0].Value)
	assert.Equal(t, "/Global/Flag", params[1].Path, "absolute path bypasses base path")
	assert.Equal(t, "/App/List", params[2].Path)
	assert.Equal(t, "a,b", params[2].Value, "lists join with comma")
}

// TestFlattenDuplicates verifies identical duplicates collapse and
// conflicting duplicates fail
func TestFlattenDuplicates(t *testing.T) {
	t.Parallel()

	identical := []*paramfile.ResolvedFile{
		{BasePath: "/App", Entries: []*paramfile.Entry{{Path: "C", Kind: paramfile.KindString, Value: "v"}}},
		{BasePath: "/App", Entries: []*paramfile.Entry{{Path: "C", Kind: paramfile.KindString, Value: "v"}}},
	}
	params, err := paramfile.Flatten(identical)
	require.NoError(t, err)
	assert.Len(t, params, 1, "identical duplicates are idempotent")

	conflicting := []*paramfile.ResolvedFile{
		{BasePath: "/App", Entries: []*paramfile.Entry{{Path: "C", Kind: paramfile.KindString, Value: "v"}}},
		{BasePath: "/App", Entries: []*paramfile.Entry{{Path: "C", Kind: paramfile.KindString, Value: "other"}}},
	}
	_, err = paramfile.Flatten(conflicting)
	require.Error(t, err)
	assert.IsType(t, pcerrors.DuplicatePathError{}, err)
}

// TestFlattenRelativeWithoutBasePath verifies a relative path with no base fails
func TestFlattenRelativeWithoutBasePath(t *testing.T) {
	t.Parallel()

	files := []*paramfile.ResolvedFile{
		{Entries: []*paramfile.Entry{{Path: "Config", Kind: paramfile.KindString, Value: "v"}}},
	}
	_, err := paramfile.Flatten(files)
	require.Error(t, err)
}

// TestBasePaths verifies distinct ordered collection
func TestBasePaths(t *testing.T) {
	t.Parallel()

	files := []*paramfile.ResolvedFile{
		{BasePath: "/App"},
		{BasePath: "/Shared"},
		{BasePath: "/App"},
		{BasePath: ""},
	}
	assert.Equal(t, []string{"/App", "/Shared"}, paramfile.BasePaths(files))
}

// TestCompileParseRoundTrip verifies parsing the canonical serialization of
// an already-parsed set yields an equal set
func TestCompileParseRoundTrip(t *testing.T) {
	t.Parallel()

	original := []paramfile.ResolvedParameter{
		{Path: "/App/Config", Kind: paramfile.KindString, Value: "hello"},
		{Path: "/App/Hosts", Kind: paramfile.KindStringList, Value: "a,b"},
		{Path: "/App/Secret", Kind: paramfile.KindSecureString, EncryptedValue: "AAAA", KeyID: "alias/app"},
		{Path: "/App/Strict", Kind: paramfile.KindString, Value: "x", AllowedPattern: "^x$", Description: "strict"},
	}

	data, err := paramfile.Compile(original, "/App")
	require.NoError(t, err)

	file, err := paramfile.Load(data, "roundtrip.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/App", file.BasePath)

	resolved := []*paramfile.ResolvedFile{{BasePath: file.BasePath, Entries: file.Entries}}
	params, err := paramfile.Flatten(resolved)
	require.NoError(t, err)

	require.Len(t, params, len(original))
	for i := range original {
		assert.True(t, original[i].Equal(params[i]), "parameter %s changed across round trip", original[i].Path)
	}
}
