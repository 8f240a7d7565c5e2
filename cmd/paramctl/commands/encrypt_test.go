package commands

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/tests/fakes"
)

func TestEncryptCommand_WritesEncryptedValue(t *testing.T) {
	env := newTestEnv(t)
	file := writeParamFile(t, `
.BASEPATH: /App
Port: "8080"
Secret:
  Type: SecureString
  Description: API token
  Input: Token
`)

	cmd := NewEncryptCommand(env.cfg)
	captureOutput(t, cmd, []string{file, "alias/app", "Secret=hunter2"})

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	parsed, err := paramfile.Load(data, "parameters.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/App", parsed.BasePath)

	byPath := make(map[string]*paramfile.Entry)
	for _, e := range parsed.Entries {
		byPath[e.Path] = e
	}

	// Untouched entries survive the rewrite.
	require.Contains(t, byPath, "Port")
	assert.Equal(t, "8080", byPath["Port"].Value)

	secret := byPath["Secret"]
	require.NotNil(t, secret)
	assert.Equal(t, paramfile.KindSecureString, secret.Kind)
	assert.Equal(t, "API token", secret.Description)
	assert.Equal(t, appKeyARN, secret.KeyID)
	assert.Empty(t, secret.Input)

	blob, err := base64.StdEncoding.DecodeString(secret.EncryptedValue)
	require.NoError(t, err)
	assert.Equal(t, fakes.Seal(appKeyARN, "hunter2"), blob)
}

func TestEncryptCommand_CreatesMissingFile(t *testing.T) {
	env := newTestEnv(t)
	file := filepath.Join(t.TempDir(), "new.yaml")

	cmd := NewEncryptCommand(env.cfg)
	captureOutput(t, cmd, []string{file, "alias/app", "/App/Token=s3cret", "/App/Other=also"})

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	parsed, err := paramfile.Load(data, "new.yaml")
	require.NoError(t, err)
	require.Len(t, parsed.Entries, 2)

	for _, e := range parsed.Entries {
		assert.Equal(t, paramfile.KindSecureString, e.Kind)
		assert.Equal(t, appKeyARN, e.KeyID)
		assert.NotEmpty(t, e.EncryptedValue)
	}
}

func TestEncryptCommand_RejectsBarePathWithoutPrompt(t *testing.T) {
	env := newTestEnv(t)
	file := filepath.Join(t.TempDir(), "new.yaml")

	cmd := NewEncryptCommand(env.cfg)
	cmd.SetArgs([]string{file, "alias/app", "JustAPath"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PATH=VALUE")

	_, statErr := os.Stat(file)
	assert.True(t, os.IsNotExist(statErr))
}
