package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/systmms/paramctl/internal/logging"
	"github.com/systmms/paramctl/internal/securevalue"
	"github.com/systmms/paramctl/internal/store"
	"github.com/systmms/paramctl/tests/fakes"
)

// testEnv wires every command at the fake AWS boundary: real store, codec
// and identity wrappers over fake SSM, KMS and STS clients.
type testEnv struct {
	ssm *fakes.FakeSSMClient
	kms *fakes.FakeKMSClient
	sts *fakes.FakeSTSClient
	cfg *Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		ssm: fakes.NewFakeSSMClient(),
		kms: fakes.NewFakeKMSClient(),
		sts: fakes.NewFakeSTSClient("123456789012"),
		cfg: &Config{Region: "us-east-1", Logger: logging.New(false, true)},
	}

	orig := newSession
	newSession = func(ctx context.Context, cfg *Config) (*Session, error) {
		identity := store.NewIdentity(env.sts, cfg.Region)
		return &Session{
			Store:    store.NewParameterStore(env.ssm),
			Codec:    securevalue.NewCodec(env.kms, securevalue.WithIdentity(identity)),
			Identity: identity,
		}, nil
	}
	t.Cleanup(func() { newSession = orig })

	return env
}

// writeParamFile writes a parameter file into a temp dir and returns its path.
func writeParamFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parameters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// sealed returns a base64 ciphertext the fake KMS client decrypts back to
// plaintext under keyID.
func sealed(keyID, plaintext string) string {
	return base64.StdEncoding.EncodeToString(fakes.Seal(keyID, plaintext))
}

// captureOutput runs a command and returns everything it printed to stdout.
func captureOutput(t *testing.T, cmd *cobra.Command, args []string) string {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	cmd.SetArgs(args)
	err := cmd.Execute()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)

	if err != nil {
		t.Logf("Command output before error: %s", buf.String())
		require.NoError(t, err)
	}

	return buf.String()
}
