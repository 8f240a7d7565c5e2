package inputs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/inputs"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/secure"
)

type fakePrompter struct {
	// answers are consumed in order across both prompt styles
	answers []string
	labels  []string
	secret  []bool
}

func (f *fakePrompter) next(label string, secret bool) (string, error) {
	if len(f.answers) == 0 {
		return "", errors.New("no more answers")
	}
	f.labels = append(f.labels, label)
	f.secret = append(f.secret, secret)
	answer := f.answers[0]
	f.answers = f.answers[1:]
	return answer, nil
}

func (f *fakePrompter) Prompt(label string) (string, error) {
	return f.next(label, false)
}

func (f *fakePrompter) PromptSecret(label string) (string, error) {
	return f.next(label, true)
}

type fakeIdentity struct {
	account    string
	accountErr error
	region     string
	calls      int
}

func (f *fakeIdentity) AccountID(ctx context.Context) (string, error) {
	f.calls++
	return f.account, f.accountErr
}

func (f *fakeIdentity) Region() string { return f.region }

type fakeKeyring struct {
	stored map[string]string
}

func (f *fakeKeyring) Get(name string) (string, error) {
	v, ok := f.stored[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (f *fakeKeyring) Set(name, value string) error {
	if f.stored == nil {
		f.stored = map[string]string{}
	}
	f.stored[name] = value
	return nil
}

func mustSet(t *testing.T, docs ...string) *paramfile.Set {
	t.Helper()
	var files []*paramfile.File
	for i, doc := range docs {
		f, err := paramfile.Load([]byte(doc), fmt.Sprintf("test-%d.yml", i))
		require.NoError(t, err)
		files = append(files, f)
	}
	set, err := paramfile.MergeFiles(files...)
	require.NoError(t, err)
	return set
}

func TestReferencedNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"no references", "/App/Config/Debug", nil},
		{"single", "/$(Env)/Config", []string{"Env"}},
		{"multiple distinct", "/$(Env)/$(Service)/Port", []string{"Env", "Service"}},
		{"repeated counted once", "$(Env)-$(Env)", []string{"Env"}},
		{"malformed token ignored", "/$(Env/Config", nil},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, inputs.ReferencedNames(tc.in))
		})
	}
}

func TestResolveFromCLI(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /$(Env)/App
Config:
  Port: "8080"
`)
	r := inputs.NewResolver(set.Inputs,
		inputs.WithCLIInputs(map[string]string{"Env": "prod"}),
		inputs.WithPrompting(false))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	v, ok := rs.Lookup("Env")
	require.True(t, ok)
	plain, ok := v.Plain()
	require.True(t, ok)
	assert.Equal(t, "prod", plain)
	assert.Equal(t, inputs.SourceCLI, v.Source)
}

func TestResolveCLISecureBeatsPlain(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /App
Secret:
  Type: SecureString
  KeyId: alias/app
  Input: Token
`)
	r := inputs.NewResolver(set.Inputs,
		inputs.WithCLIInputs(map[string]string{"Token": "plain"}),
		inputs.WithCLISecureInputs(map[string]string{"Token": "AQICAHh="}),
		inputs.WithPrompting(false))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	v, ok := rs.Lookup("Token")
	require.True(t, ok)
	assert.True(t, v.Secure())
	ciphertext, ok := v.Ciphertext()
	require.True(t, ok)
	assert.Equal(t, "AQICAHh=", ciphertext)
}

func TestResolveDeclaredDefault(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.INPUTS:
  Env:
    Type: String
    Default: dev
  Zones:
    Type: StringList
    Default: [a, b]
.BASEPATH: /$(Env)/App
Zones: $(Zones)
`)
	r := inputs.NewResolver(set.Inputs, inputs.WithPrompting(false))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	env, ok := rs.Lookup("Env")
	require.True(t, ok)
	plain, _ := env.Plain()
	assert.Equal(t, "dev", plain)
	assert.Equal(t, inputs.SourceDefault, env.Source)

	zones, ok := rs.Lookup("Zones")
	require.True(t, ok)
	plain, _ = zones.Plain()
	assert.Equal(t, "a,b", plain)
}

func TestResolveCLIOverridesDefault(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.INPUTS:
  Env:
    Type: String
    Default: dev
.BASEPATH: /$(Env)/App
Port: "8080"
`)
	r := inputs.NewResolver(set.Inputs,
		inputs.WithCLIInputs(map[string]string{"Env": "prod"}),
		inputs.WithPrompting(false))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	v, _ := rs.Lookup("Env")
	plain, _ := v.Plain()
	assert.Equal(t, "prod", plain)
}

func TestResolveBuiltIns(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /App
RoleArn: arn:aws:iam::$(Account):role/app
Region: $(Region)
`)
	id := &fakeIdentity{account: "123456789012", region: "us-east-2"}
	r := inputs.NewResolver(set.Inputs,
		inputs.WithIdentity(id),
		inputs.WithPrompting(false))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	account, ok := rs.Lookup("Account")
	require.True(t, ok)
	plain, _ := account.Plain()
	assert.Equal(t, "123456789012", plain)
	assert.Equal(t, inputs.SourceBuiltIn, account.Source)
	assert.Equal(t, 1, id.calls)

	region, ok := rs.Lookup("Region")
	require.True(t, ok)
	plain, _ = region.Plain()
	assert.Equal(t, "us-east-2", plain)
}

func TestResolveBuiltInNotCalledWhenUnreferenced(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /App
Port: "8080"
`)
	id := &fakeIdentity{accountErr: errors.New("should not be called")}
	r := inputs.NewResolver(set.Inputs,
		inputs.WithIdentity(id),
		inputs.WithPrompting(false))

	_, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)
	assert.Zero(t, id.calls)
}

func TestResolveCLIOverridesBuiltIn(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /App
RoleArn: arn:aws:iam::$(Account):role/app
`)
	id := &fakeIdentity{accountErr: errors.New("should not be called")}
	r := inputs.NewResolver(set.Inputs,
		inputs.WithIdentity(id),
		inputs.WithCLIInputs(map[string]string{"Account": "000000000000"}),
		inputs.WithPrompting(false))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)
	v, _ := rs.Lookup("Account")
	plain, _ := v.Plain()
	assert.Equal(t, "000000000000", plain)
	assert.Zero(t, id.calls)
}

func TestResolvePromptsSecureWithoutEcho(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.INPUTS:
  DBPassword:
    Type: SecureString
    Description: database password
.BASEPATH: /App
Secret:
  Type: SecureString
  KeyId: alias/app
  Input: DBPassword
`)
	p := &fakePrompter{answers: []string{"hunter2"}}
	r := inputs.NewResolver(set.Inputs, inputs.WithPrompter(p))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	v, ok := rs.Lookup("DBPassword")
	require.True(t, ok)
	assert.True(t, v.Secure())
	assert.Equal(t, "[REDACTED]", v.String())

	require.Len(t, p.secret, 1)
	assert.True(t, p.secret[0])
	assert.Contains(t, p.labels[0], "DBPassword")
	assert.Contains(t, p.labels[0], "database password")

	sv, ok := v.Secret()
	require.True(t, ok)
	err = sv.WithString(func(s string) error {
		assert.Equal(t, "hunter2", s)
		return nil
	})
	require.NoError(t, err)
}

func TestResolvePromptsPlainWithPatternRetry(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.INPUTS:
  Env:
    Type: String
    Pattern: "^(dev|prod)$"
.BASEPATH: /$(Env)/App
Port: "8080"
`)
	p := &fakePrompter{answers: []string{"staging", "prod"}}
	r := inputs.NewResolver(set.Inputs, inputs.WithPrompter(p))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	v, _ := rs.Lookup("Env")
	plain, _ := v.Plain()
	assert.Equal(t, "prod", plain)
	assert.Equal(t, inputs.SourcePrompted, v.Source)
	assert.Len(t, p.labels, 2)
	assert.False(t, p.secret[0])
}

func TestResolvePatternExhaustionFails(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.INPUTS:
  Env:
    Type: String
    Pattern: "^(dev|prod)$"
.BASEPATH: /$(Env)/App
Port: "8080"
`)
	p := &fakePrompter{answers: []string{"a", "b", "c", "d"}}
	r := inputs.NewResolver(set.Inputs, inputs.WithPrompter(p))

	_, err := r.Resolve(context.Background(), set)
	require.Error(t, err)
	var ue pcerrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "Env")
}

func TestResolveNoPromptAccumulatesAllMissing(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /$(Env)/App
Endpoint: https://$(Service).example.com
Port: "8080"
`)
	r := inputs.NewResolver(set.Inputs, inputs.WithPrompting(false))

	_, err := r.Resolve(context.Background(), set)
	require.Error(t, err)
	var unresolved pcerrors.UnresolvedInputError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"Env", "Service"}, unresolved.Names)
}

func TestResolveKeyringHitSkipsPrompt(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.INPUTS:
  DBPassword: SecureString
.BASEPATH: /App
Secret:
  Type: SecureString
  KeyId: alias/app
  Input: DBPassword
`)
	k := &fakeKeyring{stored: map[string]string{"DBPassword": "cached"}}
	p := &fakePrompter{}
	r := inputs.NewResolver(set.Inputs,
		inputs.WithKeyring(k),
		inputs.WithPrompter(p))

	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	v, _ := rs.Lookup("DBPassword")
	assert.True(t, v.Secure())
	assert.Equal(t, inputs.SourceKeyring, v.Source)
	assert.Empty(t, p.labels)
}

func TestResolvePromptedValueCachedInKeyring(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /$(Env)/App
Port: "8080"
`)
	k := &fakeKeyring{}
	p := &fakePrompter{answers: []string{"prod"}}
	r := inputs.NewResolver(set.Inputs,
		inputs.WithKeyring(k),
		inputs.WithPrompter(p))

	_, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, "prod", k.stored["Env"])
}

func TestSubstituteUnknownNamePreservedInError(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /App
Port: "8080"
`)
	r := inputs.NewResolver(set.Inputs, inputs.WithPrompting(false))
	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	_, err = rs.Substitute("/$(Missing)/x")
	require.Error(t, err)
	var unresolved pcerrors.UnresolvedInputError
	assert.ErrorAs(t, err, &unresolved)
}

func TestSubstituteSecureIntoPlainRejected(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /App
Secret:
  Type: SecureString
  KeyId: alias/app
  Input: Token
`)
	r := inputs.NewResolver(set.Inputs,
		inputs.WithCLISecureInputs(map[string]string{"Token": "AQICAHh="}),
		inputs.WithPrompting(false))
	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	_, err = rs.Substitute("/App/$(Token)")
	require.Error(t, err)
	var ue pcerrors.UserError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "Token")
}

func TestSubstituteFileDoesNotMutateTemplate(t *testing.T) {
	t.Parallel()

	set := mustSet(t, `
.BASEPATH: /$(Env)/App
Config/Endpoint: https://$(Env).example.com
Config/Zones:
  - $(Env)-a
  - $(Env)-b
`)
	r := inputs.NewResolver(set.Inputs,
		inputs.WithCLIInputs(map[string]string{"Env": "prod"}),
		inputs.WithPrompting(false))
	rs, err := r.Resolve(context.Background(), set)
	require.NoError(t, err)

	f := set.Files[0]
	resolved, err := rs.SubstituteFile(f)
	require.NoError(t, err)

	assert.Equal(t, "/prod/App", resolved.BasePath)
	byPath := map[string]*paramfile.Entry{}
	for _, e := range resolved.Entries {
		byPath[e.Path] = e
	}
	require.Contains(t, byPath, "Config/Endpoint")
	assert.Equal(t, "https://prod.example.com", byPath["Config/Endpoint"].Value)
	assert.Equal(t, []string{"prod-a", "prod-b"}, byPath["Config/Zones"].Values)

	// template untouched
	assert.Equal(t, "/$(Env)/App", f.BasePath)
	for _, e := range f.Entries {
		if e.Path == "Config/Endpoint" {
			assert.Equal(t, "https://$(Env).example.com", e.Value)
		}
	}
}

func TestValueRedaction(t *testing.T) {
	t.Parallel()

	secret := inputs.SecretValue("Token", inputs.SourcePrompted, secure.FromString("hunter2"))
	defer secret.Destroy()
	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", secret))
	assert.NotContains(t, fmt.Sprintf("%v", secret), "hunter2")

	plain := inputs.PlainValue("Env", paramfile.KindString, inputs.SourceCLI, "prod")
	assert.Equal(t, "prod", plain.String())
}
