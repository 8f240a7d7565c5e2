// Package inputs collects named template values from CLI flags, file
// defaults, built-ins, and interactive prompts, and substitutes them into
// parameter file fields. References use the $(Name) token and are resolved
// in a single pass; a resolved value is never scanned for further
// references.
package inputs

import (
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/secure"
)

// Source records where a resolved input value came from.
type Source string

const (
	SourceCLI      Source = "cli"
	SourcePrompted Source = "prompted"
	SourceDefault  Source = "default"
	SourceBuiltIn  Source = "built-in"
	SourceKeyring  Source = "keyring"
)

// Value is one resolved input. Secret material is held either as an opaque
// ciphertext (decrypted lazily by the secure value codec) or in a protected
// enclave for prompted secrets; plain values are held directly.
type Value struct {
	Name   string
	Kind   paramfile.Kind
	Source Source

	plain      string
	ciphertext string
	secret     *secure.Value
}

// PlainValue builds a non-secret value.
func PlainValue(name string, kind paramfile.Kind, source Source, v string) *Value {
	return &Value{Name: name, Kind: kind, Source: source, plain: v}
}

// CiphertextValue builds a value supplied as envelope ciphertext.
func CiphertextValue(name string, source Source, ciphertext string) *Value {
	return &Value{Name: name, Kind: paramfile.KindSecureString, Source: source, ciphertext: ciphertext}
}

// SecretValue builds a value whose plaintext lives in a protected enclave.
func SecretValue(name string, source Source, plaintext *secure.Value) *Value {
	return &Value{Name: name, Kind: paramfile.KindSecureString, Source: source, secret: plaintext}
}

// Secure reports whether this value may only be materialized by the codec.
func (v *Value) Secure() bool {
	return v.secret != nil || v.ciphertext != ""
}

// Plain returns the resolved string for non-secure values.
func (v *Value) Plain() (string, bool) {
	if v.Secure() {
		return "", false
	}
	return v.plain, true
}

// Ciphertext returns the envelope ciphertext, when the value was supplied
// encrypted.
func (v *Value) Ciphertext() (string, bool) {
	return v.ciphertext, v.ciphertext != ""
}

// Secret returns the protected plaintext, when the value was prompted.
func (v *Value) Secret() (*secure.Value, bool) {
	return v.secret, v.secret != nil
}

// String keeps accidental formatting of a Value redacted.
func (v *Value) String() string {
	if v.Secure() {
		return "[REDACTED]"
	}
	return v.plain
}

// Destroy wipes any protected plaintext.
func (v *Value) Destroy() {
	if v.secret != nil {
		v.secret.Destroy()
	}
}
