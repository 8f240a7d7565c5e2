// Package securevalue encrypts and decrypts parameter values through the
// key-management service. Ciphertext at rest is the base64 encoding of the
// raw envelope blob; plaintext only ever exists inside protected enclaves,
// materialized at the point of comparison or apply.
package securevalue

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/inputs"
	"github.com/systmms/paramctl/internal/logging"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/secure"
)

// KMSClientAPI is the key-management surface the codec needs.
type KMSClientAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// IdentityAPI supplies region and account for expanding bare key ids.
type IdentityAPI interface {
	AccountID(ctx context.Context) (string, error)
	Region() string
}

// Codec converts between plaintext enclaves and envelope ciphertext.
type Codec struct {
	client   KMSClientAPI
	identity IdentityAPI
	logger   *logging.Logger
}

// CodecOption is a functional option for configuring a Codec.
type CodecOption func(*Codec)

// WithIdentity enables key id expansion to full ARNs.
func WithIdentity(id IdentityAPI) CodecOption {
	return func(c *Codec) { c.identity = id }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) CodecOption {
	return func(c *Codec) { c.logger = l }
}

// NewCodec creates a codec over the given key-management client.
func NewCodec(client KMSClientAPI, opts ...CodecOption) *Codec {
	c := &Codec{client: client, logger: logging.New(false, false)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypt produces storable ciphertext for the plaintext under keyID.
func (c *Codec) Encrypt(ctx context.Context, keyID string, plaintext *secure.Value) (string, error) {
	buf, err := plaintext.Open()
	if err != nil {
		return "", pcerrors.CryptoError{Op: "encrypt", KeyID: keyID, Err: err}
	}
	defer buf.Destroy()

	out, err := c.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(keyID),
		Plaintext: buf.Bytes(),
	})
	if err != nil {
		return "", pcerrors.CryptoError{Op: "encrypt", KeyID: keyID, Err: err}
	}
	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Decrypt recovers plaintext from ciphertext into a protected enclave. The
// key is identified by the envelope itself; a tampered or truncated
// ciphertext surfaces as a CryptoError.
func (c *Codec) Decrypt(ctx context.Context, ciphertext string) (*secure.Value, error) {
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, pcerrors.CryptoError{Op: "decrypt", Err: fmt.Errorf("ciphertext is not valid base64: %w", err)}
	}

	out, err := c.client.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return nil, pcerrors.CryptoError{Op: "decrypt", Err: err}
	}
	return secure.NewValue(out.Plaintext), nil
}

// Materialize resolves the plaintext of one secure parameter: a stored
// EncryptedValue decrypts lazily; an Input reference yields either a prompted
// enclave, a decrypted CLI ciphertext, or a plain value treated as
// ciphertext. The caller owns the returned enclave except when it is a
// prompted input's, which is shared across every entry referencing it.
func (c *Codec) Materialize(ctx context.Context, p paramfile.ResolvedParameter, set *inputs.ResolvedSet) (*secure.Value, bool, error) {
	if p.Kind != paramfile.KindSecureString {
		return nil, false, fmt.Errorf("parameter %s is not a SecureString", p.Path)
	}

	if p.EncryptedValue != "" {
		v, err := c.Decrypt(ctx, p.EncryptedValue)
		return v, true, err
	}

	value, ok := set.Lookup(p.Input)
	if !ok {
		return nil, false, pcerrors.UnresolvedInputError{Names: []string{p.Input}}
	}

	if sv, ok := value.Secret(); ok {
		return sv, false, nil
	}
	if ciphertext, ok := value.Ciphertext(); ok {
		v, err := c.Decrypt(ctx, ciphertext)
		return v, true, err
	}
	// A plain input referenced from a secure entry is taken as ciphertext.
	// A value that is not one fails here rather than being stored verbatim.
	plain, _ := value.Plain()
	v, err := c.Decrypt(ctx, plain)
	return v, true, err
}

// FormatKeyID expands a bare key id or alias to a full ARN. Ids already in
// ARN form pass through unchanged.
func (c *Codec) FormatKeyID(ctx context.Context, keyID string) (string, error) {
	if strings.HasPrefix(keyID, "arn:") || c.identity == nil {
		return keyID, nil
	}
	account, err := c.identity.AccountID(ctx)
	if err != nil {
		return "", pcerrors.UserError{
			Message:    "Failed to look up the caller account id for key id expansion",
			Details:    err.Error(),
			Suggestion: "Pass the key id as a full ARN, or check sts:GetCallerIdentity permission",
		}
	}
	return fmt.Sprintf("arn:aws:kms:%s:%s:%s", c.identity.Region(), account, keyID), nil
}
