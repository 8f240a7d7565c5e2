package fakes

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// fakeEnvelopePrefix marks blobs produced by the fake so Decrypt can reject
// anything that never went through Encrypt.
const fakeEnvelopePrefix = "kms:"

// FakeKMSClient is a reversible stand-in for the key-management service.
// Encrypt wraps the plaintext with the key id; Decrypt unwraps it.
type FakeKMSClient struct {
	// EncryptErr and DecryptErr force failures when set
	EncryptErr error
	DecryptErr error

	// Call records
	EncryptCalls []string
	DecryptCalls int
}

// NewFakeKMSClient creates a fake KMS client.
func NewFakeKMSClient() *FakeKMSClient {
	return &FakeKMSClient{}
}

// Seal produces the blob Encrypt would return, for seeding test fixtures.
func Seal(keyID, plaintext string) []byte {
	return []byte(fakeEnvelopePrefix + keyID + "|" + plaintext)
}

// Encrypt mimics the Encrypt operation.
func (f *FakeKMSClient) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	keyID := aws.ToString(params.KeyId)
	f.EncryptCalls = append(f.EncryptCalls, keyID)
	if f.EncryptErr != nil {
		return nil, f.EncryptErr
	}
	return &kms.EncryptOutput{
		CiphertextBlob: Seal(keyID, string(params.Plaintext)),
		KeyId:          params.KeyId,
	}, nil
}

// Decrypt mimics the Decrypt operation, failing on blobs the fake did not
// produce the way KMS fails on tampered ciphertext.
func (f *FakeKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.DecryptCalls++
	if f.DecryptErr != nil {
		return nil, f.DecryptErr
	}

	blob := string(params.CiphertextBlob)
	rest, ok := strings.CutPrefix(blob, fakeEnvelopePrefix)
	if !ok {
		return nil, &kmstypes.InvalidCiphertextException{}
	}
	keyID, plaintext, ok := strings.Cut(rest, "|")
	if !ok {
		return nil, &kmstypes.InvalidCiphertextException{}
	}
	return &kms.DecryptOutput{
		Plaintext: []byte(plaintext),
		KeyId:     aws.String(keyID),
	}, nil
}
