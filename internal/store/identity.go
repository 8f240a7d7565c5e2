package store

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSClientAPI is the identity surface paramctl uses.
type STSClientAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Identity resolves the caller's account and region. The account lookup is
// lazy and cached for the process lifetime.
type Identity struct {
	client STSClientAPI
	region string

	mu      sync.Mutex
	account string
}

// NewIdentity creates an identity resolver for the configured region.
func NewIdentity(client STSClientAPI, region string) *Identity {
	return &Identity{client: client, region: region}
}

// AccountID returns the caller's account id, calling the identity service at
// most once.
func (id *Identity) AccountID(ctx context.Context) (string, error) {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.account != "" {
		return id.account, nil
	}
	out, err := id.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	id.account = aws.ToString(out.Account)
	return id.account, nil
}

// Region returns the configured region.
func (id *Identity) Region() string {
	return id.region
}
