package fakes

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// FakeSTSClient answers caller identity lookups.
type FakeSTSClient struct {
	Account string
	Err     error
	Calls   int
}

// NewFakeSTSClient creates a fake STS client for the given account.
func NewFakeSTSClient(account string) *FakeSTSClient {
	return &FakeSTSClient{Account: account}
}

// GetCallerIdentity mimics the identity operation.
func (f *FakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(f.Account),
		Arn:     aws.String("arn:aws:iam::" + f.Account + ":user/test"),
		UserId:  aws.String("AIDA" + f.Account),
	}, nil
}
