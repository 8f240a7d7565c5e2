// Package store wraps the AWS service clients behind narrow interfaces so
// every caller can be tested against in-memory fakes.
package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	pcerrors "github.com/systmms/paramctl/internal/errors"
)

// LoadAWSConfig loads the shared AWS configuration, honoring the region and
// profile flags when set.
func LoadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, pcerrors.UserError{
			Message:    "Failed to load AWS configuration",
			Details:    err.Error(),
			Suggestion: "Check your AWS credentials, or pass --region and --profile explicitly",
		}
	}
	return cfg, nil
}
