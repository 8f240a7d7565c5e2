package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sso"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	"github.com/spf13/cobra"
	"github.com/systmms/paramctl/internal/store"
)

// newSSOSession builds the device-authorization session. Tests replace it to
// inject fake OIDC and portal clients.
var newSSOSession = func(ctx context.Context, cfg *Config, startURL, region string) (*store.SSOSession, error) {
	awsCfg, err := store.LoadAWSConfig(ctx, region, cfg.Profile)
	if err != nil {
		return nil, err
	}
	return store.NewSSOSession(
		ssooidc.NewFromConfig(awsCfg),
		sso.NewFromConfig(awsCfg),
		startURL, region,
		store.WithSSOLogger(cfg.Logger),
	), nil
}

func NewLoginCommand(cfg *Config) *cobra.Command {
	var (
		startURL  string
		ssoRegion string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through AWS IAM Identity Center",
		Long: `Login runs the device-authorization flow against the given Identity
Center start URL: it prints a verification URL and user code, waits for
the browser sign-in to complete, and caches the token where the AWS CLI
and SDKs find it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			region := ssoRegion
			if region == "" {
				region = cfg.Region
			}

			session, err := newSSOSession(ctx, cfg, startURL, region)
			if err != nil {
				return err
			}

			if err := session.Login(ctx); err != nil {
				return err
			}
			if err := session.Verify(ctx); err != nil {
				return err
			}

			fmt.Println("Signed in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&startURL, "start-url", "", "Identity Center start URL (required)")
	cmd.Flags().StringVar(&ssoRegion, "sso-region", "", "Identity Center region (defaults to --region)")
	_ = cmd.MarkFlagRequired("start-url")

	return cmd
}
