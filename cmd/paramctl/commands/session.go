package commands

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/paramctl/internal/logging"
	"github.com/systmms/paramctl/internal/securevalue"
	"github.com/systmms/paramctl/internal/store"
)

// Config holds the global flags shared by every command. It is populated by
// the root command's PersistentPreRun before any RunE fires.
type Config struct {
	Region  string
	Profile string
	Logger  *logging.Logger
}

// Session bundles the AWS collaborators one invocation needs.
type Session struct {
	Store    *store.ParameterStore
	Codec    *securevalue.Codec
	Identity *store.Identity
}

// newSession builds a session from the shared AWS config. Tests replace it to
// inject fakes.
var newSession = func(ctx context.Context, cfg *Config) (*Session, error) {
	awsCfg, err := store.LoadAWSConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return nil, err
	}

	identity := store.NewIdentity(sts.NewFromConfig(awsCfg), awsCfg.Region)

	return &Session{
		Store:    store.NewParameterStore(ssm.NewFromConfig(awsCfg), store.WithLogger(cfg.Logger)),
		Codec:    securevalue.NewCodec(kms.NewFromConfig(awsCfg), securevalue.WithIdentity(identity), securevalue.WithLogger(cfg.Logger)),
		Identity: identity,
	}, nil
}
