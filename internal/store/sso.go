package store

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sso"
	"github.com/aws/aws-sdk-go-v2/service/ssooidc"
	oidctypes "github.com/aws/aws-sdk-go-v2/service/ssooidc/types"

	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/logging"
)

// SSOOIDCClientAPI is the device-authorization surface of the OIDC service.
type SSOOIDCClientAPI interface {
	RegisterClient(ctx context.Context, params *ssooidc.RegisterClientInput, optFns ...func(*ssooidc.Options)) (*ssooidc.RegisterClientOutput, error)
	StartDeviceAuthorization(ctx context.Context, params *ssooidc.StartDeviceAuthorizationInput, optFns ...func(*ssooidc.Options)) (*ssooidc.StartDeviceAuthorizationOutput, error)
	CreateToken(ctx context.Context, params *ssooidc.CreateTokenInput, optFns ...func(*ssooidc.Options)) (*ssooidc.CreateTokenOutput, error)
}

// SSOClientAPI is the portal surface used to verify a session.
type SSOClientAPI interface {
	ListAccounts(ctx context.Context, params *sso.ListAccountsInput, optFns ...func(*sso.Options)) (*sso.ListAccountsOutput, error)
}

// ssoToken is the cached token record, in the same shape the AWS CLI writes
// so a session from either tool is honored by both.
type ssoToken struct {
	StartURL    string    `json:"startUrl"`
	Region      string    `json:"region"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SSOSession drives browser-based sign-in against IAM Identity Center and
// caches the resulting access token on disk.
type SSOSession struct {
	oidc      SSOOIDCClientAPI
	portal    SSOClientAPI
	startURL  string
	region    string
	cacheDir  string
	logger    *logging.Logger
	notify    func(verificationURL, userCode string)
	pollSleep func(context.Context, time.Duration) error
}

// SSOOption is a functional option for configuring an SSOSession.
type SSOOption func(*SSOSession)

// WithSSOCacheDir overrides the token cache location.
func WithSSOCacheDir(dir string) SSOOption {
	return func(s *SSOSession) { s.cacheDir = dir }
}

// WithSSONotify sets the callback that surfaces the verification URL and
// user code to the user.
func WithSSONotify(fn func(verificationURL, userCode string)) SSOOption {
	return func(s *SSOSession) { s.notify = fn }
}

// WithSSOLogger sets the logger.
func WithSSOLogger(l *logging.Logger) SSOOption {
	return func(s *SSOSession) { s.logger = l }
}

// NewSSOSession creates a session for the given portal start URL.
func NewSSOSession(oidc SSOOIDCClientAPI, portal SSOClientAPI, startURL, region string, opts ...SSOOption) *SSOSession {
	s := &SSOSession{
		oidc:     oidc,
		portal:   portal,
		startURL: startURL,
		region:   region,
		logger:   logging.New(false, false),
		notify: func(url, code string) {
			fmt.Printf("Open %s and enter code %s\n", url, code)
		},
		pollSleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.cacheDir = filepath.Join(home, ".aws", "sso", "cache")
		}
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Login performs the device-authorization flow and caches the token. It
// blocks until the user completes sign-in in the browser or the
// authorization window expires.
func (s *SSOSession) Login(ctx context.Context) error {
	client, err := s.oidc.RegisterClient(ctx, &ssooidc.RegisterClientInput{
		ClientName: aws.String("paramctl"),
		ClientType: aws.String("public"),
	})
	if err != nil {
		return pcerrors.UserError{
			Message:    "Failed to register with the identity service",
			Details:    err.Error(),
			Suggestion: "Check the portal start URL and region",
		}
	}

	auth, err := s.oidc.StartDeviceAuthorization(ctx, &ssooidc.StartDeviceAuthorizationInput{
		ClientId:     client.ClientId,
		ClientSecret: client.ClientSecret,
		StartUrl:     aws.String(s.startURL),
	})
	if err != nil {
		return pcerrors.UserError{
			Message:    "Failed to start device authorization",
			Details:    err.Error(),
			Suggestion: "Check the portal start URL and region",
		}
	}

	s.notify(aws.ToString(auth.VerificationUriComplete), aws.ToString(auth.UserCode))

	interval := time.Duration(auth.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)

	for {
		if time.Now().After(deadline) {
			return pcerrors.UserError{
				Message:    "Sign-in window expired before authorization completed",
				Suggestion: "Run 'paramctl login' again and complete the browser sign-in promptly",
			}
		}
		if err := s.pollSleep(ctx, interval); err != nil {
			return err
		}

		token, err := s.oidc.CreateToken(ctx, &ssooidc.CreateTokenInput{
			ClientId:     client.ClientId,
			ClientSecret: client.ClientSecret,
			DeviceCode:   auth.DeviceCode,
			GrantType:    aws.String("urn:ietf:params:oauth:grant-type:device_code"),
		})
		if err != nil {
			var pending *oidctypes.AuthorizationPendingException
			if errors.As(err, &pending) {
				continue
			}
			var slow *oidctypes.SlowDownException
			if errors.As(err, &slow) {
				interval += 5 * time.Second
				continue
			}
			return pcerrors.UserError{
				Message:    "Sign-in failed",
				Details:    err.Error(),
				Suggestion: "Run 'paramctl login' to start a new sign-in",
			}
		}

		return s.saveToken(ssoToken{
			StartURL:    s.startURL,
			Region:      s.region,
			AccessToken: aws.ToString(token.AccessToken),
			ExpiresAt:   time.Now().Add(time.Duration(token.ExpiresIn) * time.Second).UTC(),
		})
	}
}

// Token returns a cached, unexpired access token.
func (s *SSOSession) Token() (string, error) {
	token, err := s.loadToken()
	if err != nil {
		return "", pcerrors.UserError{
			Message:    "No Identity Center session found",
			Details:    err.Error(),
			Suggestion: "Run 'paramctl login' or 'aws sso login' to authenticate",
		}
	}
	if time.Now().After(token.ExpiresAt) {
		return "", pcerrors.UserError{
			Message:    "Identity Center session expired",
			Details:    fmt.Sprintf("token expired at %s", token.ExpiresAt.Format(time.RFC3339)),
			Suggestion: "Run 'paramctl login' to re-authenticate",
		}
	}
	return token.AccessToken, nil
}

// Verify confirms the cached token is accepted by the portal.
func (s *SSOSession) Verify(ctx context.Context) error {
	token, err := s.Token()
	if err != nil {
		return err
	}
	_, err = s.portal.ListAccounts(ctx, &sso.ListAccountsInput{
		AccessToken: aws.String(token),
		MaxResults:  aws.Int32(1),
	})
	if err != nil {
		return pcerrors.UserError{
			Message:    "Identity Center session was rejected",
			Details:    err.Error(),
			Suggestion: "Run 'paramctl login' to re-authenticate",
		}
	}
	return nil
}

// cacheFile derives the token cache path the way the AWS CLI does: the SHA1
// of the start URL names the file.
func (s *SSOSession) cacheFile() string {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(s.startURL)))
	return filepath.Join(s.cacheDir, hash+".json")
}

func (s *SSOSession) loadToken() (*ssoToken, error) {
	data, err := os.ReadFile(s.cacheFile())
	if err != nil {
		return nil, err
	}
	var token ssoToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	if token.StartURL != s.startURL {
		return nil, fmt.Errorf("cached token start URL mismatch")
	}
	return &token, nil
}

func (s *SSOSession) saveToken(token ssoToken) error {
	if err := os.MkdirAll(s.cacheDir, 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.cacheFile(), data, 0o600); err != nil {
		return err
	}
	s.logger.Debug("Cached Identity Center token for %s", s.startURL)
	return nil
}
