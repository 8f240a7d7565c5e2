package store

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/paramctl/internal/logging"
	"github.com/systmms/paramctl/internal/paramfile"
)

// SSMClientAPI is the parameter-store surface paramctl uses.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// Parameter is one live store entry, decrypted.
type Parameter struct {
	Name           string
	Kind           paramfile.Kind
	Value          string
	KeyID          string
	AllowedPattern string
	Description    string
	Version        int64
}

// PutRequest describes one parameter write.
type PutRequest struct {
	Name           string
	Kind           paramfile.Kind
	Value          string
	KeyID          string
	AllowedPattern string
	Description    string
	Overwrite      bool
}

// ParameterStore wraps the SSM client with paramctl's access patterns.
type ParameterStore struct {
	client SSMClientAPI
	logger *logging.Logger
}

// StoreOption is a functional option for configuring a ParameterStore.
type StoreOption func(*ParameterStore)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) StoreOption {
	return func(s *ParameterStore) { s.logger = l }
}

// NewParameterStore creates a store over the given SSM client.
func NewParameterStore(client SSMClientAPI, opts ...StoreOption) *ParameterStore {
	s := &ParameterStore{client: client, logger: logging.New(false, false)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get fetches one parameter with its value decrypted. A missing parameter is
// not an error: it returns (nil, nil).
func (s *ParameterStore) Get(ctx context.Context, name string) (*Parameter, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	p := fromSDKParameter(out.Parameter)
	return &p, nil
}

// ListByPrefix returns every parameter under path, recursively, decrypted.
// The value listing does not carry key ids or patterns, so those are merged
// in from a metadata listing over the same path.
func (s *ParameterStore) ListByPrefix(ctx context.Context, path string) ([]Parameter, error) {
	var params []Parameter
	var token *string
	for {
		out, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           aws.String(path),
			Recursive:      aws.Bool(true),
			WithDecryption: aws.Bool(true),
			NextToken:      token,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Parameters {
			params = append(params, fromSDKParameter(&item))
		}
		token = out.NextToken
		if token == nil {
			break
		}
	}

	meta, err := s.describeByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	for i := range params {
		if m, ok := meta[params[i].Name]; ok {
			params[i].KeyID = m.KeyID
			params[i].AllowedPattern = m.AllowedPattern
			params[i].Description = m.Description
		}
	}

	s.logger.Debug("Listed %d parameters under %s", len(params), path)
	return params, nil
}

type parameterMeta struct {
	KeyID          string
	AllowedPattern string
	Description    string
}

func (s *ParameterStore) describeByPath(ctx context.Context, path string) (map[string]parameterMeta, error) {
	meta := make(map[string]parameterMeta)
	var token *string
	for {
		out, err := s.client.DescribeParameters(ctx, &ssm.DescribeParametersInput{
			ParameterFilters: []ssmtypes.ParameterStringFilter{{
				Key:    aws.String("Path"),
				Option: aws.String("Recursive"),
				Values: []string{path},
			}},
			NextToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Parameters {
			meta[aws.ToString(item.Name)] = parameterMeta{
				KeyID:          aws.ToString(item.KeyId),
				AllowedPattern: aws.ToString(item.AllowedPattern),
				Description:    aws.ToString(item.Description),
			}
		}
		token = out.NextToken
		if token == nil {
			break
		}
	}
	return meta, nil
}

// Put writes one parameter. SecureString values are sent in the clear and
// encrypted server side under the request's key id. An existing parameter
// with Overwrite false fails; detect it with IsAlreadyExists.
func (s *ParameterStore) Put(ctx context.Context, req PutRequest) error {
	input := &ssm.PutParameterInput{
		Name:      aws.String(req.Name),
		Type:      ssmtypes.ParameterType(req.Kind),
		Value:     aws.String(req.Value),
		Overwrite: aws.Bool(req.Overwrite),
	}
	if req.KeyID != "" {
		input.KeyId = aws.String(req.KeyID)
	}
	if req.AllowedPattern != "" {
		input.AllowedPattern = aws.String(req.AllowedPattern)
	}
	if req.Description != "" {
		input.Description = aws.String(req.Description)
	}

	_, err := s.client.PutParameter(ctx, input)
	return err
}

// Delete removes one parameter. A parameter that is already gone is treated
// as deleted.
func (s *ParameterStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{Name: aws.String(name)})
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

func fromSDKParameter(p *ssmtypes.Parameter) Parameter {
	return Parameter{
		Name:    aws.ToString(p.Name),
		Kind:    paramfile.Kind(p.Type),
		Value:   aws.ToString(p.Value),
		Version: p.Version,
	}
}

// IsNotFound reports whether err is the store's missing-parameter error.
func IsNotFound(err error) bool {
	var nf *ssmtypes.ParameterNotFound
	return errors.As(err, &nf)
}

// IsAlreadyExists reports whether err is the overwrite-refused conflict.
func IsAlreadyExists(err error) bool {
	var ae *ssmtypes.ParameterAlreadyExists
	return errors.As(err, &ae)
}

// IsAccessDenied reports whether err is a permission failure.
func IsAccessDenied(err error) bool {
	return err != nil && strings.Contains(err.Error(), "AccessDenied")
}
