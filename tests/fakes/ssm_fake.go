package fakes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ParameterData holds the data for one fake SSM parameter.
type ParameterData struct {
	Name             string
	Type             ssmtypes.ParameterType
	Value            string
	KeyID            string
	AllowedPattern   string
	Description      string
	Version          int64
	LastModifiedDate time.Time
}

// FakeSSMClient is an in-memory parameter store.
type FakeSSMClient struct {
	mu sync.Mutex
	// Parameters maps parameter names to their data
	Parameters map[string]*ParameterData
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// PageSize forces pagination in list operations when > 0
	PageSize int

	// Call records, for asserting on traffic
	PutCalls    []string
	DeleteCalls []string

	// Custom behavior hooks
	GetParameterFunc        func(ctx context.Context, params *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	GetParametersByPathFunc func(ctx context.Context, params *ssm.GetParametersByPathInput) (*ssm.GetParametersByPathOutput, error)
	PutParameterFunc        func(ctx context.Context, params *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)
	DeleteParameterFunc     func(ctx context.Context, params *ssm.DeleteParameterInput) (*ssm.DeleteParameterOutput, error)
}

// NewFakeSSMClient creates an empty fake parameter store.
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]*ParameterData),
		Errors:     make(map[string]error),
	}
}

// AddParameter adds a parameter to the fake store.
func (f *FakeSSMClient) AddParameter(data *ParameterData) {
	if data.Version == 0 {
		data.Version = 1
	}
	if data.LastModifiedDate.IsZero() {
		data.LastModifiedDate = time.Now()
	}
	f.Parameters[data.Name] = data
}

// AddStringParameter adds a String parameter.
func (f *FakeSSMClient) AddStringParameter(name, value string) {
	f.AddParameter(&ParameterData{Name: name, Type: ssmtypes.ParameterTypeString, Value: value})
}

// AddStringListParameter adds a StringList parameter.
func (f *FakeSSMClient) AddStringListParameter(name, value string) {
	f.AddParameter(&ParameterData{Name: name, Type: ssmtypes.ParameterTypeStringList, Value: value})
}

// AddSecureStringParameter adds a SecureString parameter. The fake stores
// the value in the clear and reports it decrypted.
func (f *FakeSSMClient) AddSecureStringParameter(name, value, keyID string) {
	f.AddParameter(&ParameterData{Name: name, Type: ssmtypes.ParameterTypeSecureString, Value: value, KeyID: keyID})
}

// AddError configures an error for a specific parameter name.
func (f *FakeSSMClient) AddError(name string, err error) {
	f.Errors[name] = err
}

func (f *FakeSSMClient) notFound(name string) error {
	return &ssmtypes.ParameterNotFound{
		Message: aws.String(fmt.Sprintf("Parameter %s not found", name)),
	}
}

// GetParameter mimics the GetParameter operation.
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.GetParameterFunc != nil {
		return f.GetParameterFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	data, exists := f.Parameters[name]
	if !exists {
		return nil, f.notFound(name)
	}
	return &ssm.GetParameterOutput{Parameter: f.parameter(data)}, nil
}

func (f *FakeSSMClient) parameter(data *ParameterData) *ssmtypes.Parameter {
	return &ssmtypes.Parameter{
		Name:             aws.String(data.Name),
		Type:             data.Type,
		Value:            aws.String(data.Value),
		Version:          data.Version,
		LastModifiedDate: aws.Time(data.LastModifiedDate),
		ARN:              aws.String("arn:aws:ssm:us-east-1:123456789012:parameter" + data.Name),
	}
}

// sortedNamesUnder returns names under path, recursively, in sorted order.
func (f *FakeSSMClient) sortedNamesUnder(path string) []string {
	var names []string
	prefix := strings.TrimRight(path, "/") + "/"
	for name := range f.Parameters {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// page applies PageSize-based pagination over sorted names. The token is the
// numeric offset, mirroring how the tests never inspect it.
func (f *FakeSSMClient) page(names []string, token *string) ([]string, *string) {
	if f.PageSize <= 0 {
		return names, nil
	}
	start := 0
	if token != nil {
		start, _ = strconv.Atoi(*token)
	}
	if start >= len(names) {
		return nil, nil
	}
	end := start + f.PageSize
	if end >= len(names) {
		return names[start:], nil
	}
	next := strconv.Itoa(end)
	return names[start:end], &next
}

// GetParametersByPath mimics the recursive list operation.
func (f *FakeSSMClient) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	if f.GetParametersByPathFunc != nil {
		return f.GetParametersByPathFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	path := aws.ToString(params.Path)
	if err, exists := f.Errors[path]; exists {
		return nil, err
	}

	names, next := f.page(f.sortedNamesUnder(path), params.NextToken)
	out := &ssm.GetParametersByPathOutput{NextToken: next}
	for _, name := range names {
		out.Parameters = append(out.Parameters, *f.parameter(f.Parameters[name]))
	}
	return out, nil
}

// DescribeParameters mimics the metadata list operation, honoring a Path
// filter with the Recursive option.
func (f *FakeSSMClient) DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string
	path := ""
	for _, filter := range params.ParameterFilters {
		if aws.ToString(filter.Key) == "Path" && len(filter.Values) > 0 {
			path = filter.Values[0]
		}
	}
	if path != "" {
		names = f.sortedNamesUnder(path)
	} else {
		for name := range f.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	names, next := f.page(names, params.NextToken)
	out := &ssm.DescribeParametersOutput{NextToken: next}
	for _, name := range names {
		data := f.Parameters[name]
		meta := ssmtypes.ParameterMetadata{
			Name:             aws.String(data.Name),
			Type:             data.Type,
			Version:          data.Version,
			LastModifiedDate: aws.Time(data.LastModifiedDate),
		}
		if data.KeyID != "" {
			meta.KeyId = aws.String(data.KeyID)
		}
		if data.AllowedPattern != "" {
			meta.AllowedPattern = aws.String(data.AllowedPattern)
		}
		if data.Description != "" {
			meta.Description = aws.String(data.Description)
		}
		out.Parameters = append(out.Parameters, meta)
	}
	return out, nil
}

// PutParameter mimics the write operation, including the already-exists
// conflict when Overwrite is not set.
func (f *FakeSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if f.PutParameterFunc != nil {
		return f.PutParameterFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	f.PutCalls = append(f.PutCalls, name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}

	existing, exists := f.Parameters[name]
	if exists && !aws.ToBool(params.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{
			Message: aws.String(fmt.Sprintf("Parameter %s already exists", name)),
		}
	}

	version := int64(1)
	if exists {
		version = existing.Version + 1
	}
	f.Parameters[name] = &ParameterData{
		Name:             name,
		Type:             params.Type,
		Value:            aws.ToString(params.Value),
		KeyID:            aws.ToString(params.KeyId),
		AllowedPattern:   aws.ToString(params.AllowedPattern),
		Description:      aws.ToString(params.Description),
		Version:          version,
		LastModifiedDate: time.Now(),
	}
	return &ssm.PutParameterOutput{Version: version}, nil
}

// DeleteParameter mimics the delete operation.
func (f *FakeSSMClient) DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error) {
	if f.DeleteParameterFunc != nil {
		return f.DeleteParameterFunc(ctx, params)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	name := aws.ToString(params.Name)
	f.DeleteCalls = append(f.DeleteCalls, name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if _, exists := f.Parameters[name]; !exists {
		return nil, f.notFound(name)
	}
	delete(f.Parameters, name)
	return &ssm.DeleteParameterOutput{}, nil
}
