package fakes

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/zalando/go-keyring"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FakeSecretsManagerClient serves AWS Secrets Manager values from memory.
type FakeSecretsManagerClient struct {
	// Strings and Binaries map secret IDs to their values.
	Strings  map[string]string
	Binaries map[string][]byte
	// Errors maps secret IDs to errors to return
	Errors map[string]error

	Requested []string
}

// NewFakeSecretsManagerClient creates an empty client.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Strings:  map[string]string{},
		Binaries: map[string][]byte{},
		Errors:   map[string]error{},
	}
}

// GetSecretValue returns the stored value or a ResourceNotFoundException.
func (f *FakeSecretsManagerClient) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(params.SecretId)
	f.Requested = append(f.Requested, id)

	if err, ok := f.Errors[id]; ok {
		return nil, err
	}
	if v, ok := f.Strings[id]; ok {
		return &secretsmanager.GetSecretValueOutput{Name: params.SecretId, SecretString: aws.String(v)}, nil
	}
	if v, ok := f.Binaries[id]; ok {
		return &secretsmanager.GetSecretValueOutput{Name: params.SecretId, SecretBinary: append([]byte(nil), v...)}, nil
	}
	return nil, &smtypes.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", id)),
	}
}

// FakeSSMClient serves SSM parameters from memory.
type FakeSSMClient struct {
	Parameters map[string]string
	Errors     map[string]error

	// Decrypted records whether each request asked for decryption.
	Decrypted []bool
}

// NewFakeSSMClient creates an empty client.
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{Parameters: map[string]string{}, Errors: map[string]error{}}
}

// GetParameter returns the stored value or a ParameterNotFound error.
func (f *FakeSSMClient) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	name := aws.ToString(params.Name)
	f.Decrypted = append(f.Decrypted, aws.ToBool(params.WithDecryption))

	if err, ok := f.Errors[name]; ok {
		return nil, err
	}
	v, ok := f.Parameters[name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("parameter " + name + " not found")}
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Name: params.Name, Value: aws.String(v), Type: ssmtypes.ParameterTypeSecureString},
	}, nil
}

// FakeGCPSecretManagerClient serves secret versions by full resource name.
type FakeGCPSecretManagerClient struct {
	Versions map[string][]byte
	Errors   map[string]error

	Requested []string
}

// NewFakeGCPSecretManagerClient creates an empty client.
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{Versions: map[string][]byte{}, Errors: map[string]error{}}
}

// AddSecretString stores value as projects/<project>/secrets/<secret>/versions/<version>.
func (f *FakeGCPSecretManagerClient) AddSecretString(project, secret, version, value string) {
	f.Versions[fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, secret, version)] = []byte(value)
}

// AccessSecretVersion returns the payload or a gRPC NotFound status.
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.Requested = append(f.Requested, req.GetName())

	if err, ok := f.Errors[req.GetName()]; ok {
		return nil, err
	}
	data, ok := f.Versions[req.GetName()]
	if !ok {
		return nil, GCPNotFoundError(req.GetName())
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: append([]byte(nil), data...)},
	}, nil
}

// GCPNotFoundError creates a gRPC not found error.
func GCPNotFoundError(resourceName string) error {
	return status.Errorf(codes.NotFound, "Resource %s not found", resourceName)
}

// GCPPermissionDeniedError creates a gRPC permission denied error.
func GCPPermissionDeniedError(message string) error {
	return status.Error(codes.PermissionDenied, message)
}

// FakeAzureKeyVaultClient serves Key Vault secrets from memory. Keys are
// "name" for the current version and "name/version" for a pinned one.
type FakeAzureKeyVaultClient struct {
	Secrets map[string]string
	Errors  map[string]error

	// VaultURL is set by the factory that created the client.
	VaultURL string
}

// NewFakeAzureKeyVaultClient creates an empty client.
func NewFakeAzureKeyVaultClient() *FakeAzureKeyVaultClient {
	return &FakeAzureKeyVaultClient{Secrets: map[string]string{}, Errors: map[string]error{}}
}

// GetSecret returns the stored value or a 404 ResponseError.
func (f *FakeAzureKeyVaultClient) GetSecret(_ context.Context, name string, version string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	key := name
	if version != "" {
		key = name + "/" + version
	}
	if err, ok := f.Errors[key]; ok {
		return azsecrets.GetSecretResponse{}, err
	}
	v, ok := f.Secrets[key]
	if !ok {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError()
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: to.Ptr(v)}}, nil
}

// AzureNotFoundError creates an Azure not found error.
func AzureNotFoundError() error {
	return &azcore.ResponseError{StatusCode: 404, ErrorCode: "SecretNotFound"}
}

// AzureForbiddenError creates an Azure forbidden error.
func AzureForbiddenError() error {
	return &azcore.ResponseError{StatusCode: 403, ErrorCode: "Forbidden"}
}

// FakeKeyring is an in-memory keyring keyed by service and account.
type FakeKeyring struct {
	mu      sync.Mutex
	Entries map[string]string
	SetErr  error
}

// NewFakeKeyring creates an empty keyring.
func NewFakeKeyring() *FakeKeyring {
	return &FakeKeyring{Entries: map[string]string{}}
}

func (k *FakeKeyring) Get(service, account string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.Entries[service+"/"+account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (k *FakeKeyring) Set(service, account, secret string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.SetErr != nil {
		return k.SetErr
	}
	k.Entries[service+"/"+account] = secret
	return nil
}
