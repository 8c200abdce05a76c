package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/zalando/go-keyring"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pacerterrors "github.com/systmms/pacert/internal/errors"
	"github.com/systmms/pacert/internal/logging"
	"github.com/systmms/pacert/internal/secure"
)

// ErrNotFound is returned when a source has no value at the location.
var ErrNotFound = errors.New("credential not found")

// markNotFound adds ErrNotFound to the chain of SDK errors that mean the
// secret does not exist, so callers can tell "missing" from "denied".
func markNotFound(err error) error {
	var (
		smMissing  *smtypes.ResourceNotFoundException
		ssmMissing *ssmtypes.ParameterNotFound
		azResp     *azcore.ResponseError
	)
	switch {
	case errors.As(err, &smMissing), errors.As(err, &ssmMissing):
	case errors.As(err, &azResp) && azResp.StatusCode == 404:
	case status.Code(err) == codes.NotFound:
	default:
		return err
	}
	return fmt.Errorf("%w: %w", err, ErrNotFound)
}

// Resolver turns references into secure buffers.
type Resolver struct {
	clients Clients
	log     *logging.Logger
	lookup  func(string) (string, bool)
}

// NewResolver creates a resolver. Zero-valued Clients fields use the real
// SDKs with their default credential chains.
func NewResolver(clients Clients, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.New(false, true)
	}
	return &Resolver{clients: clients.withDefaults(), log: log, lookup: os.LookupEnv}
}

// Resolve reads the value ref points to.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*secure.SecureBuffer, error) {
	parsed, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}

	r.log.Debug("Resolving credential from %s", parsed)
	value, err := r.fetch(ctx, parsed)
	if err != nil {
		return nil, pacerterrors.CredentialError(string(parsed.Scheme), err)
	}
	if parsed.Field != "" {
		value, err = extractField(value, parsed.Field)
		if err != nil {
			return nil, pacerterrors.CredentialError(string(parsed.Scheme), err)
		}
	}
	if len(value) == 0 {
		return nil, pacerterrors.CredentialError(string(parsed.Scheme), fmt.Errorf("%s is empty", parsed))
	}
	return secure.NewSecureBuffer(value)
}

func (r *Resolver) fetch(ctx context.Context, ref Reference) ([]byte, error) {
	switch ref.Scheme {
	case SchemeLiteral:
		return []byte(ref.Path), nil
	case SchemeEnv:
		v, ok := r.lookup(ref.Path)
		if !ok {
			return nil, fmt.Errorf("environment variable %s is not set: %w", ref.Path, ErrNotFound)
		}
		return []byte(v), nil
	case SchemeFile:
		return readFile(ref.Path)
	case SchemeKeyring:
		return r.fromKeyring(ref.Path)
	case SchemeAWSSM:
		return r.fromSecretsManager(ctx, ref.Path)
	case SchemeAWSSSM:
		return r.fromSSM(ctx, ref.Path)
	case SchemeGCPSM:
		return r.fromGCP(ctx, ref.Path)
	case SchemeAzureKV:
		return r.fromAzure(ctx, ref.Path)
	default:
		return nil, fmt.Errorf("unsupported credential scheme %q", ref.Scheme)
	}
}

func readFile(path string) ([]byte, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = home + path[1:]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	return []byte(strings.TrimRight(string(data), "\r\n")), nil
}

func (r *Resolver) fromKeyring(path string) ([]byte, error) {
	service, account := keyringLocation(path)
	v, err := r.clients.Keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("no keyring entry for %s/%s: %w", service, account, ErrNotFound)
		}
		return nil, fmt.Errorf("keyring lookup failed: %w", err)
	}
	return []byte(v), nil
}

func (r *Resolver) fromSecretsManager(ctx context.Context, id string) ([]byte, error) {
	client, err := r.clients.SecretsManager(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", id, markNotFound(err))
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	return out.SecretBinary, nil
}

func (r *Resolver) fromSSM(ctx context.Context, name string) ([]byte, error) {
	client, err := r.clients.SSM(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter %s: %w", name, markNotFound(err))
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter %s has no value: %w", name, ErrNotFound)
	}
	return []byte(*out.Parameter.Value), nil
}

func (r *Resolver) fromGCP(ctx context.Context, path string) ([]byte, error) {
	name, err := gcpSecretVersionName(path)
	if err != nil {
		return nil, err
	}
	client, closeFn, err := r.clients.GCP(ctx)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		defer closeFn()
	}
	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", name, markNotFound(err))
	}
	if resp.GetPayload() == nil {
		return nil, fmt.Errorf("%s has no payload: %w", name, ErrNotFound)
	}
	return resp.GetPayload().GetData(), nil
}

func (r *Resolver) fromAzure(ctx context.Context, path string) ([]byte, error) {
	vaultURL, secret, version, err := azureLocation(path)
	if err != nil {
		return nil, err
	}
	client, err := r.clients.Azure(vaultURL)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetSecret(ctx, secret, version, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s from %s: %w", secret, vaultURL, markNotFound(err))
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("secret %s has no value: %w", secret, ErrNotFound)
	}
	return []byte(*resp.Value), nil
}

// extractField reads a top-level string field from a JSON object.
func extractField(value []byte, field string) ([]byte, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(value, &obj); err != nil {
		return nil, fmt.Errorf("value is not a JSON object, cannot select field %q", field)
	}
	v, ok := obj[field]
	if !ok {
		return nil, fmt.Errorf("field %q: %w", field, ErrNotFound)
	}
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// StoreAPIKey saves key in the OS keyring under account and returns the
// reference that reads it back.
func (r *Resolver) StoreAPIKey(account string, key *secure.SecureBuffer) (string, error) {
	if account == "" {
		return "", fmt.Errorf("keyring account is required")
	}
	if key.IsEmpty() {
		return "", fmt.Errorf("API key is empty")
	}
	err := key.Use(func(b []byte) error {
		return r.clients.Keyring.Set(DefaultKeyringService, account, string(b))
	})
	if err != nil {
		return "", pacerterrors.CredentialError(string(SchemeKeyring), err)
	}
	return fmt.Sprintf("%s:%s/%s", SchemeKeyring, DefaultKeyringService, account), nil
}
