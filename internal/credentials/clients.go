package credentials

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/zalando/go-keyring"
)

// SecretsManagerAPI is the subset of the AWS Secrets Manager client used
// for lookups.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SSMAPI is the subset of the AWS SSM client used for lookups.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// GCPSecretAccessor reads Google Secret Manager versions.
type GCPSecretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// AzureKeyVaultAPI is the subset of the azsecrets client used for lookups.
type AzureKeyVaultAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Keyring reads and writes the OS keyring.
type Keyring interface {
	Get(service, account string) (string, error)
	Set(service, account, secret string) error
}

// Clients creates the backend clients on first use. Any nil field falls
// back to the real SDK client.
type Clients struct {
	SecretsManager func(ctx context.Context) (SecretsManagerAPI, error)
	SSM            func(ctx context.Context) (SSMAPI, error)
	GCP            func(ctx context.Context) (GCPSecretAccessor, func(), error)
	Azure          func(vaultURL string) (AzureKeyVaultAPI, error)
	Keyring        Keyring
}

func (c Clients) withDefaults() Clients {
	if c.SecretsManager == nil {
		c.SecretsManager = func(ctx context.Context) (SecretsManagerAPI, error) {
			cfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load AWS config: %w", err)
			}
			return secretsmanager.NewFromConfig(cfg), nil
		}
	}
	if c.SSM == nil {
		c.SSM = func(ctx context.Context) (SSMAPI, error) {
			cfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load AWS config: %w", err)
			}
			return ssm.NewFromConfig(cfg), nil
		}
	}
	if c.GCP == nil {
		c.GCP = func(ctx context.Context) (GCPSecretAccessor, func(), error) {
			client, err := secretmanager.NewClient(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
			}
			return gcpClient{client}, func() { _ = client.Close() }, nil
		}
	}
	if c.Azure == nil {
		c.Azure = func(vaultURL string) (AzureKeyVaultAPI, error) {
			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create Azure credential: %w", err)
			}
			client, err := azsecrets.NewClient(vaultURL, cred, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
			}
			return client, nil
		}
	}
	if c.Keyring == nil {
		c.Keyring = osKeyring{}
	}
	return c
}

type gcpClient struct {
	c *secretmanager.Client
}

func (g gcpClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return g.c.AccessSecretVersion(ctx, req)
}

type osKeyring struct{}

func (osKeyring) Get(service, account string) (string, error) {
	return keyring.Get(service, account)
}

func (osKeyring) Set(service, account, secret string) error {
	return keyring.Set(service, account, secret)
}
