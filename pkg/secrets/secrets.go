// Package secrets resolves config values held in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bookgate/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Fetcher returns the payload of a secret
type Fetcher interface {
	FetchSecret(ctx context.Context, region, endpoint, secretID string) (string, error)
}

var _ Fetcher = (*AWSSecretsManagerFetcher)(nil)

// AWSSecretsManagerFetcher retrieves secret payloads and caches clients per region/endpoint
type AWSSecretsManagerFetcher struct {
	mu      sync.Mutex
	clients map[string]*secretsmanager.Client
}

func NewAWSSecretsManagerFetcher() *AWSSecretsManagerFetcher {
	return &AWSSecretsManagerFetcher{
		clients: make(map[string]*secretsmanager.Client),
	}
}

func (f *AWSSecretsManagerFetcher) FetchSecret(ctx context.Context, region, endpoint, secretID string) (string, error) {
	if secretID == "" {
		return "", fmt.Errorf("secret id is required")
	}
	if region == "" {
		return "", fmt.Errorf("region is required to read secret %s", secretID)
	}

	client, err := f.getClient(ctx, region, endpoint)
	if err != nil {
		return "", err
	}

	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", secretID, err)
	}

	if output.SecretString != nil {
		return *output.SecretString, nil
	}
	if len(output.SecretBinary) > 0 {
		return string(output.SecretBinary), nil
	}

	return "", fmt.Errorf("secret %s did not return string or binary payload", secretID)
}

func (f *AWSSecretsManagerFetcher) getClient(ctx context.Context, region, endpoint string) (*secretsmanager.Client, error) {
	key := region + "|" + endpoint

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[key]; ok {
		return client, nil
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration for region %s: %w", region, err)
	}

	client := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	f.clients[key] = client
	return client, nil
}

// Resolve fetches ref and extracts ref.Field from a JSON payload. An empty
// Field returns the payload as is.
func Resolve(ctx context.Context, fetcher Fetcher, ref config.SecretRef) (string, error) {
	payload, err := fetcher.FetchSecret(ctx, ref.Region, ref.Endpoint, ref.ID)
	if err != nil {
		return "", err
	}
	return extractFieldFromJSON(payload, ref.Field)
}

// ApplyDatabasePassword replaces db.Password with the referenced secret.
// It is a no-op when no secret is configured.
func ApplyDatabasePassword(ctx context.Context, fetcher Fetcher, db *config.DatabaseConfig) error {
	if db.PasswordSecret.ID == "" {
		return nil
	}
	password, err := Resolve(ctx, fetcher, db.PasswordSecret)
	if err != nil {
		return fmt.Errorf("database password: %w", err)
	}
	db.Password = password
	return nil
}

func extractFieldFromJSON(payload, field string) (string, error) {
	if field == "" {
		return payload, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	value, ok := parsed[field]
	if !ok {
		return "", fmt.Errorf("secret JSON does not contain field %q", field)
	}

	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret field %q is not a string value", field)
	}

	return strValue, nil
}
