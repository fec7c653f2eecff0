package auth

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

// SecretNames are the Secret Manager secret IDs holding the OAuth client.
type SecretNames struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// secretAccessor is the subset of the Secret Manager client used here.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// SecretLoader loads secrets from Google Secret Manager.
type SecretLoader struct {
	client    secretAccessor
	projectID string
}

// NewSecretLoader creates a new SecretLoader.
func NewSecretLoader(ctx context.Context, projectID string) (*SecretLoader, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	return &SecretLoader{
		client:    client,
		projectID: projectID,
	}, nil
}

// Close closes the secret manager client.
func (l *SecretLoader) Close() error {
	return l.client.Close()
}

// GetSecret retrieves the latest version of a secret.
func (l *SecretLoader) GetSecret(ctx context.Context, secretID string) (string, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", l.projectID, secretID),
	}

	result, err := l.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretID, err)
	}

	return string(result.GetPayload().GetData()), nil
}

// LoadOAuthConfig fills the OAuth client from Secret Manager. Secrets left
// unnamed keep the value already in base.
func (l *SecretLoader) LoadOAuthConfig(ctx context.Context, names SecretNames, base OAuthConfig) (*OAuthConfig, error) {
	fields := []struct {
		secret string
		target *string
	}{
		{names.ClientID, &base.ClientID},
		{names.ClientSecret, &base.ClientSecret},
		{names.RedirectURI, &base.RedirectURI},
	}

	for _, f := range fields {
		if f.secret == "" {
			continue
		}
		value, err := l.GetSecret(ctx, f.secret)
		if err != nil {
			return nil, err
		}
		*f.target = value
	}

	if len(base.Scopes) == 0 {
		base.Scopes = DefaultScopes
	}
	return &base, nil
}
