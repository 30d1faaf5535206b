package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretAccessTimeout bounds a single secret lookup.
const SecretAccessTimeout = 10 * time.Second

// SecretFetcher defines the interface for fetching secrets
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// SecretManagerClient resolves lifecycle server and device passwords from
// Secret Manager so they need not be kept in the config file.
type SecretManagerClient struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerClient creates a Secret Manager client. Bare secret names
// are resolved in projectID; when it is empty the project is taken from the
// environment or, on GCP, from the metadata server.
func NewSecretManagerClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	if projectID == "" {
		projectID = detectProjectID()
	}

	return &SecretManagerClient{
		client:    client,
		projectID: projectID,
	}, nil
}

// detectProjectID returns the ambient project, or "" when none is known.
func detectProjectID() string {
	for _, env := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT"} {
		if id := os.Getenv(env); id != "" {
			return id
		}
	}
	if !metadata.OnGCE() {
		return ""
	}
	id, err := metadata.ProjectID()
	if err != nil {
		return ""
	}
	return id
}

// FetchSecret retrieves a secret value. secretPath is either a full resource
// name (projects/P/secrets/S[/versions/V]) or a bare secret name, which reads
// the latest version in the client's project.
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	name, err := c.secretVersionName(secretPath)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, SecretAccessTimeout)
	defer cancel()

	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access %s: %w", name, err)
	}
	return string(result.GetPayload().GetData()), nil
}

func (c *SecretManagerClient) secretVersionName(secretPath string) (string, error) {
	secretPath = strings.Trim(secretPath, "/")
	if secretPath == "" {
		return "", fmt.Errorf("empty secret path")
	}

	if strings.HasPrefix(secretPath, "projects/") {
		parts := strings.Split(secretPath, "/")
		switch {
		case len(parts) == 4 && parts[2] == "secrets":
			return secretPath + "/versions/latest", nil
		case len(parts) == 6 && parts[2] == "secrets" && parts[4] == "versions":
			return secretPath, nil
		default:
			return "", fmt.Errorf("malformed secret resource name %q", secretPath)
		}
	}

	if strings.Contains(secretPath, "/") {
		return "", fmt.Errorf("secret name %q must not contain '/'", secretPath)
	}
	if c.projectID == "" {
		return "", fmt.Errorf("secret %q needs a project: set logging.cloud_project or GOOGLE_CLOUD_PROJECT, or use a full resource name", secretPath)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, secretPath), nil
}

// Close closes the Secret Manager client
func (c *SecretManagerClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ResolvePassword returns the secret at secretPath when one is configured,
// otherwise the inline password. Surrounding whitespace in the secret is dropped.
func ResolvePassword(ctx context.Context, fetcher SecretFetcher, secretPath, inline string) (string, error) {
	if secretPath == "" {
		return inline, nil
	}
	if fetcher == nil {
		return "", fmt.Errorf("secret %s configured but Secret Manager is unavailable", secretPath)
	}
	value, err := fetcher.FetchSecret(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", secretPath, err)
	}
	return strings.TrimSpace(value), nil
}
