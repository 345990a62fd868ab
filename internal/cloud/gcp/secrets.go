package gcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// SecretFetcher reads a secret payload.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) ([]byte, error)
	Close() error
}

// secretAccessor is the subset of the Secret Manager client used here.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// SecretManagerClient reads secrets from Secret Manager.
type SecretManagerClient struct {
	client    secretAccessor
	projectID string
}

// NewSecretManagerClient creates a client. project may be empty, in which case
// it is taken from the environment or the metadata server.
func NewSecretManagerClient(ctx context.Context, project string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	if project == "" {
		var err error
		project, err = projectID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get project ID: %w", err)
		}
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretManagerClient{client: client, projectID: project}, nil
}

func projectID(ctx context.Context) (string, error) {
	for _, name := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if p := os.Getenv(name); p != "" {
			return p, nil
		}
	}
	return projectIDFromMetadata(ctx)
}

func projectIDFromMetadata(ctx context.Context) (string, error) {
	const metadataURL = "http://metadata.google.internal/computeMetadata/v1/project/project-id"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := (&http.Client{Timeout: 2 * time.Second}).Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch project ID from metadata server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata response: %w", err)
	}
	p := strings.TrimSpace(string(body))
	if p == "" {
		return "", fmt.Errorf("empty project ID from metadata server")
	}
	return p, nil
}

// FetchSecret returns the payload of secretPath, which is one of
// projects/P/secrets/S/versions/V, projects/P/secrets/S (latest) or S.
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: c.normalizeSecretPath(secretPath),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret version: %w", err)
	}
	if result.GetPayload() == nil {
		return nil, fmt.Errorf("secret %s has no payload", secretPath)
	}
	return result.GetPayload().GetData(), nil
}

func (c *SecretManagerClient) normalizeSecretPath(secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, path.Base(secretPath))
}

func (c *SecretManagerClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

var _ SecretFetcher = (*SecretManagerClient)(nil)
