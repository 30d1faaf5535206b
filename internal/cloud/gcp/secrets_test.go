package gcp

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockSecretFetcher implements SecretFetcher for testing
type mockSecretFetcher struct {
	fetchFunc func(ctx context.Context, secretPath string) (string, error)
	closeFunc func() error
}

func (m *mockSecretFetcher) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, secretPath)
	}
	return "", errors.New("mock fetch not implemented")
}

func (m *mockSecretFetcher) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func TestSecretVersionName(t *testing.T) {
	tests := []struct {
		name       string
		projectID  string
		secretPath string
		want       string
		wantErr    bool
	}{
		{
			name:       "full path with version",
			secretPath: "projects/my-project/secrets/odl-admin/versions/1",
			want:       "projects/my-project/secrets/odl-admin/versions/1",
		},
		{
			name:       "full path without version",
			secretPath: "projects/my-project/secrets/odl-admin",
			want:       "projects/my-project/secrets/odl-admin/versions/latest",
		},
		{
			name:       "secret name with project",
			projectID:  "lab",
			secretPath: "device-password",
			want:       "projects/lab/secrets/device-password/versions/latest",
		},
		{
			name:       "secret name without project",
			secretPath: "device-password",
			wantErr:    true,
		},
		{
			name:       "nested name",
			projectID:  "lab",
			secretPath: "path/to/device-password",
			wantErr:    true,
		},
		{
			name:       "malformed resource name",
			secretPath: "projects/lab/keys/odl-admin",
			wantErr:    true,
		},
		{
			name:       "empty",
			projectID:  "lab",
			secretPath: "",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &SecretManagerClient{projectID: tt.projectID}
			got, err := client.secretVersionName(tt.secretPath)
			if (err != nil) != tt.wantErr {
				t.Fatalf("secretVersionName(%q) error = %v, wantErr %v", tt.secretPath, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("secretVersionName(%q) = %q, want %q", tt.secretPath, got, tt.want)
			}
		})
	}
}

func TestDetectProjectID_Env(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCLOUD_PROJECT", "lab-from-env")
	if got := detectProjectID(); got != "lab-from-env" {
		t.Errorf("detectProjectID() = %q, want lab-from-env", got)
	}

	t.Setenv("GOOGLE_CLOUD_PROJECT", "primary")
	if got := detectProjectID(); got != "primary" {
		t.Errorf("detectProjectID() = %q, want primary", got)
	}
}

func TestResolvePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("inline when no secret configured", func(t *testing.T) {
		got, err := ResolvePassword(ctx, nil, "", "admin")
		if err != nil {
			t.Fatalf("ResolvePassword() unexpected error: %v", err)
		}
		if got != "admin" {
			t.Errorf("ResolvePassword() = %q, want admin", got)
		}
	})

	t.Run("secret overrides inline", func(t *testing.T) {
		mock := &mockSecretFetcher{
			fetchFunc: func(_ context.Context, secretPath string) (string, error) {
				if secretPath != "odl-admin" {
					t.Errorf("FetchSecret called with %q, want odl-admin", secretPath)
				}
				return "s3cr3t\n", nil
			},
		}
		got, err := ResolvePassword(ctx, mock, "odl-admin", "admin")
		if err != nil {
			t.Fatalf("ResolvePassword() unexpected error: %v", err)
		}
		if got != "s3cr3t" {
			t.Errorf("ResolvePassword() = %q, want s3cr3t", got)
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		mock := &mockSecretFetcher{
			fetchFunc: func(context.Context, string) (string, error) {
				return "", errors.New("permission denied")
			},
		}
		_, err := ResolvePassword(ctx, mock, "odl-admin", "admin")
		if err == nil || !strings.Contains(err.Error(), "permission denied") {
			t.Errorf("ResolvePassword() error = %v, want permission denied", err)
		}
	})

	t.Run("secret without fetcher", func(t *testing.T) {
		_, err := ResolvePassword(ctx, nil, "odl-admin", "admin")
		if err == nil {
			t.Error("ResolvePassword() expected error without a fetcher")
		}
	})
}

func TestSecretFetcherInterface(t *testing.T) {
	var _ SecretFetcher = (*SecretManagerClient)(nil)
	var _ SecretFetcher = (*mockSecretFetcher)(nil)
}

func TestSecretManagerClient_Close_Nil(t *testing.T) {
	client := &SecretManagerClient{
		client: nil,
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() with nil client unexpected error: %v", err)
	}
}
