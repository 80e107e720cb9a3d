package storage

import (
	"context"
	"testing"

	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var swiftCreds = map[string]any{
	"domainId": "domain",
	"auth_url": "https://identity.example.com/v3",
	"username": "swift-user",
	"password": "swift-pass",
	"region":   "eu-de",
}

func TestSwiftResolver(t *testing.T) {
	tests := []struct {
		name     string
		services interfaces.CredentialSource
		env      interfaces.EnvironmentOverrides
		runtime  string
		expected interfaces.ResolvedStorageConfig
		warn     bool
	}{
		{
			name:     "default container",
			services: servicesOf(map[string]map[string]any{"Object-Storage": swiftCreds}),
			runtime:  "7.0",
			expected: interfaces.ResolvedStorageConfig{
				"com.mendix.core.StorageService":                "com.mendix.storage.swift",
				"com.mendix.storage.swift.Container":            "mendix",
				"com.mendix.storage.swift.Container.AutoCreate": true,
				"com.mendix.storage.swift.credentials.DomainId": "domain",
				"com.mendix.storage.swift.credentials.Authurl":  "https://identity.example.com/v3",
				"com.mendix.storage.swift.credentials.Username": "swift-user",
				"com.mendix.storage.swift.credentials.Password": "swift-pass",
				"com.mendix.storage.swift.credentials.Region":   "eu-de",
			},
		},
		{
			name:     "container from environment",
			services: servicesOf(map[string]map[string]any{"Object-Storage": swiftCreds}),
			env:      interfaces.EnvironmentOverrides{interfaces.EnvSwiftContainerName: "uploads"},
			runtime:  "6.7",
			expected: interfaces.ResolvedStorageConfig{
				"com.mendix.core.StorageService":                "com.mendix.storage.swift",
				"com.mendix.storage.swift.Container":            "uploads",
				"com.mendix.storage.swift.Container.AutoCreate": true,
				"com.mendix.storage.swift.credentials.DomainId": "domain",
				"com.mendix.storage.swift.credentials.Authurl":  "https://identity.example.com/v3",
				"com.mendix.storage.swift.credentials.Username": "swift-user",
				"com.mendix.storage.swift.credentials.Password": "swift-pass",
				"com.mendix.storage.swift.credentials.Region":   "eu-de",
			},
		},
		{
			name:     "no binding",
			services: interfaces.CredentialSource{},
			runtime:  "9.0",
			expected: interfaces.ResolvedStorageConfig{},
		},
		{
			name:     "runtime too old",
			services: servicesOf(map[string]map[string]any{"Object-Storage": swiftCreds}),
			runtime:  "6.6",
			expected: interfaces.ResolvedStorageConfig{},
			warn:     true,
		},
		{
			name: "incomplete credentials",
			services: servicesOf(map[string]map[string]any{"Object-Storage": {
				"domainId": "domain",
				"auth_url": "https://identity.example.com/v3",
			}}),
			runtime:  "9.0",
			expected: interfaces.ResolvedStorageConfig{},
			warn:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.env
			if env == nil {
				env = interfaces.EnvironmentOverrides{}
			}
			res, err := NewSwiftResolver(testLogger()).Resolve(context.Background(), Request{
				Services: tt.services,
				Env:      env,
				Runtime:  rv(tt.runtime),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Settings())

			if noMatch, ok := res.(NoMatch); ok {
				assert.Equal(t, tt.warn, noMatch.Warn)
			}
		})
	}
}

func TestAzureResolver(t *testing.T) {
	tests := []struct {
		name     string
		services interfaces.CredentialSource
		env      interfaces.EnvironmentOverrides
		runtime  string
		expected interfaces.ResolvedStorageConfig
	}{
		{
			name: "account key binding",
			services: servicesOf(map[string]map[string]any{"azure-storage": {
				"primary_access_key":   "key",
				"storage_account_name": "account",
			}}),
			runtime: "9.0",
			expected: interfaces.ResolvedStorageConfig{
				"com.mendix.core.StorageService":                      "com.mendix.storage.azure",
				"com.mendix.storage.azure.Container":                  "mendix",
				"com.mendix.storage.azure.CreateContainerIfNotExists": false,
				"com.mendix.storage.azure.AccountKey":                 "key",
				"com.mendix.storage.azure.AccountName":                "account",
			},
		},
		{
			name: "newer field names win",
			services: servicesOf(map[string]map[string]any{"azure-storage-premium": {
				"primary_access_key":   "old-key",
				"account_key":          "new-key",
				"storage_account_name": "old-account",
				"account_name":         "new-account",
			}}),
			runtime: "9.0",
			expected: interfaces.ResolvedStorageConfig{
				"com.mendix.core.StorageService":                      "com.mendix.storage.azure",
				"com.mendix.storage.azure.Container":                  "mendix",
				"com.mendix.storage.azure.CreateContainerIfNotExists": false,
				"com.mendix.storage.azure.AccountKey":                 "new-key",
				"com.mendix.storage.azure.AccountName":                "new-account",
			},
		},
		{
			name: "shared access signature",
			services: servicesOf(map[string]map[string]any{"azure-storage": {
				"sas_token":      "?sv=2020&sig=abc",
				"container_uri":  "https://account.blob.core.windows.net",
				"container_name": "binding-container",
			}}),
			env:     interfaces.EnvironmentOverrides{interfaces.EnvAzureContainerName: "env-container"},
			runtime: "8.0",
			expected: interfaces.ResolvedStorageConfig{
				"com.mendix.core.StorageService":                      "com.mendix.storage.azure",
				"com.mendix.storage.azure.Container":                  "binding-container",
				"com.mendix.storage.azure.CreateContainerIfNotExists": false,
				"com.mendix.storage.azure.SharedAccessSignature":      "?sv=2020&sig=abc",
				"com.mendix.storage.azure.BlobEndpoint":               "https://account.blob.core.windows.net",
			},
		},
		{
			name:     "container from environment",
			services: servicesOf(map[string]map[string]any{"azure-storage": {"account_key": "k", "account_name": "n"}}),
			env:      interfaces.EnvironmentOverrides{interfaces.EnvAzureContainerName: "env-container"},
			runtime:  "9.0",
			expected: interfaces.ResolvedStorageConfig{
				"com.mendix.core.StorageService":                      "com.mendix.storage.azure",
				"com.mendix.storage.azure.Container":                  "env-container",
				"com.mendix.storage.azure.CreateContainerIfNotExists": false,
				"com.mendix.storage.azure.AccountKey":                 "k",
				"com.mendix.storage.azure.AccountName":                "n",
			},
		},
		{
			name:     "generic binding selected",
			services: servicesOf(map[string]map[string]any{"objectstore": {"account_key": "k", "account_name": "n"}}),
			env:      interfaces.EnvironmentOverrides{interfaces.EnvBlobstoreType: "azure"},
			runtime:  "9.0",
			expected: interfaces.ResolvedStorageConfig{
				"com.mendix.core.StorageService":                      "com.mendix.storage.azure",
				"com.mendix.storage.azure.Container":                  "mendix",
				"com.mendix.storage.azure.CreateContainerIfNotExists": false,
				"com.mendix.storage.azure.AccountKey":                 "k",
				"com.mendix.storage.azure.AccountName":                "n",
			},
		},
		{
			name:     "generic binding without selector",
			services: servicesOf(map[string]map[string]any{"objectstore": {"account_key": "k", "account_name": "n"}}),
			runtime:  "9.0",
			expected: interfaces.ResolvedStorageConfig{},
		},
		{
			name:     "runtime too old",
			services: servicesOf(map[string]map[string]any{"azure-storage": {"account_key": "k", "account_name": "n"}}),
			runtime:  "6.6.9",
			expected: interfaces.ResolvedStorageConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.env
			if env == nil {
				env = interfaces.EnvironmentOverrides{}
			}
			res, err := NewAzureResolver(testLogger()).Resolve(context.Background(), Request{
				Services: tt.services,
				Env:      env,
				Runtime:  rv(tt.runtime),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Settings())
		})
	}
}

func TestBindingSelector(t *testing.T) {
	s3 := bindingSelector{prefix: S3ServicePrefix, blobstoreType: BlobstoreTypeS3, genericWhenUnset: true}
	binding := map[string]any{"bucket": "b"}

	tests := []struct {
		name     string
		services []string
		selector *string
		key      string
		found    bool
		err      error
	}{
		{name: "none", services: nil},
		{name: "provider specific", services: []string{"amazon-s3"}, key: "amazon-s3", found: true},
		{name: "generic without selector", services: []string{"objectstore"}, key: "objectstore", found: true},
		{name: "generic for other provider", services: []string{"objectstore"}, selector: ptr("azure")},
		{name: "two provider specific", services: []string{"amazon-s3", "amazon-s3-dev"}, err: interfaces.ErrAmbiguousConfiguration},
		{name: "specific and generic", services: []string{"amazon-s3", "objectstore"}, err: interfaces.ErrAmbiguousConfiguration},
		{name: "selector prefers generic", services: []string{"amazon-s3", "objectstore"}, selector: ptr("s3"), key: "objectstore", found: true},
		{name: "selector for other provider keeps specific", services: []string{"amazon-s3", "objectstore"}, selector: ptr("azure"), key: "amazon-s3", found: true},
		{name: "unrelated keys", services: []string{"Object-Storage", "p-riakcs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := map[string]map[string]any{}
			for _, key := range tt.services {
				entries[key] = binding
			}
			env := interfaces.EnvironmentOverrides{}
			if tt.selector != nil {
				env[interfaces.EnvBlobstoreType] = *tt.selector
			}

			selected, found, err := s3.selectBinding(servicesOf(entries), env)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.key, selected.Key)
		})
	}
}

func ptr(s string) *string {
	return &s
}
