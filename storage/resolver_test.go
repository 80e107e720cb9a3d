package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/ruteri/blobstore-resolver/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSink implements interfaces.SettingsSink for testing
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Upsert(ctx context.Context, cfg interfaces.ResolvedStorageConfig, policy interfaces.MergePolicy) error {
	args := m.Called(ctx, cfg, policy)
	return args.Error(0)
}

// stubResolver returns a fixed result and counts calls.
type stubResolver struct {
	name   string
	result Resolution
	err    error
	calls  int
}

func (s *stubResolver) Name() string { return s.name }

func (s *stubResolver) Resolve(context.Context, Request) (Resolution, error) {
	s.calls++
	return s.result, s.err
}

func allProviders() interfaces.CredentialSource {
	return servicesOf(map[string]map[string]any{
		"amazon-s3":      {"bucket": "b", "access_key_id": "a", "secret_access_key": "s"},
		"Object-Storage": swiftCreds,
		"azure-storage":  {"account_key": "k", "account_name": "n"},
	})
}

func TestResolver_EmptySource(t *testing.T) {
	resolver := NewResolver(ResolverConfig{Log: testLogger()})

	outcome, err := resolver.Resolve(context.Background(), Request{
		Services: interfaces.CredentialSource{},
		Env:      interfaces.EnvironmentOverrides{},
		Runtime:  rv("9.24"),
	})
	require.NoError(t, err)
	assert.Empty(t, outcome.Config)
	assert.False(t, outcome.Configured())
	assert.Equal(t, []string{NotConfiguredWarning}, outcome.Warnings)
}

func TestResolver_FirstMatchWins(t *testing.T) {
	tests := []struct {
		name     string
		services interfaces.CredentialSource
		env      interfaces.EnvironmentOverrides
		runtime  string
		provider string
	}{
		{
			name:     "all bound",
			services: allProviders(),
			runtime:  "9.24",
			provider: S3Service,
		},
		{
			name: "swift and azure bound",
			services: servicesOf(map[string]map[string]any{
				"Object-Storage": swiftCreds,
				"azure-storage":  {"account_key": "k", "account_name": "n"},
			}),
			runtime:  "9.24",
			provider: SwiftService,
		},
		{
			name:     "azure only",
			services: servicesOf(map[string]map[string]any{"azure-storage": {"account_key": "k", "account_name": "n"}}),
			runtime:  "9.24",
			provider: AzureService,
		},
		{
			name:     "s3 from environment beats bindings",
			services: servicesOf(map[string]map[string]any{"Object-Storage": swiftCreds}),
			env: interfaces.EnvironmentOverrides{
				interfaces.EnvS3BucketName:      "b",
				interfaces.EnvS3AccessKeyID:     "a",
				interfaces.EnvS3SecretAccessKey: "s",
			},
			runtime:  "9.24",
			provider: S3Service,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := tt.env
			if env == nil {
				env = interfaces.EnvironmentOverrides{}
			}
			outcome, err := NewResolver(ResolverConfig{Log: testLogger()}).Resolve(context.Background(), Request{
				Services: tt.services,
				Env:      env,
				Runtime:  rv(tt.runtime),
			})
			require.NoError(t, err)
			assert.True(t, outcome.Configured())
			assert.Equal(t, tt.provider, outcome.Config.Provider())

			// exactly one provider namespace is populated
			namespaces := outcome.Config.Namespaces()
			require.Len(t, namespaces, 1)
			assert.Equal(t, tt.provider, "com.mendix.storage."+namespaces[0])
		})
	}
}

func TestResolver_OldRuntimeWarnings(t *testing.T) {
	outcome, err := NewResolver(ResolverConfig{Log: testLogger()}).Resolve(context.Background(), Request{
		Services: servicesOf(map[string]map[string]any{
			"Object-Storage": swiftCreds,
			"azure-storage":  {"account_key": "k", "account_name": "n"},
		}),
		Env:     interfaces.EnvironmentOverrides{},
		Runtime: rv("6.5"),
	})
	require.NoError(t, err)
	assert.False(t, outcome.Configured())
	assert.Empty(t, outcome.Config)
	require.Len(t, outcome.Warnings, 3)
	assert.Contains(t, outcome.Warnings[0], "Object Storage requires runtime 6.7")
	assert.Contains(t, outcome.Warnings[1], "Azure Storage requires runtime 6.7")
	assert.Equal(t, NotConfiguredWarning, outcome.Warnings[2])
}

func TestResolver_ExchangeFailureAborts(t *testing.T) {
	exchanger := new(MockExchanger)
	exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(interfaces.AccessKeyPair{}, errors.Join(interfaces.ErrExchange, errors.New("503")))

	services := allProviders()
	services["amazon-s3"] = []interfaces.ServiceBinding{{Name: "tvm", Credentials: tvmCreds}}

	outcome, err := NewResolver(ResolverConfig{Exchanger: exchanger, Log: testLogger()}).Resolve(context.Background(), Request{
		Services: services,
		Env:      interfaces.EnvironmentOverrides{},
		Runtime:  rv("8.0"),
	})
	assert.ErrorIs(t, err, interfaces.ErrExchange)
	assert.Empty(t, outcome.Config)
	exchanger.AssertNumberOfCalls(t, "Exchange", 1)
}

func TestResolver_AmbiguousBindings(t *testing.T) {
	_, err := NewResolver(ResolverConfig{Log: testLogger()}).Resolve(context.Background(), Request{
		Services: servicesOf(map[string]map[string]any{
			"amazon-s3":   {"bucket": "a"},
			"objectstore": {"bucket": "b"},
		}),
		Env:     interfaces.EnvironmentOverrides{},
		Runtime: rv("9.24"),
	})
	assert.ErrorIs(t, err, interfaces.ErrAmbiguousConfiguration)
}

func TestResolver_StopsAtFirstMatch(t *testing.T) {
	first := &stubResolver{name: "first", result: NoMatch{Provider: "first"}}
	second := &stubResolver{name: "second", result: AzureContainer{Container: "c"}}
	third := &stubResolver{name: "third", result: SwiftContainer{Container: "c"}}

	m := metrics.NewMetrics("test")
	outcome, err := NewResolverWith(testLogger(), m, first, second, third).Resolve(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, AzureService, outcome.Config.Provider())
	assert.Empty(t, outcome.Warnings)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP test_resolutions_total Completed resolutions by selected storage provider.
# TYPE test_resolutions_total counter
test_resolutions_total{provider="com.mendix.storage.azure"} 1
`), "test_resolutions_total"))
}

func TestResolver_ErrorCounted(t *testing.T) {
	failing := &stubResolver{name: "failing", err: errors.New("boom")}
	next := &stubResolver{name: "next", result: AzureContainer{}}

	m := metrics.NewMetrics("test")
	_, err := NewResolverWith(testLogger(), m, failing, next).Resolve(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve failing: boom")
	assert.Equal(t, 0, next.calls)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP test_resolution_errors_total Resolutions aborted by an error.
# TYPE test_resolution_errors_total counter
test_resolution_errors_total 1
`), "test_resolution_errors_total"))
}

func TestResolver_Update(t *testing.T) {
	req := Request{
		Services: allProviders(),
		Env:      interfaces.EnvironmentOverrides{},
		Runtime:  rv("9.24"),
	}
	resolver := NewResolver(ResolverConfig{Log: testLogger()})

	t.Run("merges with default policy", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Upsert", mock.Anything, mock.MatchedBy(func(cfg interfaces.ResolvedStorageConfig) bool {
			return cfg.Provider() == S3Service
		}), interfaces.DefaultMergePolicy).Return(nil).Once()

		outcome, err := resolver.Update(context.Background(), sink, req)
		require.NoError(t, err)
		assert.True(t, outcome.Configured())
		sink.AssertExpectations(t)
	})

	t.Run("sink failure", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("read-only")).Once()

		_, err := resolver.Update(context.Background(), sink, req)
		assert.ErrorContains(t, err, "read-only")
	})

	t.Run("resolution failure skips sink", func(t *testing.T) {
		sink := new(MockSink)
		_, err := resolver.Update(context.Background(), sink, Request{
			Services: servicesOf(map[string]map[string]any{"amazon-s3": tvmCreds}),
			Env:      interfaces.EnvironmentOverrides{},
			Runtime:  rv("8.0"),
		})
		assert.ErrorIs(t, err, interfaces.ErrExchange)
		sink.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRedact(t *testing.T) {
	cfg := DirectCredentials{
		S3Options:       S3Options{Bucket: "b", EncryptionKeys: []any{"k"}},
		AccessKeyID:     "AKIA",
		SecretAccessKey: "secret",
	}.Settings()

	redacted := Redact(cfg)
	assert.Equal(t, "***", redacted["com.mendix.storage.s3.SecretAccessKey"])
	assert.Equal(t, "***", redacted["com.mendix.storage.s3.EncryptionKeys"])
	assert.Equal(t, "AKIA", redacted["com.mendix.storage.s3.AccessKeyId"])
	assert.Equal(t, "b", redacted["com.mendix.storage.s3.BucketName"])

	// input is untouched
	assert.Equal(t, "secret", cfg["com.mendix.storage.s3.SecretAccessKey"])
}
