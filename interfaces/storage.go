package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrExchange is returned when the token vending machine could not provide
	// access keys. It aborts the whole resolution.
	ErrExchange = errors.New("credential exchange failed")

	// ErrAmbiguousConfiguration is returned when several service bindings could
	// configure the same provider and nothing selects one of them.
	ErrAmbiguousConfiguration = errors.New("ambiguous blobstore configuration")

	// ErrInvalidOverride is returned when an environment override is present but malformed.
	ErrInvalidOverride = errors.New("invalid environment override")

	// ErrInvalidBindings is returned when the service binding document cannot be parsed.
	ErrInvalidBindings = errors.New("invalid service bindings")

	// ErrInvalidRuntimeVersion is returned for runtime versions that cannot be parsed.
	ErrInvalidRuntimeVersion = errors.New("invalid runtime version")
)

// Environment keys recognized during resolution.
const (
	EnvServices               = "VCAP_SERVICES"
	EnvBlobstoreType          = "MENDIX_BLOBSTORE_TYPE"
	EnvCertificateAuthorities = "CERTIFICATE_AUTHORITIES"

	EnvS3AccessKeyID     = "S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "S3_SECRET_ACCESS_KEY"
	EnvS3TVMEndpoint     = "S3_TVM_ENDPOINT"
	EnvS3TVMUsername     = "S3_TVM_USERNAME"
	EnvS3TVMPassword     = "S3_TVM_PASSWORD"
	EnvS3BucketName      = "S3_BUCKET_NAME"
	EnvS3EncryptionKeys  = "S3_ENCRYPTION_KEYS"
	EnvS3PerformDeletes  = "S3_PERFORM_DELETES"
	EnvS3KeySuffix       = "S3_KEY_SUFFIX"
	EnvS3Endpoint        = "S3_ENDPOINT"
	EnvS3UseV2Auth       = "S3_USE_V2_AUTH"
	EnvS3UseSSE          = "S3_USE_SSE"

	EnvSwiftContainerName = "SWIFT_CONTAINER_NAME"
	EnvAzureContainerName = "AZURE_CONTAINER_NAME"
)

// CredentialExchanger trades token vending machine credentials for an access key pair.
type CredentialExchanger interface {
	// Exchange blocks until the pair is obtained, retries are exhausted or ctx is done.
	// Failures wrap ErrExchange.
	Exchange(ctx context.Context, creds TVMCredentials) (AccessKeyPair, error)
}

// SettingsSink accepts resolved configuration and merges it into the runtime's settings.
// Whether existing keys are replaced is decided by the sink according to policy.
type SettingsSink interface {
	Upsert(ctx context.Context, cfg ResolvedStorageConfig, policy MergePolicy) error
}
