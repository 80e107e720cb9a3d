package storage

import (
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// Storage service identifiers written to interfaces.StorageServiceKey.
const (
	S3Service    = "com.mendix.storage.s3"
	SwiftService = "com.mendix.storage.swift"
	AzureService = "com.mendix.storage.azure"
)

// Runtime setting keys.
const (
	keyS3AccessKeyID        = "com.mendix.storage.s3.AccessKeyId"
	keyS3SecretAccessKey    = "com.mendix.storage.s3.SecretAccessKey"
	keyS3BucketName         = "com.mendix.storage.s3.BucketName"
	keyS3TokenServiceURL    = "com.mendix.storage.s3.tokenService.Url"
	keyS3TokenServiceUser   = "com.mendix.storage.s3.tokenService.Username"
	keyS3TokenServicePass   = "com.mendix.storage.s3.tokenService.Password"
	keyS3TokenRefreshPct    = "com.mendix.storage.s3.tokenService.RefreshPercentage"
	keyS3TokenRetryInterval = "com.mendix.storage.s3.tokenService.RetryIntervalInSeconds"
	keyS3PerformDelete      = "com.mendix.storage.s3.PerformDeleteFromStorage"
	keyPerformDelete        = "com.mendix.storage.PerformDeleteFromStorage"
	keyS3KeySuffix          = "com.mendix.storage.s3.ResourceNameSuffix"
	keyS3UseV2Auth          = "com.mendix.storage.s3.UseV2Auth"
	keyS3Endpoint           = "com.mendix.storage.s3.EndPoint"
	keyS3EncryptionKeys     = "com.mendix.storage.s3.EncryptionKeys"
	keyS3UseSSE             = "com.mendix.storage.s3.UseSSE"

	keySwiftContainer   = "com.mendix.storage.swift.Container"
	keySwiftAutoCreate  = "com.mendix.storage.swift.Container.AutoCreate"
	keySwiftDomainID    = "com.mendix.storage.swift.credentials.DomainId"
	keySwiftAuthURL     = "com.mendix.storage.swift.credentials.Authurl"
	keySwiftUsername    = "com.mendix.storage.swift.credentials.Username"
	keySwiftPassword    = "com.mendix.storage.swift.credentials.Password"
	keySwiftRegion      = "com.mendix.storage.swift.credentials.Region"
	keyAzureContainer   = "com.mendix.storage.azure.Container"
	keyAzureCreate      = "com.mendix.storage.azure.CreateContainerIfNotExists"
	keyAzureAccountKey  = "com.mendix.storage.azure.AccountKey"
	keyAzureAccountName = "com.mendix.storage.azure.AccountName"
	keyAzureSAS         = "com.mendix.storage.azure.SharedAccessSignature"
	keyAzureEndpoint    = "com.mendix.storage.azure.BlobEndpoint"
)

// The runtime refreshes delegated tokens at this share of their lifetime and
// retries the token service at this interval.
const (
	tokenRefreshPercentage   = 80
	tokenRetryIntervalSecond = 10
)

// Resolution is the outcome of one provider resolver. It is one of NoMatch,
// DirectCredentials, TvmDelegated, SwiftContainer or AzureContainer.
type Resolution interface {
	// Settings renders the runtime settings. NoMatch renders an empty map.
	Settings() interfaces.ResolvedStorageConfig
	isResolution()
}

// NoMatch means the provider is not configured, or is configured for a runtime
// that cannot use it. Warn is set for the latter.
type NoMatch struct {
	Provider string
	Reason   string
	Warn     bool
}

func (NoMatch) isResolution() {}

func (NoMatch) Settings() interfaces.ResolvedStorageConfig {
	return interfaces.ResolvedStorageConfig{}
}

// S3Options are the settings layered onto both S3 credential shapes.
// Runtime version gates have already been applied by the resolver.
type S3Options struct {
	Bucket    string
	Endpoint  string
	KeySuffix string
	UseV2Auth bool
	UseSSE    bool

	// EncryptionKeys is emitted as-is; nil or empty values are skipped.
	EncryptionKeys any

	DisableDeletes bool
	// LegacyDeleteSetting selects the S3-scoped delete key used by runtimes before 7.19.
	LegacyDeleteSetting bool
}

func (o S3Options) apply(cfg interfaces.ResolvedStorageConfig) {
	if o.DisableDeletes {
		if o.LegacyDeleteSetting {
			cfg[keyS3PerformDelete] = false
		} else {
			cfg[keyPerformDelete] = false
		}
	}
	if o.KeySuffix != "" {
		cfg[keyS3KeySuffix] = o.KeySuffix
	}
	if o.UseV2Auth {
		cfg[keyS3UseV2Auth] = true
	}
	if o.Endpoint != "" {
		cfg[keyS3Endpoint] = o.Endpoint
	}
	if !isEmptyValue(o.EncryptionKeys) {
		cfg[keyS3EncryptionKeys] = o.EncryptionKeys
	}
	if o.UseSSE {
		cfg[keyS3UseSSE] = true
	}
}

// DirectCredentials configures S3 with a static access key pair. Exchanged is
// set when the pair came from the token vending machine.
type DirectCredentials struct {
	S3Options
	AccessKeyID     string
	SecretAccessKey string
	Exchanged       bool
}

func (DirectCredentials) isResolution() {}

func (d DirectCredentials) Settings() interfaces.ResolvedStorageConfig {
	cfg := interfaces.ResolvedStorageConfig{
		interfaces.StorageServiceKey: S3Service,
		keyS3AccessKeyID:             d.AccessKeyID,
		keyS3SecretAccessKey:         d.SecretAccessKey,
		keyS3BucketName:              d.Bucket,
	}
	d.apply(cfg)
	return cfg
}

// TvmDelegated lets the runtime fetch and refresh S3 credentials from the token
// vending machine itself.
type TvmDelegated struct {
	S3Options
	TVM interfaces.TVMCredentials
}

func (TvmDelegated) isResolution() {}

// TokenServiceURL is the endpoint the runtime polls for tokens.
func (t TvmDelegated) TokenServiceURL() string {
	return "https://" + t.TVM.Endpoint + "/v1/gettoken"
}

func (t TvmDelegated) Settings() interfaces.ResolvedStorageConfig {
	cfg := interfaces.ResolvedStorageConfig{
		interfaces.StorageServiceKey: S3Service,
		keyS3TokenServiceURL:         t.TokenServiceURL(),
		keyS3TokenServiceUser:        t.TVM.Username,
		keyS3TokenServicePass:        t.TVM.Password,
		keyS3TokenRefreshPct:         tokenRefreshPercentage,
		keyS3TokenRetryInterval:      tokenRetryIntervalSecond,
		keyS3BucketName:              t.Bucket,
	}
	t.apply(cfg)
	return cfg
}

// SwiftContainer configures an OpenStack Swift container.
type SwiftContainer struct {
	Container string
	DomainID  string
	AuthURL   string
	Username  string
	Password  string
	Region    string
}

func (SwiftContainer) isResolution() {}

func (s SwiftContainer) Settings() interfaces.ResolvedStorageConfig {
	return interfaces.ResolvedStorageConfig{
		interfaces.StorageServiceKey: SwiftService,
		keySwiftContainer:            s.Container,
		keySwiftAutoCreate:           true,
		keySwiftDomainID:             s.DomainID,
		keySwiftAuthURL:              s.AuthURL,
		keySwiftUsername:             s.Username,
		keySwiftPassword:             s.Password,
		keySwiftRegion:               s.Region,
	}
}

// AzureContainer configures an Azure blob container. Empty optional fields are omitted.
type AzureContainer struct {
	Container             string
	AccountKey            string
	AccountName           string
	SharedAccessSignature string
	BlobEndpoint          string
}

func (AzureContainer) isResolution() {}

func (a AzureContainer) Settings() interfaces.ResolvedStorageConfig {
	cfg := interfaces.ResolvedStorageConfig{
		interfaces.StorageServiceKey: AzureService,
		keyAzureContainer:            a.Container,
		keyAzureCreate:               false,
	}
	if a.AccountKey != "" {
		cfg[keyAzureAccountKey] = a.AccountKey
	}
	if a.AccountName != "" {
		cfg[keyAzureAccountName] = a.AccountName
	}
	if a.SharedAccessSignature != "" {
		cfg[keyAzureSAS] = a.SharedAccessSignature
	}
	if a.BlobEndpoint != "" {
		cfg[keyAzureEndpoint] = a.BlobEndpoint
	}
	return cfg
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
