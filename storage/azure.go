package storage

import (
	"context"
	"log/slog"

	"github.com/ruteri/blobstore-resolver/bindings"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// AzureServicePrefix matches azure-storage and its plan-specific variants.
const AzureServicePrefix = "azure-storage"

// azureCredentials carries both historical spellings of the account fields.
type azureCredentials struct {
	PrimaryAccessKey   *string `mapstructure:"primary_access_key"`
	AccountKey         *string `mapstructure:"account_key"`
	StorageAccountName *string `mapstructure:"storage_account_name"`
	AccountName        *string `mapstructure:"account_name"`
	SASToken           *string `mapstructure:"sas_token"`
	ContainerURI       *string `mapstructure:"container_uri"`
	ContainerName      *string `mapstructure:"container_name"`
}

// AzureResolver resolves azure-storage* bindings, or the generic objectstore
// binding when MENDIX_BLOBSTORE_TYPE=azure, for runtimes 6.7 and newer.
type AzureResolver struct {
	selector bindingSelector
	log      *slog.Logger
}

func NewAzureResolver(log *slog.Logger) *AzureResolver {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &AzureResolver{
		selector: bindingSelector{
			prefix:        AzureServicePrefix,
			blobstoreType: BlobstoreTypeAzure,
		},
		log: log,
	}
}

func (r *AzureResolver) Name() string {
	return AzureService
}

func (r *AzureResolver) Resolve(_ context.Context, req Request) (Resolution, error) {
	selected, ok, err := r.selector.selectBinding(req.Services, req.Env)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NoMatch{Provider: AzureService, Reason: "no azure-storage binding"}, nil
	}

	if req.Runtime.Below(minAzureVersion) {
		return NoMatch{
			Provider: AzureService,
			Reason:   "Azure Storage requires runtime " + minAzureVersion.String() + " or newer",
			Warn:     true,
		}, nil
	}

	var creds azureCredentials
	if err := bindings.DecodeCredentials(selected.Binding, &creds); err != nil {
		return nil, err
	}

	container := AzureContainer{
		Container:             req.Env.Get(interfaces.EnvAzureContainerName, defaultContainerName),
		AccountKey:            firstPresent(creds.AccountKey, creds.PrimaryAccessKey),
		AccountName:           firstPresent(creds.AccountName, creds.StorageAccountName),
		SharedAccessSignature: deref(creds.SASToken),
		BlobEndpoint:          deref(creds.ContainerURI),
	}
	if creds.ContainerName != nil {
		container.Container = *creds.ContainerName
	}

	r.log.Info("Azure config detected, activating external file store",
		slog.String("source", selected.Key),
		slog.String("container", container.Container))

	return container, nil
}

// firstPresent returns the first non-nil value.
func firstPresent(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}
