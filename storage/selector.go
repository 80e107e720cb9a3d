package storage

import (
	"fmt"
	"strings"

	"github.com/ruteri/blobstore-resolver/interfaces"
)

// GenericServiceKey is the provider-neutral binding whose backend is chosen by
// the MENDIX_BLOBSTORE_TYPE environment variable.
const GenericServiceKey = "objectstore"

// Blobstore type selector values.
const (
	BlobstoreTypeS3    = "s3"
	BlobstoreTypeAzure = "azure"
)

// bindingSelector finds the binding that configures one provider.
type bindingSelector struct {
	// prefix matches provider specific service keys, e.g. "amazon-s3".
	prefix string
	// blobstoreType is the selector value naming this provider.
	blobstoreType string
	// genericWhenUnset lets the generic binding match when the selector is unset.
	genericWhenUnset bool
}

type selectedBinding struct {
	Key     string
	Binding interfaces.ServiceBinding
}

// selectBinding returns the chosen binding, or ok=false when none applies.
//
// The generic binding wins when the selector explicitly names this provider.
// Otherwise more than one candidate is an ErrAmbiguousConfiguration.
func (s bindingSelector) selectBinding(services interfaces.CredentialSource, env interfaces.EnvironmentOverrides) (selectedBinding, bool, error) {
	selector, selectorSet := env.Lookup(interfaces.EnvBlobstoreType)

	_, hasGeneric := services[GenericServiceKey]
	genericMatches := hasGeneric &&
		((selectorSet && selector == s.blobstoreType) || (!selectorSet && s.genericWhenUnset))

	if genericMatches && selectorSet {
		return s.first(services, GenericServiceKey)
	}

	var candidates []string
	for _, key := range services.Keys() {
		if strings.HasPrefix(key, s.prefix) {
			candidates = append(candidates, key)
		}
	}
	if genericMatches {
		candidates = append(candidates, GenericServiceKey)
	}

	switch len(candidates) {
	case 0:
		return selectedBinding{}, false, nil
	case 1:
		return s.first(services, candidates[0])
	default:
		return selectedBinding{}, false, fmt.Errorf("%w: bindings %s could all configure %s storage, set %s to choose",
			interfaces.ErrAmbiguousConfiguration,
			strings.Join(candidates, ", "),
			s.blobstoreType,
			interfaces.EnvBlobstoreType)
	}
}

func (s bindingSelector) first(services interfaces.CredentialSource, key string) (selectedBinding, bool, error) {
	binding, ok := services.First(key)
	if !ok {
		return selectedBinding{}, false, nil
	}
	return selectedBinding{Key: key, Binding: binding}, true, nil
}
