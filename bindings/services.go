package bindings

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// ParseServices parses a VCAP_SERVICES style document. Empty input yields an empty source.
func ParseServices(raw []byte) (interfaces.CredentialSource, error) {
	if strings.TrimSpace(string(raw)) == "" {
		return interfaces.CredentialSource{}, nil
	}

	var services interfaces.CredentialSource
	if err := json.Unmarshal(raw, &services); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidBindings, err)
	}
	if services == nil {
		services = interfaces.CredentialSource{}
	}
	return services, nil
}

// ServicesFromOS parses the VCAP_SERVICES environment variable.
func ServicesFromOS() (interfaces.CredentialSource, error) {
	return ParseServices([]byte(os.Getenv(interfaces.EnvServices)))
}

// ServicesFromFile parses a binding document stored on disk.
func ServicesFromFile(path string) (interfaces.CredentialSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service bindings: %w", err)
	}
	return ParseServices(data)
}

// DecodeCredentials decodes the binding's credentials into out, a pointer to a
// struct with mapstructure tags. Scalars are weakly typed so numeric values
// land in string fields.
func DecodeCredentials(binding interfaces.ServiceBinding, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(binding.Credentials); err != nil {
		return fmt.Errorf("%w: binding %q: %v", interfaces.ErrInvalidBindings, binding.Name, err)
	}
	return nil
}
