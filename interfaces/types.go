// Package interfaces defines the core interfaces and types for the blobstore resolver.
// It provides the contract between different components without implementation details.
package interfaces

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceBinding is a single bound service instance as published by the platform.
type ServiceBinding struct {
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	Plan        string         `json:"plan"`
	Tags        []string       `json:"tags"`
	Credentials map[string]any `json:"credentials"`
}

// HasCredential reports whether the binding carries the named credential field.
func (b ServiceBinding) HasCredential(field string) bool {
	_, ok := b.Credentials[field]
	return ok
}

// CredentialSource maps a service type name to its ordered binding instances.
// It is read-only for the duration of a resolution.
type CredentialSource map[string][]ServiceBinding

// First returns the first binding instance registered under serviceType.
func (s CredentialSource) First(serviceType string) (ServiceBinding, bool) {
	instances, ok := s[serviceType]
	if !ok || len(instances) == 0 {
		return ServiceBinding{}, false
	}
	return instances[0], true
}

// Keys returns the service type names in lexical order.
func (s CredentialSource) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvironmentOverrides is a snapshot of the process environment taken once per resolution.
type EnvironmentOverrides map[string]string

// Lookup returns the value of key and whether it was set. A set but empty value counts as set.
func (e EnvironmentOverrides) Lookup(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// Get returns the value of key or def if unset.
func (e EnvironmentOverrides) Get(key, def string) string {
	if v, ok := e[key]; ok {
		return v
	}
	return def
}

// IsTrue reports whether key, or def when unset, equals "true" ignoring case.
func (e EnvironmentOverrides) IsTrue(key, def string) bool {
	return strings.EqualFold(e.Get(key, def), "true")
}

// ResolvedStorageConfig is the flat runtime settings map produced by resolution.
// Values are strings, booleans, integers or a nested value for encryption keys.
type ResolvedStorageConfig map[string]any

// StorageServiceKey names the runtime setting that selects the storage implementation.
const StorageServiceKey = "com.mendix.core.StorageService"

// Provider returns the storage service the config selects, or "" if empty.
func (c ResolvedStorageConfig) Provider() string {
	v, _ := c[StorageServiceKey].(string)
	return v
}

// Namespaces returns the distinct "com.mendix.storage.<provider>" prefixes present.
func (c ResolvedStorageConfig) Namespaces() []string {
	seen := map[string]struct{}{}
	for k := range c {
		rest, ok := strings.CutPrefix(k, "com.mendix.storage.")
		if !ok {
			continue
		}
		// storage-wide settings such as PerformDeleteFromStorage have no provider segment
		ns, _, found := strings.Cut(rest, ".")
		if !found {
			continue
		}
		seen[ns] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// TVMCredentials are the long-lived token vending machine credentials.
type TVMCredentials struct {
	Endpoint string
	Username string
	Password string
}

// Complete reports whether endpoint, username and password are all set.
func (c TVMCredentials) Complete() bool {
	return c.Endpoint != "" && c.Username != "" && c.Password != ""
}

// String never includes the password.
func (c TVMCredentials) String() string {
	return fmt.Sprintf("tvm(%s@%s)", c.Username, c.Endpoint)
}

// AccessKeyPair is a short-lived access key issued by the token vending machine.
type AccessKeyPair struct {
	AccessKeyID     string
	SecretAccessKey string
}

// MergePolicy controls how a SettingsSink combines a resolved config with existing settings.
type MergePolicy struct {
	// Overwrite replaces values of keys that already exist.
	Overwrite bool
	// Append adds keys that do not exist yet.
	Append bool
}

// DefaultMergePolicy keeps existing settings and adds new ones.
var DefaultMergePolicy = MergePolicy{Overwrite: false, Append: true}
