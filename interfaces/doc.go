// Package interfaces defines the shared types and contracts of the blobstore resolver.
//
// # Inputs
//
// CredentialSource: the platform service binding document, keyed by service
// type, each entry an ordered list of ServiceBinding instances with a
// credentials sub-map.
//
// EnvironmentOverrides: a snapshot of the recognized environment variables
// (see the Env* constants). Values present here win over values derived from
// the bindings.
//
// RuntimeVersion: the target runtime version, only ever compared against
// fixed thresholds.
//
// # Output
//
// ResolvedStorageConfig: a flat map of dotted runtime setting keys. It holds
// the keys of at most one storage provider and is empty when nothing is
// configured.
//
// # Collaborators
//
//   - CredentialExchanger: exchanges TVM credentials for an AccessKeyPair
//   - SettingsSink: receives the resolved config with a MergePolicy
//
// # Errors
//
// ErrExchange, ErrAmbiguousConfiguration and ErrInvalidOverride abort a
// resolution. A provider that is simply not configured is not an error.
package interfaces
