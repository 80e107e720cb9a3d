// Package storage decides which external blobstore a runtime uses and renders
// the runtime settings for it.
//
// Three provider resolvers are tried in a fixed order, and the first one that
// matches wins:
//
//   - S3Resolver: amazon-s3*, objectstore (MENDIX_BLOBSTORE_TYPE unset or "s3")
//     or the legacy p-riakcs binding, plus S3_* overrides
//   - SwiftResolver: the Object-Storage binding, runtime 6.7+
//   - AzureResolver: azure-storage*, or objectstore with
//     MENDIX_BLOBSTORE_TYPE=azure, runtime 6.7+
//
// Each resolver returns a Resolution:
//
//	NoMatch | DirectCredentials | TvmDelegated | SwiftContainer | AzureContainer
//
// # S3 credentials
//
// Static keys win. Otherwise, with token vending machine (TVM) credentials,
// a runtime that supports the token service (9.2+, 8.18.7+ on 8.x, 7.23.22+
// on 7.x) and no CERTIFICATE_AUTHORITIES gets TvmDelegated settings and
// fetches tokens itself. Any other runtime makes the resolver exchange the
// TVM credentials once, through an interfaces.CredentialExchanger, and emit
// the resulting keys as DirectCredentials. A failed exchange fails the whole
// resolution.
// A context marked with WithoutExchange turns that exchange into
// ErrExchangeDisabled, which callers use for untrusted dry runs.
//
// # Usage
//
//	resolver := storage.NewResolver(storage.ResolverConfig{
//	    Exchanger: tvm.NewClient(tvm.ClientConfig{RuntimeVersion: rv}),
//	    Log:       logger,
//	})
//
//	outcome, err := resolver.Resolve(ctx, storage.Request{
//	    Services: services,
//	    Env:      bindings.EnvironmentFromOS(),
//	    Runtime:  rv,
//	})
//	if err != nil {
//	    return err
//	}
//	if !outcome.Configured() {
//	    // uploaded files will not survive restarts
//	}
package storage
