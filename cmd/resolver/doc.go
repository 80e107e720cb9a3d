// Package main (cmd/resolver) resolves the runtime's external file store
// settings from platform service bindings and environment overrides.
//
// Three subcommands are provided:
//
//   - resolve: runs one resolution, prints the resulting settings as JSON on
//     stdout and, when --sink is given, merges them into the settings sinks.
//
//   - serve: resolves at startup and serves the outcome over HTTP, see package
//     httpserver for the endpoints. A failed startup resolution keeps the
//     server unready until a later resolution succeeds.
//
//   - exchange: exchanges token vending machine credentials for an access
//     key and prints the key id and expiry. The secret is never printed.
//
// Bindings are read from VCAP_SERVICES unless --services-file is set. The
// runtime version is required for resolve and serve, since it decides the
// setting names and whether S3 credentials are exchanged or delegated.
//
// Logs go to stderr.
//
// Example usage:
//
//	resolver resolve --runtime-version 9.24.0 --redact
//
//	resolver --log-json serve \
//	  --runtime-version 9.24.0 \
//	  --sink file:///etc/runtime/storage.json \
//	  --sink vault://vault:8200/secret/runtime/storage \
//	  --listen-addr 0.0.0.0:8080
//
//	S3_TVM_ENDPOINT=tvm.example.com S3_TVM_USERNAME=u S3_TVM_PASSWORD=p \
//	  resolver exchange --runtime-version 8.0
package main
