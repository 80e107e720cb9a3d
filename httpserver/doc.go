/*
Package httpserver serves the resolved blobstore configuration over HTTP.

The server resolves once at startup and keeps the outcome in memory. Operators
and sidecars can read it, trigger a new resolution after bindings change, or
try alternative inputs without touching the running configuration.

API Endpoints:

  - GET  /api/storage/config   last resolution, secrets redacted
  - POST /api/storage/resolve  re-resolve from process inputs and persist
  - POST /api/storage/resolve  with a ResolveRequest body: dry run
  - GET  /livez, /readyz       health checks
  - GET  /drain, /undrain      toggle readiness for load balancers
  - /debug/pprof/*             when EnablePprof is set

Error status codes:

  - 400 malformed request body or runtime version
  - 422 ambiguous bindings, malformed overrides, or a dry run that would
    need a credential exchange
  - 502 the token vending machine exchange failed
  - 500 anything else, e.g. a settings sink write

Metrics are served on a separate listener, see package metrics.
*/
package httpserver
