// Package bindings turns the platform's service binding document and the
// process environment into the read-only inputs of a resolution.
//
// Both are read once, at the start of a resolution, so resolvers never touch
// global process state:
//
//	services, err := bindings.ServicesFromOS()
//	env := bindings.EnvironmentFromOS()
//
// Credential sub-maps are decoded into tagged structs with DecodeCredentials.
package bindings
