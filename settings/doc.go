// Package settings persists resolved storage configuration into the runtime's
// custom settings.
//
// Every sink implements interfaces.SettingsSink and merges with Merge:
// existing keys are only replaced when the policy allows overwriting, and
// new keys are only added when it allows appending.
//
// Sinks are created from location URIs:
//
//	memory://
//	file:///srv/app/settings.json
//	vault://vault.internal:8200/secret/apps/myapp/runtime
//
// Several locations can be combined with SinkFactory.CreateMultiSink.
package settings
