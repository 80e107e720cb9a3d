package storage

import "github.com/ruteri/blobstore-resolver/interfaces"

const redacted = "***"

var secretKeys = map[string]struct{}{
	keyS3SecretAccessKey:  {},
	keyS3TokenServicePass: {},
	keyS3EncryptionKeys:   {},
	keySwiftPassword:      {},
	keyAzureAccountKey:    {},
	keyAzureSAS:           {},
}

// Redact returns a copy of cfg with secret values masked, safe to log or serve.
func Redact(cfg interfaces.ResolvedStorageConfig) interfaces.ResolvedStorageConfig {
	out := make(interfaces.ResolvedStorageConfig, len(cfg))
	for k, v := range cfg {
		if _, secret := secretKeys[k]; secret {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}
