package bindings

import (
	"os"

	"github.com/ruteri/blobstore-resolver/interfaces"
)

// RecognizedKeys lists every environment variable resolution consults.
var RecognizedKeys = []string{
	interfaces.EnvBlobstoreType,
	interfaces.EnvCertificateAuthorities,
	interfaces.EnvS3AccessKeyID,
	interfaces.EnvS3SecretAccessKey,
	interfaces.EnvS3TVMEndpoint,
	interfaces.EnvS3TVMUsername,
	interfaces.EnvS3TVMPassword,
	interfaces.EnvS3BucketName,
	interfaces.EnvS3EncryptionKeys,
	interfaces.EnvS3PerformDeletes,
	interfaces.EnvS3KeySuffix,
	interfaces.EnvS3Endpoint,
	interfaces.EnvS3UseV2Auth,
	interfaces.EnvS3UseSSE,
	interfaces.EnvSwiftContainerName,
	interfaces.EnvAzureContainerName,
}

// EnvironmentFrom snapshots the recognized keys using lookup.
func EnvironmentFrom(lookup func(string) (string, bool)) interfaces.EnvironmentOverrides {
	env := interfaces.EnvironmentOverrides{}
	for _, key := range RecognizedKeys {
		if v, ok := lookup(key); ok {
			env[key] = v
		}
	}
	return env
}

// EnvironmentFromOS snapshots the recognized keys from the process environment.
func EnvironmentFromOS() interfaces.EnvironmentOverrides {
	return EnvironmentFrom(os.LookupEnv)
}
