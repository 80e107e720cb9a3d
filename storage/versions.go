package storage

import "github.com/ruteri/blobstore-resolver/interfaces"

// Runtime versions that changed which storage settings are understood.
var (
	minEncryptionVersion     = interfaces.MustRuntimeVersion("6")
	minSwiftVersion          = interfaces.MustRuntimeVersion("6.7")
	minAzureVersion          = interfaces.MustRuntimeVersion("6.7")
	storageWideDeleteVersion = interfaces.MustRuntimeVersion("7.19")

	v7_23_22 = interfaces.MustRuntimeVersion("7.23.22")
	v8       = interfaces.MustRuntimeVersion("8")
	v8_18_7  = interfaces.MustRuntimeVersion("8.18.7")
	v9       = interfaces.MustRuntimeVersion("9")
	v9_2     = interfaces.MustRuntimeVersion("9.2")
)

// supportsTokenService reports whether the runtime can talk to the token
// vending machine itself. The feature was backported to 8.18.7 and 7.23.22.
func supportsTokenService(rv interfaces.RuntimeVersion) bool {
	return rv.AtLeast(v9_2) ||
		rv.Between(v8_18_7, v9) ||
		rv.Between(v7_23_22, v8)
}
