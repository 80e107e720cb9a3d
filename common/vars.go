package common

// Version is overridden at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"

const PackageName = "blobstore-resolver"
