package common

// PackageName is used as the prometheus namespace and default log service tag.
const PackageName = "redact_client"

// Version is set at build time with -ldflags "-X github.com/ruteri/redact-client/common.Version=..."
var Version = "dev"
