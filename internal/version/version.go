package version

// Version is the current version of localdrop.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/abhayk2/localDrop/internal/version.Version=v1.0.0'"
var Version = "dev"
