package internal

// Version is the build version, set at build time with
// -ldflags "-X github.com/vocdoni/amaci-witness/internal.Version=..."
var Version = "dev"
