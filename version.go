package dnssd

// Version is the current version of dnssd-service
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Backend names the mDNS implementation in use
	Backend string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version: Version,
		Backend: "zeroconf",
	}
}
