package config

// Version is the canonical version of tradesim
const Version = "0.1.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
