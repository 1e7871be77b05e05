// Package version reports the build version of consumer-contracts.
package version

import (
	_ "embed"
	"strings"
)

// Name is the program name used in the user agent and CLI output.
const Name = "consumer-contracts"

//go:embed VERSION
var versionContent string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns "consumer-contracts <version>".
func String() string {
	return Name + " " + Get()
}
