// Package utils holds small helpers shared by the studio server and CLI that
// do not warrant a package of their own.
package utils

// Build information, set with -ldflags "-X" at release time.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies studio on outbound HTTP requests.
func UserAgent() string {
	return "studio/" + Version
}
