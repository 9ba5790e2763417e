// ABOUTME: Version constants for micstream
// ABOUTME: Reported in logs, the dashboard header and mDNS TXT records
package version

const (
	// Product is the server's advertised product name
	Product = "micstream-server"

	// Manufacturer identifies who ships the server
	Manufacturer = "Deploy-u"

	// Version is the current release
	Version = "0.3.0"
)
