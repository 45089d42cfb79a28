// Package platform classifies inbound requests by client platform based on
// the User-Agent header and maps acquisition channels to app download URLs.
package platform

import "strings"

// Platform is the client platform derived from the User-Agent.
type Platform int

const (
	Unknown Platform = iota
	IOS
	Android
	PC
)

// String returns the lower-case platform name.
func (p Platform) String() string {
	switch p {
	case IOS:
		return "ios"
	case Android:
		return "android"
	case PC:
		return "pc"
	default:
		return "unknown"
	}
}

// clientMarkers identify requests originating from our own native apps.
var clientMarkers = []string{"gengmei", "gmdoctor"}

// FromUserAgent returns the platform and whether the request came from a
// native app client. An empty user agent is Unknown.
func FromUserAgent(userAgent string) (Platform, bool) {
	if userAgent == "" {
		return Unknown, false
	}

	ua := strings.ToLower(userAgent)

	fromClient := false
	for _, m := range clientMarkers {
		if strings.Contains(ua, m) {
			fromClient = true
			break
		}
	}

	switch {
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		return IOS, fromClient
	case strings.Contains(ua, "android"):
		return Android, fromClient
	default:
		return PC, fromClient
	}
}
