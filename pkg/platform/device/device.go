// Package device turns User-Agent headers into short display names.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent returns "<browser> <major> on <platform>" for ua, or
// "Unknown Device" when the header is empty.
func ParseUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return unknownDevice
	}
	parsed := useragent.New(ua)

	browser, version := parsed.Browser()
	if parsed.Bot() {
		browser = "Bot " + browser
	}
	if major, _, _ := strings.Cut(version, "."); major != "" {
		browser += " " + major
	}

	platform := parsed.OS()
	if platform == "" {
		platform = parsed.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}
	if parsed.Mobile() {
		platform += " (mobile)"
	}

	name := strings.TrimSpace(browser)
	if name == "" {
		name = "Unknown Browser"
	}
	return strings.Join(strings.Fields(name+" on "+platform), " ")
}
