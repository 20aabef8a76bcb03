// Package nativehost installs the native messaging host manifest that lets
// a browser extension launch `rally run`.
package nativehost

const (
	// HostName is the native messaging host name extensions connect to
	HostName = "org.mozilla.rally"

	// HostDescription is shown by browsers that list native hosts
	HostDescription = "Rally study host"

	// ManifestFileName is the manifest file name browsers look up for HostName
	ManifestFileName = HostName + ".json"

	// BrowserFirefox selects Firefox manifests (allowed_extensions)
	BrowserFirefox = "firefox"

	// BrowserChrome selects Google Chrome manifests (allowed_origins)
	BrowserChrome = "chrome"

	// BrowserChromium selects Chromium manifests (allowed_origins)
	BrowserChromium = "chromium"
)

// Browsers lists the supported browser names.
var Browsers = []string{BrowserFirefox, BrowserChrome, BrowserChromium}
