// Package config holds the Rally defaults and loads the user's settings
// from a YAML file and RALLY_* environment variables.
package config

import "time"

const (
	// DefaultCompanionID is the extension ID of the Rally core add-on
	DefaultCompanionID = "rally-core@mozilla.org"

	// DefaultSignUpURL is the Rally website page participants enroll on
	DefaultSignUpURL = "https://rally-web-spike.web.app/"

	// DefaultWebOrigin is the only origin trusted on the web channel
	DefaultWebOrigin = "https://rally-web-spike.web.app"

	// DefaultSignUpTabPattern matches tabs that already show the Rally website
	DefaultSignUpTabPattern = "*://rally-web-spike.web.app/*"

	// DefaultKeyringService is the keyring service the study state is stored under
	DefaultKeyringService = "rally"

	// DefaultHandshakeTimeout bounds the core-check round trip
	DefaultHandshakeTimeout = 10 * time.Second

	// EnvPrefix is prepended to every environment override
	EnvPrefix = "RALLY_"

	// ConfigDirName is the directory under the user config dir holding config.yaml
	ConfigDirName = "rally"

	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
)
