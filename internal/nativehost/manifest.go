package nativehost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/samber/lo"
)

// Manifest is a native messaging host manifest. Firefox reads
// AllowedExtensions, Chromium based browsers read AllowedOrigins.
type Manifest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Path              string   `json:"path"`
	Type              string   `json:"type"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`
}

// NewManifest builds the manifest for browser that allows extensionIDs to
// launch binaryPath.
func NewManifest(browser, binaryPath string, extensionIDs []string) (*Manifest, error) {
	if !filepath.IsAbs(binaryPath) {
		return nil, fmt.Errorf("host path must be absolute, got %s", binaryPath)
	}
	if len(extensionIDs) == 0 {
		return nil, fmt.Errorf("at least one extension ID is required")
	}

	m := &Manifest{
		Name:        HostName,
		Description: HostDescription,
		Path:        binaryPath,
		Type:        "stdio",
	}
	switch browser {
	case BrowserFirefox:
		m.AllowedExtensions = lo.Uniq(extensionIDs)
	case BrowserChrome, BrowserChromium:
		m.AllowedOrigins = lo.Map(lo.Uniq(extensionIDs), func(id string, _ int) string {
			return "chrome-extension://" + id + "/"
		})
	default:
		return nil, fmt.Errorf("unsupported browser %q", browser)
	}
	return m, nil
}

// ManifestDir returns the per-user directory browser reads host manifests
// from on the current OS.
func ManifestDir(browser string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return manifestDir(runtime.GOOS, homeDir, browser)
}

func manifestDir(goos, homeDir, browser string) (string, error) {
	switch goos {
	case "darwin":
		base := filepath.Join(homeDir, "Library", "Application Support")
		switch browser {
		case BrowserFirefox:
			return filepath.Join(base, "Mozilla", "NativeMessagingHosts"), nil
		case BrowserChrome:
			return filepath.Join(base, "Google", "Chrome", "NativeMessagingHosts"), nil
		case BrowserChromium:
			return filepath.Join(base, "Chromium", "NativeMessagingHosts"), nil
		}
	case "linux":
		switch browser {
		case BrowserFirefox:
			return filepath.Join(homeDir, ".mozilla", "native-messaging-hosts"), nil
		case BrowserChrome:
			return filepath.Join(homeDir, ".config", "google-chrome", "NativeMessagingHosts"), nil
		case BrowserChromium:
			return filepath.Join(homeDir, ".config", "chromium", "NativeMessagingHosts"), nil
		}
	default:
		// Windows registers manifests in the registry instead of a directory.
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
	return "", fmt.Errorf("unsupported browser %q", browser)
}

// Install writes m into dir and returns the manifest path.
func Install(dir string, m *Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}

// Uninstall removes the manifest from dir. A missing manifest is not an
// error.
func Uninstall(dir string) error {
	err := os.Remove(filepath.Join(dir, ManifestFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

// Installed reports the manifest in dir, or nil when none is installed.
func Installed(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}
