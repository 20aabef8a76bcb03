package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kernel/rally/internal/nativehost"
	"github.com/kernel/rally/pkg/util"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// HostCmd installs the native messaging host manifest.
type HostCmd struct {
	// dir resolves the manifest directory for a browser.
	dir func(browser string) (string, error)
}

type HostInstallInput struct {
	Browser      string
	BinaryPath   string
	ExtensionIDs []string
}

type HostBrowserInput struct {
	Browser string
}

func (c HostCmd) Install(in HostInstallInput) error {
	if !lo.Contains(nativehost.Browsers, in.Browser) {
		return fmt.Errorf("unsupported --browser value: use one of %v", nativehost.Browsers)
	}
	m, err := nativehost.NewManifest(in.Browser, in.BinaryPath, in.ExtensionIDs)
	if err != nil {
		return err
	}
	dir, err := c.dir(in.Browser)
	if err != nil {
		return err
	}
	path, err := nativehost.Install(dir, m)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Installed %s for %s at %s\n", nativehost.HostName, in.Browser, path)
	pterm.Info.Printf("Allowed: %s\n", util.JoinOrDash(append(m.AllowedExtensions, m.AllowedOrigins...)...))
	return nil
}

func (c HostCmd) Uninstall(in HostBrowserInput) error {
	dir, err := c.dir(in.Browser)
	if err != nil {
		return err
	}
	if err := nativehost.Uninstall(dir); err != nil {
		return err
	}
	pterm.Success.Printf("Removed %s for %s\n", nativehost.HostName, in.Browser)
	return nil
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Register rally as a native messaging host",
}

var hostInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Write the native messaging manifest for a browser",
	Args:  cobra.NoArgs,
	RunE:  runHostInstall,
}

var hostUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the native messaging manifest for a browser",
	Args:  cobra.NoArgs,
	RunE:  runHostUninstall,
}

func init() {
	for _, c := range []*cobra.Command{hostInstallCmd, hostUninstallCmd} {
		c.Flags().String("browser", nativehost.BrowserFirefox, "Browser to register with: firefox, chrome or chromium")
		_ = c.RegisterFlagCompletionFunc("browser", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return nativehost.Browsers, cobra.ShellCompDirectiveNoFileComp
		})
	}
	hostInstallCmd.Flags().StringSlice("extension-id", nil, "Study extension allowed to launch the host (repeatable, required)")
	_ = hostInstallCmd.MarkFlagRequired("extension-id")
	hostInstallCmd.Flags().String("path", "", "Absolute path of the rally binary (default: this executable)")

	hostCmd.AddCommand(hostInstallCmd)
	hostCmd.AddCommand(hostUninstallCmd)
	rootCmd.AddCommand(hostCmd)
}

func runHostInstall(cmd *cobra.Command, args []string) error {
	browser, _ := cmd.Flags().GetString("browser")
	ids, _ := cmd.Flags().GetStringSlice("extension-id")
	binary, _ := cmd.Flags().GetString("path")

	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate rally binary: %w", err)
		}
		binary, err = filepath.Abs(exe)
		if err != nil {
			return fmt.Errorf("failed to locate rally binary: %w", err)
		}
	}

	c := HostCmd{dir: nativehost.ManifestDir}
	return c.Install(HostInstallInput{Browser: browser, BinaryPath: binary, ExtensionIDs: ids})
}

func runHostUninstall(cmd *cobra.Command, args []string) error {
	browser, _ := cmd.Flags().GetString("browser")
	c := HostCmd{dir: nativehost.ManifestDir}
	return c.Uninstall(HostBrowserInput{Browser: browser})
}

