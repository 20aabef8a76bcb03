// Package cmd implements the rally command line.
package cmd

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kernel/rally/internal/config"
	"github.com/kernel/rally/pkg/host"
	"github.com/kernel/rally/pkg/rally"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "rally",
	Short: "Run and inspect a Rally study host",
	Long: `rally runs the study side of the Rally platform as a native messaging
host and inspects the enrollment state it keeps in the OS keyring.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			pterm.Warning.Printf("Ignoring .env: %v\n", err)
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			pterm.EnableDebugMessages()
		}
		return nil
	},
}

// Root returns the rally root command.
func Root() *cobra.Command {
	return rootCmd
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())

	_ = rootCmd.RegisterFlagCompletionFunc("variant", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{rally.VariantTelemetryClient.String(), rally.VariantIdentityBroker.String()}, cobra.ShellCompDirectiveNoFileComp
	})
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (default: <user config dir>/rally/config.yaml)")
	fs.Bool("dev", false, "Developer mode: tolerate a missing core add-on and keep pings local")
	fs.Bool("debug", false, "Print debug messages")
	fs.String("variant", "", "Study variant: telemetry-client or identity-broker")
}

// loadConfig reads the config file and environment, then applies the
// global flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("dev") {
		cfg.DevMode, _ = cmd.Flags().GetBool("dev")
	}
	if cmd.Flags().Changed("variant") {
		cfg.Variant, _ = cmd.Flags().GetString("variant")
	}
	if _, err := config.ParseVariant(cfg.Variant); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// StudyStore is the durable storage the CLI reads and resets.
type StudyStore interface {
	rally.Storage
	Delete(ctx context.Context, key string) error
}

// openStore returns the keyring store, or an in-memory one in developer
// mode so that local experiments never touch the participant's record.
func openStore(cfg config.Config) StudyStore {
	if cfg.DevMode {
		return host.NewMemoryStorage()
	}
	return host.NewKeyringStorage(cfg.KeyringService)
}
