package cmd

import (
	"fmt"

	"github.com/kernel/rally/pkg/table"
	"github.com/kernel/rally/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type KeyInput struct {
	Path   string
	Output string
}

// KeyCmd checks and converts study encryption keys.
type KeyCmd struct{}

func (c KeyCmd) Validate(in KeyInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	key, err := util.LoadKey(in.Path)
	if err != nil {
		return err
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(key)
	}

	str := func(name string) string {
		v, _ := key[name].(string)
		return util.OrDash(v)
	}
	thumb, err := util.Thumbprint(key)
	if err != nil {
		thumb = ""
	}
	table.PrintKeyValue([][]string{
		{"Key ID", key.KeyID()},
		{"Type", str("kty")},
		{"Algorithm", str("alg")},
		{"Use", str("use")},
		{"Thumbprint", util.OrDash(thumb)},
	})
	if _, private := key["d"]; private {
		pterm.Warning.Println("Key contains private material; studies only need the public key")
	}
	pterm.Success.Println("Key is valid")
	return nil
}

// Convert prints the file as a JWK, converting PEM public keys.
func (c KeyCmd) Convert(in KeyInput) error {
	key, err := util.LoadKey(in.Path)
	if err != nil {
		return err
	}
	return util.PrintPrettyJSON(key)
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Work with study encryption keys",
}

var keyValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check that a JWK or PEM public key can be used by a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return KeyCmd{}.Validate(KeyInput{Path: args[0], Output: output})
	},
}

var keyConvertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Print a PEM public key as a JWK with a thumbprint key ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return KeyCmd{}.Convert(KeyInput{Path: args[0]})
	},
}

func init() {
	keyValidateCmd.Flags().StringP("output", "o", "", "Output format (json)")

	keyCmd.AddCommand(keyValidateCmd)
	keyCmd.AddCommand(keyConvertCmd)
	rootCmd.AddCommand(keyCmd)
}

