package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kernel/rally/pkg/host"
	"github.com/kernel/rally/pkg/rally"
	"github.com/kernel/rally/pkg/table"
	"github.com/kernel/rally/pkg/util"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// enrollment is what the study has persisted about the participant.
type enrollment struct {
	SignUpComplete bool            `json:"signUpComplete"`
	RallyID        string          `json:"rallyId,omitempty"`
	HasAuthToken   bool            `json:"hasAuthToken"`
	Token          *util.TokenInfo `json:"token,omitempty"`
	TokenError     string          `json:"tokenError,omitempty"`
}

func readEnrollment(ctx context.Context, store rally.Storage) (*enrollment, error) {
	e := &enrollment{}

	raw, found, err := store.Get(ctx, rally.StorageKeySignUpComplete)
	if err != nil {
		return nil, err
	}
	if found {
		if err := json.Unmarshal(raw, &e.SignUpComplete); err != nil {
			return nil, fmt.Errorf("invalid %s record: %w", rally.StorageKeySignUpComplete, err)
		}
	}

	raw, found, err = store.Get(ctx, rally.StorageKeyRallyID)
	if err != nil {
		return nil, err
	}
	if found {
		if err := json.Unmarshal(raw, &e.RallyID); err != nil {
			return nil, fmt.Errorf("invalid %s record: %w", rally.StorageKeyRallyID, err)
		}
	}

	raw, found, err = store.Get(ctx, rally.StorageKeyAuthToken)
	if err != nil {
		return nil, err
	}
	if found {
		e.HasAuthToken = true
		info, err := util.InspectToken(raw)
		if err != nil {
			e.TokenError = err.Error()
		} else {
			e.Token = info
		}
	}
	return e, nil
}

// SignUpCmd inspects and manages the stored sign-up record.
type SignUpCmd struct {
	store StudyStore
	tabs  rally.Tabs
	now   func() time.Time
}

type SignUpStatusInput struct {
	Output string
}

type SignUpOpenInput struct {
	URL string
}

type SignUpResetInput struct {
	SkipConfirm bool
}

func (c SignUpCmd) Status(ctx context.Context, in SignUpStatusInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	e, err := readEnrollment(ctx, c.store)
	if err != nil {
		return fmt.Errorf("failed to read sign-up record: %w", err)
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(e)
	}

	pterm.Println(signUpBadge(e.SignUpComplete))
	rows := [][]string{
		{"Sign-up Complete", util.YesNo(e.SignUpComplete)},
		{"Rally ID", util.OrDash(e.RallyID)},
		{"Auth Token", util.YesNo(e.HasAuthToken)},
	}
	if e.Token != nil {
		rows = append(rows,
			[]string{"Token Subject", util.OrDash(e.Token.Subject)},
			[]string{"Token Issuer", util.OrDash(e.Token.Issuer)},
			[]string{"Token Expires", util.TimeOrDash(e.Token.ExpiresAt)},
		)
	}
	table.PrintKeyValue(rows)

	switch {
	case e.TokenError != "":
		pterm.Warning.Printf("Stored auth token could not be read: %s\n", e.TokenError)
	case e.Token != nil && e.Token.Expired(c.now()):
		pterm.Warning.Println("Stored auth token has expired")
	}
	return nil
}

func (c SignUpCmd) Open(ctx context.Context, in SignUpOpenInput) error {
	if in.URL == "" {
		return fmt.Errorf("no sign-up URL configured")
	}
	return c.tabs.Create(ctx, in.URL)
}

func (c SignUpCmd) Reset(ctx context.Context, in SignUpResetInput) error {
	if !in.SkipConfirm {
		pterm.DefaultInteractiveConfirm.DefaultText = "Forget the stored sign-up record and Rally ID?"
		ok, _ := pterm.DefaultInteractiveConfirm.Show()
		if !ok {
			pterm.Info.Println("Reset cancelled")
			return nil
		}
	}

	for _, key := range []string{rally.StorageKeySignUpComplete, rally.StorageKeyAuthToken, rally.StorageKeyRallyID} {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to reset sign-up record: %w", err)
		}
	}
	pterm.Success.Println("Sign-up record cleared")
	return nil
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Inspect and manage the participant's sign-up",
}

var signupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored sign-up record",
	Long:  "Show whether sign-up completed, the Rally ID and the claims of the stored auth token",
	Args:  cobra.NoArgs,
	RunE:  runSignupStatus,
}

var signupOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the Rally sign-up page in the browser",
	Args:  cobra.NoArgs,
	RunE:  runSignupOpen,
}

var signupResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the stored sign-up record",
	Args:  cobra.NoArgs,
	RunE:  runSignupReset,
}

func init() {
	signupStatusCmd.Flags().StringP("output", "o", "", "Output format (json)")
	signupResetCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	signupCmd.AddCommand(signupStatusCmd)
	signupCmd.AddCommand(signupOpenCmd)
	signupCmd.AddCommand(signupResetCmd)
	rootCmd.AddCommand(signupCmd)
}

func newSignUpCmd(cmd *cobra.Command) (SignUpCmd, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return SignUpCmd{}, "", err
	}
	return SignUpCmd{store: openStore(cfg), tabs: host.DesktopTabs{}, now: time.Now}, cfg.SignUpURL, nil
}

func runSignupStatus(cmd *cobra.Command, args []string) error {
	c, _, err := newSignUpCmd(cmd)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	return c.Status(cmd.Context(), SignUpStatusInput{Output: output})
}

func runSignupOpen(cmd *cobra.Command, args []string) error {
	c, url, err := newSignUpCmd(cmd)
	if err != nil {
		return err
	}
	return c.Open(cmd.Context(), SignUpOpenInput{URL: url})
}

func runSignupReset(cmd *cobra.Command, args []string) error {
	c, _, err := newSignUpCmd(cmd)
	if err != nil {
		return err
	}
	skip, _ := cmd.Flags().GetBool("yes")
	return c.Reset(cmd.Context(), SignUpResetInput{SkipConfirm: skip})
}
