package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kernel/rally/internal/config"
	"github.com/kernel/rally/internal/nativehost"
	"github.com/kernel/rally/pkg/rally"
	"github.com/kernel/rally/pkg/util"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// Component statuses, from best to worst.
const (
	statusOK       = "ok"
	statusDisabled = "disabled"
	statusPending  = "pending"
	statusWarning  = "warning"
	statusError    = "error"
)

var statusRank = map[string]int{
	statusOK:       0,
	statusDisabled: 0,
	statusPending:  1,
	statusWarning:  2,
	statusError:    3,
}

type statusComponent struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type statusGroup struct {
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	Components []statusComponent `json:"components"`
}

type statusResponse struct {
	Status         string        `json:"status"`
	SignUpComplete bool          `json:"signUpComplete"`
	Groups         []statusGroup `json:"groups"`
}

// StatusCmd summarizes configuration, enrollment and host registration.
type StatusCmd struct {
	store       rally.Storage
	manifestDir func(browser string) (string, error)
	now         func() time.Time
}

type StatusInput struct {
	Config config.Config
	Output string
}

func (c StatusCmd) Status(ctx context.Context, in StatusInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	e, err := readEnrollment(ctx, c.store)
	if err != nil {
		return fmt.Errorf("failed to read sign-up record: %w", err)
	}

	groups := []statusGroup{
		newStatusGroup("Study", c.studyComponents(in.Config)),
		newStatusGroup("Enrollment", c.enrollmentComponents(e)),
		newStatusGroup("Native host", c.hostComponents()),
	}
	resp := statusResponse{
		Status:         worstStatus(lo.Map(groups, func(g statusGroup, _ int) string { return g.Status })),
		SignUpComplete: e.SignUpComplete,
		Groups:         groups,
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(resp)
	}
	printStatus(resp)
	return nil
}

func (c StatusCmd) studyComponents(cfg config.Config) []statusComponent {
	variant, err := config.ParseVariant(cfg.Variant)
	if err != nil {
		return []statusComponent{{Name: "Variant", Status: statusError, Detail: err.Error()}}
	}

	comps := []statusComponent{{Name: "Variant", Status: statusOK, Detail: variant.String()}}
	if cfg.DevMode {
		comps = append(comps, statusComponent{Name: "Developer mode", Status: statusWarning, Detail: "pings are not sent"})
	} else {
		comps = append(comps, statusComponent{Name: "Developer mode", Status: statusDisabled})
	}

	if variant == rally.VariantIdentityBroker {
		comps = append(comps, statusComponent{Name: "Web origin", Status: statusOK, Detail: cfg.WebOrigin})
		return comps
	}

	comps = append(comps, statusComponent{Name: "Core add-on", Status: statusOK, Detail: cfg.CompanionID})
	switch {
	case cfg.KeyFile == "":
		comps = append(comps, statusComponent{Name: "Encryption key", Status: statusError, Detail: "no key_file configured"})
	default:
		if key, err := util.LoadKey(cfg.KeyFile); err != nil {
			comps = append(comps, statusComponent{Name: "Encryption key", Status: statusError, Detail: err.Error()})
		} else {
			comps = append(comps, statusComponent{Name: "Encryption key", Status: statusOK, Detail: key.KeyID()})
		}
	}
	if cfg.Namespace == "" {
		comps = append(comps, statusComponent{Name: "Namespace", Status: statusError, Detail: "no namespace configured"})
	} else {
		comps = append(comps, statusComponent{Name: "Namespace", Status: statusOK, Detail: cfg.Namespace})
	}
	return comps
}

func (c StatusCmd) enrollmentComponents(e *enrollment) []statusComponent {
	signUp := statusComponent{Name: "Sign-up", Status: statusPending}
	if e.SignUpComplete {
		signUp.Status = statusOK
	}

	id := statusComponent{Name: "Rally ID", Status: statusPending, Detail: e.RallyID}
	if e.RallyID != "" {
		id.Status = statusOK
	}

	token := statusComponent{Name: "Auth token", Status: statusPending}
	switch {
	case e.TokenError != "":
		token.Status, token.Detail = statusWarning, e.TokenError
	case e.Token != nil && e.Token.Expired(c.now()):
		token.Status, token.Detail = statusWarning, "expired "+util.TimeOrDash(e.Token.ExpiresAt)
	case e.Token != nil:
		token.Status, token.Detail = statusOK, "expires "+util.TimeOrDash(e.Token.ExpiresAt)
	}
	return []statusComponent{signUp, id, token}
}

func (c StatusCmd) hostComponents() []statusComponent {
	return lo.Map(nativehost.Browsers, func(browser string, _ int) statusComponent {
		comp := statusComponent{Name: browser}
		dir, err := c.manifestDir(browser)
		if err != nil {
			comp.Status, comp.Detail = statusDisabled, err.Error()
			return comp
		}
		m, err := nativehost.Installed(dir)
		switch {
		case err != nil:
			comp.Status, comp.Detail = statusError, err.Error()
		case m == nil:
			comp.Status, comp.Detail = statusDisabled, "not installed"
		default:
			comp.Status, comp.Detail = statusOK, m.Path
		}
		return comp
	})
}

func newStatusGroup(name string, comps []statusComponent) statusGroup {
	return statusGroup{
		Name:       name,
		Status:     worstStatus(lo.Map(comps, func(c statusComponent, _ int) string { return c.Status })),
		Components: comps,
	}
}

func worstStatus(statuses []string) string {
	if len(statuses) == 0 {
		return statusOK
	}
	return lo.MaxBy(statuses, func(a, b string) bool { return statusRank[a] > statusRank[b] })
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, enrollment and native host registration",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c := StatusCmd{store: openStore(cfg), manifestDir: nativehost.ManifestDir, now: time.Now}
	return c.Status(cmd.Context(), StatusInput{Config: cfg, Output: output})
}

var statusDisplay = map[string]struct {
	label string
	rgb   pterm.RGB
}{
	statusOK:       {label: "OK", rgb: pterm.NewRGB(31, 163, 130)},
	statusDisabled: {label: "Off", rgb: pterm.NewRGB(128, 128, 128)},
	statusPending:  {label: "Pending", rgb: pterm.NewRGB(36, 99, 235)},
	statusWarning:  {label: "Warning", rgb: pterm.NewRGB(245, 158, 11)},
	statusError:    {label: "Error", rgb: pterm.NewRGB(239, 68, 68)},
}

func getStatusDisplay(status string) (string, pterm.RGB) {
	if d, ok := statusDisplay[status]; ok {
		return d.label, d.rgb
	}
	return "Unknown", pterm.NewRGB(128, 128, 128)
}

func coloredDot(rgb pterm.RGB) string {
	return rgb.Sprint("●")
}

func printStatus(resp statusResponse) {
	label, rgb := getStatusDisplay(resp.Status)
	pterm.Println()
	pterm.Printf("  Rally Status: %s  %s\n", rgb.Sprint(label), signUpBadge(resp.SignUpComplete))

	for _, group := range resp.Groups {
		pterm.Println()
		pterm.Println("  " + pterm.Bold.Sprint(group.Name))
		for _, comp := range group.Components {
			compLabel, compColor := getStatusDisplay(comp.Status)
			pterm.Printf("    %s %-16s %-8s %s\n", coloredDot(compColor), comp.Name, compLabel, comp.Detail)
		}
	}
	pterm.Println()
}
