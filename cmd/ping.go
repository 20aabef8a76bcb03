package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kernel/rally/internal/config"
	"github.com/kernel/rally/pkg/rally"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// PingCmd submits a single telemetry ping through a native messaging
// connection.
type PingCmd struct {
	RunCmd
}

type PingInput struct {
	Config  config.Config
	Type    string
	Payload string
}

func (c PingCmd) Ping(ctx context.Context, in PingInput) error {
	if in.Type == "" {
		return fmt.Errorf("--type is required")
	}
	if !json.Valid([]byte(in.Payload)) {
		return fmt.Errorf("--payload must be valid JSON")
	}

	cfg := in.Config
	cfg.Variant = rally.VariantTelemetryClient.String()

	reg := prometheus.NewRegistry()
	s, err := c.start(ctx, cfg, rally.NewMetrics(reg))
	if err != nil {
		return err
	}
	defer s.rally.Close()

	s.rally.Submit(ctx, in.Type, json.RawMessage(in.Payload))

	outcome, err := pingOutcome(reg)
	if err != nil {
		return err
	}
	if outcome != "sent" && outcome != "dev_mode" {
		return fmt.Errorf("ping was not sent: %s", outcome)
	}
	pterm.Success.Printf("Ping %s: %s\n", in.Type, outcome)
	return nil
}

// pingOutcome returns the outcome label of the one recorded submission.
func pingOutcome(g prometheus.Gatherer) (string, error) {
	families, err := g.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to read metrics: %w", err)
	}
	for _, mf := range families {
		if mf.GetName() != "rally_pings_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetCounter().GetValue() == 0 {
				continue
			}
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					return l.GetValue(), nil
				}
			}
		}
	}
	return "", fmt.Errorf("no ping was recorded")
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Submit one telemetry ping through the core add-on",
	Long: `Submit one telemetry ping as the telemetry client. Like run, this
speaks native messaging on stdio. In developer mode the payload is printed
instead of sent.`,
	Example: `  rally ping --type study-enrollment --payload '{"enrolled":true}'`,
	Args:    cobra.NoArgs,
	RunE:    runPing,
}

func init() {
	pingCmd.Flags().String("type", "", "Payload type (required)")
	pingCmd.Flags().String("payload", "{}", "Payload as JSON")
	_ = pingCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	pterm.SetDefaultOutput(os.Stderr)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	payloadType, _ := cmd.Flags().GetString("type")
	payload, _ := cmd.Flags().GetString("payload")

	c := PingCmd{RunCmd{store: openStore(cfg), in: os.Stdin, out: os.Stdout}}
	return c.Ping(cmd.Context(), PingInput{Config: cfg, Type: payloadType, Payload: payload})
}
