package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kernel/rally/internal/config"
	"github.com/kernel/rally/pkg/nativemsg"
	"github.com/kernel/rally/pkg/rally"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// promptWait bounds how long shutdown waits for the sign-up prompt.
const promptWait = 2 * time.Second

// RunCmd attaches a Rally instance to one native messaging connection.
type RunCmd struct {
	store StudyStore
	in    io.Reader
	out   io.Writer
}

type RunInput struct {
	Config config.Config
}

// session is a running Rally instance and the bridge it talks through.
type session struct {
	rally *rally.Rally
	done  <-chan error
}

func (c RunCmd) start(ctx context.Context, cfg config.Config, metrics *rally.Metrics) (*session, error) {
	rc, err := cfg.RallyConfig(onStateChange, metrics)
	if err != nil {
		return nil, err
	}

	bridge := nativemsg.NewBridge(c.in, c.out)
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	r, err := rally.New(ctx, rc, rally.Host{
		Transport:  bridge,
		Storage:    c.store,
		Tabs:       bridge,
		Management: bridge,
	})
	if err != nil {
		if cerr := bridge.Close(); cerr != nil {
			pterm.Debug.Printf("failed to close native messaging connection: %v\n", cerr)
		}
		return nil, err
	}
	return &session{rally: r, done: done}, nil
}

func onStateChange(s rally.RunState) {
	pterm.Info.Printf("Study is now %s\n", stateBadge(s))
}

func (c RunCmd) Run(ctx context.Context, in RunInput) error {
	reg := prometheus.NewRegistry()
	s, err := c.start(ctx, in.Config, rally.NewMetrics(reg))
	if err != nil {
		return err
	}
	defer s.rally.Close()

	if in.Config.MetricsAddr != "" {
		srv := serveMetrics(in.Config.MetricsAddr, reg)
		defer srv.Shutdown(context.Background())
	}

	pterm.Success.Printf("Rally %s ready, study is %s\n", s.rally.Variant(), stateBadge(s.rally.State()))

	select {
	case err := <-s.done:
		if err != nil {
			return fmt.Errorf("native messaging connection failed: %w", err)
		}
		pterm.Info.Println("Browser closed the connection")
	case <-ctx.Done():
		pterm.Info.Println("Shutting down")
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), promptWait)
	defer cancel()
	if err := s.rally.WaitSignUpPrompt(waitCtx); err != nil {
		pterm.Debug.Printf("sign-up prompt still running: %v\n", err)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			pterm.Error.Printf("metrics server failed: %v\n", err)
		}
	}()
	pterm.Info.Printf("Serving metrics on http://%s/metrics\n", addr)
	return srv
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the study as a native messaging host on stdio",
	Long: `Serve the study as a native messaging host. The browser extension
launches this command and exchanges length-prefixed JSON frames on stdin and
stdout; logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	// stdout carries native messaging frames.
	pterm.SetDefaultOutput(os.Stderr)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}

	c := RunCmd{store: openStore(cfg), in: os.Stdin, out: os.Stdout}
	return c.Run(cmd.Context(), RunInput{Config: cfg})
}
