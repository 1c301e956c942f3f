package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/engine"
	"github.com/teslashibe/go-proctor/pkg/health"
	"github.com/teslashibe/go-proctor/pkg/inference"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the camera, microphone and remote inference service",
	RunE: func(cmd *cobra.Command, args []string) error {
		mon := health.NewMonitor(log.L())
		runChecks(cmd.Context(), cfg, mon)
		if len(mon.All()) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to check: visual and audio monitoring are disabled and no remote is configured.")
			return nil
		}
		printChecks(cmd.OutOrStdout(), mon)
		if s := mon.Overall(); s != health.Healthy {
			return fmt.Errorf("check failed: %s", s)
		}
		return nil
	},
}

func runChecks(ctx context.Context, c *config.Config, mon *health.Monitor) {
	logger := log.L()
	timeout := c.Engine.VideoSupervisor.AcquireTimeout

	if c.Engine.EnableVisualMonitoring {
		dev := camera.NewDevice(camera.NewManager(c.Camera), logger)
		mon.Report(health.Visual, probe(ctx, capture.NewVideoAcquirer(dev), timeout))
	}
	if c.Engine.EnableAudioMonitoring {
		mic := capture.NewMicrophone(c.Audio, logger)
		mon.Report(health.Audio, probe(ctx, capture.NewAudioAcquirer(mic), timeout))
	}
	if c.Engine.Remote.URL != "" {
		mon.Report(health.Remote, checkRemote(ctx, c.Engine.Remote))
	}
}

// probe acquires and immediately releases one handle.
func probe(ctx context.Context, acq capture.Acquirer, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, lease, err := acq.Acquire(pctx)
	if err != nil {
		return err
	}
	return lease.Release()
}

func checkRemote(ctx context.Context, rc engine.RemoteConfig) error {
	client, err := inference.NewClient(
		inference.WithBaseURL(rc.URL),
		inference.WithAPIKey(rc.APIKey),
		inference.WithTimeout(rc.Timeout),
		inference.WithLogger(log.L()),
	)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Health(ctx)
}

func printChecks(out io.Writer, mon *health.Monitor) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SUBSYSTEM\tSTATUS\tMESSAGE")
	fmt.Fprintln(w, "---------\t------\t-------")
	for _, c := range mon.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Status, c.Message)
	}
	w.Flush()
}
