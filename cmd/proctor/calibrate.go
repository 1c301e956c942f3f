package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/supervisor"
	"github.com/teslashibe/go-proctor/pkg/voice"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Collect the audio baseline and print the learned voice profile",
	Long: `Calibrate listens to the microphone for the baseline window that the
audio detector uses at the start of every session, then prints the learned
profile. Sit quietly, or speak normally, as the candidate would.`,
	RunE: runCalibrate,
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := log.Component(nil, "calibrate")

	mic := capture.NewMicrophone(cfg.Audio, logger)
	sup := supervisor.New(capture.NewAudioAcquirer(mic), cfg.Engine.AudioSupervisor, logger)
	defer sup.Stop()
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}

	det := voice.New(cfg.Engine.Voice, sup, nil, voice.WithLogger(logger))
	vc := det.Config()

	bar := progressbar.NewOptions(vc.BaselineSamples,
		progressbar.OptionSetDescription("Collecting voice baseline"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	ticker := time.NewTicker(vc.Interval)
	defer ticker.Stop()
	for {
		p := det.Profile()
		bar.Set(p.Samples)
		if p.Ready {
			break
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return ctx.Err()
		case <-ticker.C:
		}
		det.Tick()
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	out, err := json.MarshalIndent(det.Profile(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
