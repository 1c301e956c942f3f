package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/camera"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/engine"
	"github.com/teslashibe/go-proctor/pkg/health"
	"github.com/teslashibe/go-proctor/pkg/hub"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/web"
)

var (
	runAddr   string
	runRecord bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start monitoring and serve the proctor API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runAddr != "" {
			cfg.Web.Addr = runAddr
		}
		if cmd.Flags().Changed("record") {
			cfg.Engine.RecordSessions = runRecord
		}
		return runMonitor(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runAddr, "addr", "", "listen address (overrides web.addr)")
	runCmd.Flags().BoolVar(&runRecord, "record", false, "record the session activity log")
}

func runMonitor(ctx context.Context, c *config.Config) error {
	logger := log.L()

	store, err := openStore(ctx, c)
	if err != nil {
		return err
	}

	mon := health.NewMonitor(logger)
	h := hub.New("activities", logger)

	cam := camera.NewManager(c.Camera)
	eng := engine.New(c.Engine, engine.Deps{
		Camera:       camera.NewDevice(cam, logger),
		Microphone:   capture.NewMicrophone(c.Audio, logger),
		SessionStore: store,
		Sinks:        []engine.NamedSink{{Name: "websocket", Sink: h}},
		Health:       mon,
		Logger:       logger,
	})
	cam.OnChange(func(camera.Config) { eng.ReacquireCamera() })
	srv := web.NewServer(c.Web, eng, mon, h, logger, web.WithCamera(cam))

	eng.Start(ctx, engine.Callbacks{
		OnViolationCountChanged: func(int) { srv.PublishState() },
		OnSubsystem: func(name string, active bool, err error) {
			if !active {
				logger.Warn("subsystem not active", "subsystem", name, "error", err)
			}
			srv.PublishState()
		},
	})
	defer eng.Stop()

	st := eng.State()
	logger.Info("monitoring started",
		"session", st.SessionID,
		"visual", st.VisualActive,
		"audio", st.AudioActive,
		"addr", c.Web.Addr)

	err = srv.Start(ctx)
	final := eng.State()
	logger.Info("monitoring stopped", "violations", final.ViolationCount)
	return err
}

// openStore returns the session store for c, or nil when sessions are not
// recorded.
func openStore(ctx context.Context, c *config.Config) (session.Store, error) {
	if !c.Engine.RecordSessions {
		return nil, nil
	}
	switch c.Store.Backend {
	case config.StoreFile, "":
		fs, err := session.NewFileStore(c.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		return fs, nil
	case config.StorePostgres:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		ps, err := session.NewPostgresStore(cctx, c.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		return ps, nil
	default:
		return nil, errors.New("session store: unknown backend " + c.Store.Backend)
	}
}
