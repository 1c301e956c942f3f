// Package engine is the proctoring engine. It owns the capture supervisors,
// the visual and audio detectors, the lockdown guard and the violation
// recorder for one exam session, and releases all hardware on Stop.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/capture"
	"github.com/teslashibe/go-proctor/pkg/health"
	"github.com/teslashibe/go-proctor/pkg/inference"
	"github.com/teslashibe/go-proctor/pkg/lockdown"
	"github.com/teslashibe/go-proctor/pkg/recorder"
	"github.com/teslashibe/go-proctor/pkg/session"
	"github.com/teslashibe/go-proctor/pkg/supervisor"
	"github.com/teslashibe/go-proctor/pkg/vision"
	"github.com/teslashibe/go-proctor/pkg/vision/detection"
	"github.com/teslashibe/go-proctor/pkg/visual"
	"github.com/teslashibe/go-proctor/pkg/voice"
)

const (
	stopTimeout   = 5 * time.Second
	healthRefresh = time.Second
)

// ErrNoDevice is reported for an enabled subsystem without a device.
var ErrNoDevice = errors.New("engine: no capture device configured")

// Callbacks are the host notifications. Any may be nil.
type Callbacks struct {
	OnActivity              func(a activity.Activity)
	OnViolationCountChanged func(count int)

	// OnSubsystem is advisory: it reports, from Start, whether each enabled
	// subsystem came up.
	OnSubsystem func(name string, active bool, err error)
}

// NamedSink is an extra activity sink such as the websocket hub.
type NamedSink struct {
	Name string
	Sink recorder.Sink
}

// Deps are the engine's collaborators. Only the devices of enabled
// subsystems are required.
type Deps struct {
	Camera     capture.Device
	Microphone capture.Device

	// Analyzer overrides the remote client built from Config.Remote.
	Analyzer inference.Analyzer

	// FaceDetector overrides the YuNet model loaded from Config.ModelPath.
	FaceDetector detection.Detector

	// SessionStore receives the activity log when RecordSessions is set.
	SessionStore session.Store

	Sinks  []NamedSink
	Health *health.Monitor
	Logger *slog.Logger
}

// State is a snapshot of the engine.
type State struct {
	IsMonitoring   bool   `json:"isMonitoring"`
	VisualActive   bool   `json:"visualActive"`
	AudioActive    bool   `json:"audioActive"`
	ViolationCount int    `json:"violationCount"`
	SessionID      string `json:"sessionId,omitempty"`
}

// Engine runs one proctoring session.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	recorder *recorder.Recorder
	guard    *lockdown.Guard
	health   *health.Monitor

	mu         sync.Mutex
	monitoring bool
	stopped    bool
	runCtx     context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	videoSup *supervisor.Supervisor
	audioSup *supervisor.Supervisor
	visual   *visual.Detector
	voice    *voice.Detector
	writer   *session.Writer
	closers  []io.Closer

	speechActive bool
}

// New creates an engine. Nothing is acquired until Start.
func New(cfg Config, deps Deps) *Engine {
	logger := log.Component(deps.Logger, "engine")
	if err := cfg.Validate(); err != nil {
		logger.Warn("invalid detector config, detectors will use defaults", "error", err)
	}
	mon := deps.Health
	if mon == nil {
		mon = health.NewMonitor(deps.Logger)
	}

	rec := recorder.New(deps.Logger)
	for _, s := range deps.Sinks {
		rec.AddSink(s.Name, s.Sink)
	}

	return &Engine{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		recorder: rec,
		guard:    lockdown.New(rec),
		health:   mon,
	}
}

// Config returns the session configuration.
func (e *Engine) Config() Config { return e.cfg }

// Health returns the subsystem health monitor.
func (e *Engine) Health() *health.Monitor { return e.health }

// AddSink registers an extra activity sink.
func (e *Engine) AddSink(name string, s recorder.Sink) { e.recorder.AddSink(name, s) }

// Start brings up every enabled subsystem. It never fails: a subsystem that
// cannot start is logged, reported through OnSubsystem and marked degraded,
// and the session runs without it. Calling Start on a running or stopped
// engine does nothing.
func (e *Engine) Start(ctx context.Context, cb Callbacks) {
	e.mu.Lock()
	if e.monitoring || e.stopped {
		e.mu.Unlock()
		return
	}
	e.monitoring = true
	e.runCtx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := e.runCtx
	e.mu.Unlock()

	e.recorder.SetCallbacks(recorder.Callbacks{
		OnActivity:              cb.OnActivity,
		OnViolationCountChanged: cb.OnViolationCountChanged,
	})
	e.recorder.SetKeeper(e)

	report := func(name string, err error) {
		e.health.Report(name, err)
		if cb.OnSubsystem != nil {
			cb.OnSubsystem(name, err == nil, err)
		}
	}

	if e.cfg.RecordSessions {
		report(health.Session, e.startSession(ctx))
	}
	if e.cfg.EnableLockdown {
		report(health.Lockdown, nil)
	}
	if e.cfg.EnableVisualMonitoring {
		report(health.Visual, e.startVisual(ctx, runCtx, report))
	}
	if e.cfg.EnableAudioMonitoring {
		report(health.Audio, e.startAudio(ctx, runCtx))
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.watchHealth(runCtx)
	}()

	e.logger.Info("proctoring started",
		"lockdown", e.cfg.EnableLockdown,
		"visual", e.cfg.EnableVisualMonitoring,
		"audio", e.cfg.EnableAudioMonitoring,
		"record_sessions", e.cfg.RecordSessions)
}

func (e *Engine) startSession(ctx context.Context) error {
	if e.deps.SessionStore == nil {
		return errors.New("engine: session recording enabled without a store")
	}
	w, err := session.NewWriter(ctx, e.deps.SessionStore, session.New(), e.cfg.Session, e.deps.Logger)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.writer = w
	e.mu.Unlock()
	e.recorder.AddSink("session", w)
	return nil
}

func (e *Engine) startVisual(ctx, runCtx context.Context, report func(string, error)) error {
	if e.deps.Camera == nil {
		return ErrNoDevice
	}

	est, closers := e.buildEstimator(ctx, report)
	sup := supervisor.New(capture.NewVideoAcquirer(e.deps.Camera), e.cfg.VideoSupervisor, e.deps.Logger)
	det := visual.New(e.cfg.Visual, sup, est, e.recorder, visual.WithLogger(e.deps.Logger))

	e.mu.Lock()
	e.closers = append(e.closers, closers...)
	if e.stopped {
		e.mu.Unlock()
		return supervisor.ErrStopped
	}
	e.videoSup, e.visual = sup, det
	e.mu.Unlock()

	err := sup.Start(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		det.Run(runCtx)
	}()
	return err
}

// buildEstimator assembles remote, local and skin tiers. The remote tier is
// used only if its health check passes now.
func (e *Engine) buildEstimator(ctx context.Context, report func(string, error)) (vision.Estimator, []io.Closer) {
	var (
		tiers   []vision.Estimator
		closers []io.Closer
	)

	if a, err := e.remoteAnalyzer(); err != nil {
		report(health.Remote, err)
	} else if a != nil {
		hctx, cancel := context.WithTimeout(ctx, e.remoteTimeout())
		err := a.Health(hctx)
		cancel()
		report(health.Remote, err)
		if err == nil {
			tiers = append(tiers, vision.NewRemoteEstimator(a, e.remoteTimeout()))
		}
		closers = append(closers, a)
	}

	if det := e.faceDetector(); det != nil {
		local := detection.NewEstimator(det)
		tiers = append(tiers, local)
		closers = append(closers, local)
	}

	tiers = append(tiers, vision.NewSkinHeuristic(e.cfg.Skin))
	chain := vision.NewChain(e.deps.Logger, tiers...)
	e.logger.Info("face estimator ready", "tiers", chain.Name())
	return chain, closers
}

func (e *Engine) remoteTimeout() time.Duration {
	if e.cfg.Remote.Timeout > 0 {
		return e.cfg.Remote.Timeout
	}
	return 3 * time.Second
}

func (e *Engine) remoteAnalyzer() (inference.Analyzer, error) {
	if e.deps.Analyzer != nil {
		return e.deps.Analyzer, nil
	}
	if e.cfg.Remote.URL == "" {
		return nil, nil
	}
	c, err := inference.NewClient(
		inference.WithBaseURL(e.cfg.Remote.URL),
		inference.WithAPIKey(e.cfg.Remote.APIKey),
		inference.WithTimeout(e.remoteTimeout()),
		inference.WithLogger(log.Component(e.deps.Logger, "inference")),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) faceDetector() detection.Detector {
	if e.deps.FaceDetector != nil {
		return e.deps.FaceDetector
	}
	if e.cfg.ModelPath == "" {
		return nil
	}
	if _, err := os.Stat(e.cfg.ModelPath); err != nil {
		e.logger.Info("face model not found, using skin heuristic", "path", e.cfg.ModelPath)
		return nil
	}
	dcfg := detection.DefaultConfig()
	dcfg.ModelPath = e.cfg.ModelPath
	det, err := detection.NewYuNet(dcfg)
	if err != nil {
		e.logger.Warn("face model failed to load", "error", err)
		return nil
	}
	return det
}

func (e *Engine) startAudio(ctx, runCtx context.Context) error {
	if e.deps.Microphone == nil {
		return ErrNoDevice
	}

	sup := supervisor.New(capture.NewAudioAcquirer(e.deps.Microphone), e.cfg.AudioSupervisor, e.deps.Logger)
	det := voice.New(e.cfg.Voice, sup, e.recorder, voice.WithLogger(e.deps.Logger))

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return supervisor.ErrStopped
	}
	e.audioSup, e.voice = sup, det
	det.SetSpeechActive(e.speechActive)
	e.mu.Unlock()

	err := sup.Start(ctx)
	det.Start(runCtx)
	return err
}

// watchHealth keeps the health monitor in step with the supervisors.
func (e *Engine) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshHealth()
		}
	}
}

func (e *Engine) refreshHealth() {
	e.mu.Lock()
	vs, as, vd := e.videoSup, e.audioSup, e.voice
	e.mu.Unlock()

	if vs != nil {
		e.health.Report(health.Visual, supervisorErr(vs))
	}
	if as != nil {
		err := supervisorErr(as)
		if err == nil && vd != nil && vd.Stalled() {
			err = errors.New("audio loop stalled")
		}
		e.health.Report(health.Audio, err)
	}
}

func supervisorErr(s *supervisor.Supervisor) error {
	if s.Active() {
		return nil
	}
	if err := s.LastError(); err != nil {
		return err
	}
	return errors.New(string(s.Kind()) + " capture not playing")
}

// Stop ends the session: every loop is cancelled, the supervisors release
// their hardware and the session log is flushed. It is safe to call twice
// and after a partial Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.monitoring = false
	cancel := e.cancel
	vs, as, vd, w := e.videoSup, e.audioSup, e.voice, e.writer
	closers := e.closers
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if vd != nil {
		vd.Stop()
	}
	e.waitLoops()

	if vs != nil {
		vs.Stop()
	}
	if as != nil {
		as.Stop()
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			e.logger.Debug("close estimator", "error", err)
		}
	}

	if w != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := w.Close(ctx); err != nil {
			e.logger.Warn("session log close failed", "error", err)
		}
		cancel()
	}

	e.logger.Info("proctoring stopped", "violations", e.recorder.Count())
}

func (e *Engine) waitLoops() {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		e.logger.Warn("detector loops did not exit in time")
	}
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	st := State{IsMonitoring: e.monitoring}
	vs, as, w := e.videoSup, e.audioSup, e.writer
	e.mu.Unlock()

	st.VisualActive = st.IsMonitoring && vs != nil && vs.Active()
	st.AudioActive = st.IsMonitoring && as != nil && as.Active()
	st.ViolationCount = e.recorder.Count()
	if w != nil {
		st.SessionID = w.Session().ID
	}
	return st
}

// Activities returns a copy of the violation log.
func (e *Engine) Activities() []activity.Activity {
	return e.recorder.Activities()
}

// VoiceProfile returns the audio detector's learned profile.
func (e *Engine) VoiceProfile() (voice.Profile, bool) {
	e.mu.Lock()
	vd := e.voice
	e.mu.Unlock()
	if vd == nil {
		return voice.Profile{}, false
	}
	return vd.Profile(), true
}

// SetSpeechRecognitionActive tells the audio detector that the host is
// capturing a spoken answer. It may be called before Start.
func (e *Engine) SetSpeechRecognitionActive(active bool) {
	e.mu.Lock()
	e.speechActive = active
	vd := e.voice
	e.mu.Unlock()
	if vd != nil {
		vd.SetSpeechActive(active)
	}
}

// HandleLockdownEvent routes a UI event to the lockdown guard and reports
// whether the host should prevent its default action. Events are ignored
// while lockdown is disabled or the engine is not monitoring.
func (e *Engine) HandleLockdownEvent(ev lockdown.Event) bool {
	if !e.cfg.EnableLockdown {
		return false
	}
	e.mu.Lock()
	on := e.monitoring && !e.stopped
	e.mu.Unlock()
	if !on {
		return false
	}
	return e.guard.Handle(ev)
}

// AudioExpected reports whether audio monitoring should be running.
func (e *Engine) AudioExpected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitoring && !e.stopped && e.voice != nil
}

// RestartStalled restarts a stalled audio loop.
func (e *Engine) RestartStalled() bool {
	e.mu.Lock()
	vd, ctx := e.voice, e.runCtx
	on := e.monitoring && !e.stopped
	e.mu.Unlock()
	if !on || vd == nil || ctx == nil {
		return false
	}
	return vd.Restart(ctx)
}

// Analyser returns the current audio spectrum source.
func (e *Engine) Analyser() capture.SpectrumSource {
	e.mu.Lock()
	as := e.audioSup
	e.mu.Unlock()
	if as == nil {
		return nil
	}
	h := as.Handle()
	if h == nil {
		return nil
	}
	return h.Spectrum()
}

var (
	_ recorder.AudioKeeper = (*Engine)(nil)
	_ activity.Reporter    = (*recorder.Recorder)(nil)
)

// ReacquireCamera makes the video supervisor replace its stream on the next
// check, picking up a changed camera configuration. It reports whether visual
// monitoring is running.
func (e *Engine) ReacquireCamera() bool {
	e.mu.Lock()
	vs := e.videoSup
	on := e.monitoring && !e.stopped
	e.mu.Unlock()
	if !on || vs == nil {
		return false
	}
	vs.Reacquire()
	return true
}
